package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/log"
)

// Dialer hands out simulated vehicles. Devices listed in Refuse fail the
// handshake; every other device answers.
type Dialer struct {
	// Defaults apply to devices without an entry in PerDevice.
	Defaults  Options
	PerDevice map[string]Options
	Refuse    map[string]bool

	mu       sync.Mutex
	vehicles map[string]*Vehicle
	dials    []string
}

var _ vehicle.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer that answers on every device with opts.
func NewDialer(opts Options) *Dialer {
	return &Dialer{Defaults: opts}
}

func (d *Dialer) Dial(ctx context.Context, deviceID string, baud int) (vehicle.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, deviceID)
	if d.Refuse[deviceID] {
		return nil, fmt.Errorf("no heartbeat on %s", deviceID)
	}

	opts, ok := d.PerDevice[deviceID]
	if !ok {
		opts = d.Defaults
	}

	v := NewVehicle(deviceID, opts)
	if d.vehicles == nil {
		d.vehicles = make(map[string]*Vehicle)
	}
	d.vehicles[deviceID] = v

	log.Info("[sim] vehicle connected", "device", deviceID, "baud", baud)
	return v, nil
}

// Vehicle returns the last vehicle dialed on deviceID.
func (d *Dialer) Vehicle(deviceID string) *Vehicle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vehicles[deviceID]
}

// Dials returns every device a dial was attempted on, in order.
func (d *Dialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}
