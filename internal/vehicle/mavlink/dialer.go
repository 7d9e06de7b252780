package mavlink

import (
	"context"
	"fmt"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/log"
)

const (
	defaultSystemID    = 255
	defaultStepTimeout = 5 * time.Second
	defaultStreamRate  = 4
)

// Dialer opens MAVLink serial links.
type Dialer struct {
	// SystemID is the ground station's MAVLink system id.
	SystemID byte
	// StepTimeout bounds each step of the mission upload exchange.
	StepTimeout time.Duration
	// StreamRate is the telemetry rate in Hz requested from the vehicle.
	StreamRate int
}

var _ vehicle.Dialer = (*Dialer)(nil)

func NewDialer() *Dialer {
	return &Dialer{
		SystemID:    defaultSystemID,
		StepTimeout: defaultStepTimeout,
		StreamRate:  defaultStreamRate,
	}
}

// Dial opens deviceID and waits for the first vehicle heartbeat.
func (d *Dialer) Dial(ctx context.Context, deviceID string, baud int) (vehicle.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointSerial{Device: deviceID, Baud: baud},
		},
		Dialect:                common.Dialect,
		OutVersion:             gomavlib.V2,
		OutSystemID:            d.SystemID,
		StreamRequestEnable:    true,
		StreamRequestFrequency: d.StreamRate,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", deviceID, err)
	}

	l := newLink(node, deviceID, d.StepTimeout)

	select {
	case <-l.ready:
		log.Info("Heartbeat received", "device", deviceID, "mode", l.Mode())
		return l, nil
	case <-ctx.Done():
		_ = l.Close()
		return nil, fmt.Errorf("no heartbeat on %s: %w", deviceID, ctx.Err())
	}
}
