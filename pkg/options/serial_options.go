package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SerialOptions)(nil)

// SerialOptions configures how vehicles are discovered and dialed.
type SerialOptions struct {
	// Baud is the telemetry radio baud rate.
	Baud int `json:"baud" mapstructure:"baud"`

	// ConnectTimeout bounds the heartbeat handshake on each candidate device.
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	// Devices, when set, replaces serial enumeration with a fixed candidate list.
	Devices []string `json:"devices" mapstructure:"devices"`

	// Simulate dials in-process simulated vehicles instead of serial devices.
	Simulate bool `json:"simulate" mapstructure:"simulate"`
}

func NewSerialOptions() *SerialOptions {
	return &SerialOptions{
		Baud:           57600,
		ConnectTimeout: 90 * time.Second,
	}
}

func (o *SerialOptions) Validate() []error {
	var errs []error
	if o.Baud <= 0 {
		errs = append(errs, errors.New("serial.baud must be positive"))
	}
	if o.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("serial.connect-timeout must be positive"))
	}
	return errs
}

func (o *SerialOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.Baud, join("serial.baud", prefixes...), o.Baud, "Baud rate of the telemetry link.")
	fs.DurationVar(&o.ConnectTimeout, join("serial.connect-timeout", prefixes...), o.ConnectTimeout, "Handshake timeout per candidate device.")
	fs.StringSliceVar(&o.Devices, join("serial.devices", prefixes...), o.Devices, "Fixed candidate devices; empty enumerates serial ports.")
	fs.BoolVar(&o.Simulate, join("serial.simulate", prefixes...), o.Simulate, "Use simulated vehicles instead of serial devices.")
}
