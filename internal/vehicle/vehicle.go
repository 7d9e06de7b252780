// Package vehicle defines the capability set a flight controller link must
// provide. Sessions depend only on these interfaces.
package vehicle

import (
	"context"

	"github.com/autopeer-io/groundpeer/pkg/waypoint"
)

// Message is a decoded telemetry message with named numeric fields, such as
// RC_CHANNELS with chan8_raw.
type Message struct {
	Type   string
	Fields map[string]float64
}

// Listener receives telemetry messages. It is called from the link's reader
// goroutine and must not block.
type Listener func(Message)

// Vehicle is one connected flight controller.
type Vehicle interface {
	// Mode returns the last observed flight mode name.
	Mode() string

	// SetMode requests a mode change without waiting for it to take effect.
	SetMode(ctx context.Context, name string) error

	// Armed returns the last observed armed flag.
	Armed() bool

	// SetArmed requests arming or disarming without waiting for it.
	SetArmed(ctx context.Context, armed bool) error

	// ClearMission stages removal of the onboard mission.
	ClearMission(ctx context.Context) error

	// AddMission stages one command for the next upload.
	AddMission(cmd waypoint.Command) error

	// UploadMission transfers the staged commands.
	UploadMission(ctx context.Context) error

	// NextMissionIndex returns the index of the next mission item, or 0 once
	// no further commands remain.
	NextMissionIndex() int

	// SetChannelOverride forces a raw RC channel value.
	SetChannelOverride(channel int, pwm int) error

	// ClearChannelOverride hands a channel back to the transmitter.
	ClearChannelOverride(channel int) error

	// AddMessageListener registers fn for msgType and returns its removal func.
	AddMessageListener(msgType string, fn Listener) (remove func())

	// Close releases the link.
	Close() error
}

// Dialer opens a Vehicle on a device. It returns once the flight controller
// has answered the handshake or ctx ends.
type Dialer interface {
	Dial(ctx context.Context, deviceID string, baud int) (Vehicle, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, deviceID string, baud int) (Vehicle, error)

func (f DialerFunc) Dial(ctx context.Context, deviceID string, baud int) (Vehicle, error) {
	return f(ctx, deviceID, baud)
}
