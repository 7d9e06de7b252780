// Package sim is an in-process flight controller used by tests and by the
// --simulate flag of the binaries.
package sim

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/waypoint"
)

// Options tune how a simulated vehicle reacts to requests.
type Options struct {
	// ModeLag is the number of Mode reads before a requested mode shows up.
	ModeLag int
	// NeverArm ignores every arm request.
	NeverArm bool
	// NeverDisarm ignores every disarm request.
	NeverDisarm bool
	// IgnoreModes lists modes the vehicle refuses to enter.
	IgnoreModes []string
	// StallMission keeps the mission index from advancing once started.
	StallMission bool
	// FailUpload is returned by UploadMission when set.
	FailUpload error
	// Channels seeds the RC input values reported in RC_CHANNELS.
	Channels map[int]int
	// TelemetryInterval emits RC_CHANNELS periodically when positive.
	TelemetryInterval time.Duration
}

// Vehicle is a simulated vehicle.Vehicle.
type Vehicle struct {
	mu sync.Mutex

	device string
	opts   Options

	mode        string
	pendingMode string
	lag         int
	armed       bool

	staged  []waypoint.Command
	mission []waypoint.Command
	running bool
	next    int

	channels  map[int]int
	overrides map[int]int

	listeners map[string]map[int]vehicle.Listener
	nextID    int

	history []string
	closed  bool
	stop    chan struct{}
}

var _ vehicle.Vehicle = (*Vehicle)(nil)

// NewVehicle returns a disarmed vehicle in STABILIZE.
func NewVehicle(device string, opts Options) *Vehicle {
	v := &Vehicle{
		device:    device,
		opts:      opts,
		mode:      vehicle.ModeStabilize,
		channels:  maps.Clone(opts.Channels),
		overrides: make(map[int]int),
		listeners: make(map[string]map[int]vehicle.Listener),
		stop:      make(chan struct{}),
	}
	if v.channels == nil {
		v.channels = make(map[int]int)
	}
	if opts.TelemetryInterval > 0 {
		go v.emitLoop(opts.TelemetryInterval)
	}
	return v
}

// Device returns the device the vehicle was dialed on.
func (v *Vehicle) Device() string { return v.device }

func (v *Vehicle) Mode() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pendingMode != "" {
		if v.lag > 0 {
			v.lag--
		} else {
			v.enterMode(v.pendingMode)
			v.pendingMode = ""
		}
	}
	return v.mode
}

// enterMode must be called with mu held.
func (v *Vehicle) enterMode(mode string) {
	v.mode = mode
	if mode == vehicle.ModeAuto && v.armed && len(v.mission) > 0 {
		v.running = true
		v.next = 1
	}
	if mode == vehicle.ModeLand {
		v.running = false
		v.next = 0
	}
}

func (v *Vehicle) SetMode(ctx context.Context, name string) error {
	if !vehicle.ValidMode(name) {
		return fmt.Errorf("unknown mode %q", name)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vehicle %s is closed", v.device)
	}
	v.history = append(v.history, "mode:"+name)
	if slices.Contains(v.opts.IgnoreModes, name) {
		return nil
	}
	v.pendingMode = name
	v.lag = v.opts.ModeLag
	if v.lag == 0 {
		v.enterMode(name)
		v.pendingMode = ""
	}
	return nil
}

func (v *Vehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}

func (v *Vehicle) SetArmed(ctx context.Context, armed bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vehicle %s is closed", v.device)
	}
	if armed {
		v.history = append(v.history, "arm")
		if !v.opts.NeverArm {
			v.armed = true
		}
		return nil
	}
	v.history = append(v.history, "disarm")
	if !v.opts.NeverDisarm {
		v.armed = false
		v.running = false
		v.next = 0
	}
	return nil
}

func (v *Vehicle) ClearMission(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.history = append(v.history, "clear")
	v.staged = nil
	v.mission = nil
	v.running = false
	v.next = 0
	return nil
}

func (v *Vehicle) AddMission(cmd waypoint.Command) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.staged = append(v.staged, cmd)
	return nil
}

func (v *Vehicle) UploadMission(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.opts.FailUpload != nil {
		return v.opts.FailUpload
	}
	v.mission = slices.Clone(v.staged)
	v.history = append(v.history, fmt.Sprintf("upload:%d", len(v.mission)))
	log.Debug("[sim] mission uploaded", "device", v.device, "items", len(v.mission))
	return nil
}

// NextMissionIndex advances a running mission by one item per read.
func (v *Vehicle) NextMissionIndex() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running {
		return 0
	}
	current := v.next
	if !v.opts.StallMission {
		v.next++
		if v.next > len(v.mission) {
			v.running = false
			v.next = 0
		}
	}
	return current
}

// SetChannelOverride also shows up in the reported RC_CHANNELS values, as
// it does on ArduPilot.
func (v *Vehicle) SetChannelOverride(channel int, pwm int) error {
	v.mu.Lock()
	v.overrides[channel] = pwm
	v.history = append(v.history, fmt.Sprintf("override:%d=%d", channel, pwm))
	v.mu.Unlock()

	v.emitChannels()
	return nil
}

func (v *Vehicle) ClearChannelOverride(channel int) error {
	v.mu.Lock()
	delete(v.overrides, channel)
	v.history = append(v.history, fmt.Sprintf("release:%d", channel))
	v.mu.Unlock()

	v.emitChannels()
	return nil
}

func (v *Vehicle) AddMessageListener(msgType string, fn vehicle.Listener) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.listeners[msgType] == nil {
		v.listeners[msgType] = make(map[int]vehicle.Listener)
	}
	id := v.nextID
	v.nextID++
	v.listeners[msgType][id] = fn

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners[msgType], id)
	}
}

func (v *Vehicle) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	close(v.stop)
	return nil
}

// Emit delivers msg to the listeners registered for its type.
func (v *Vehicle) Emit(msg vehicle.Message) {
	v.mu.Lock()
	fns := slices.Collect(maps.Values(v.listeners[msg.Type]))
	v.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// SetChannel changes an RC input value and reports it.
func (v *Vehicle) SetChannel(channel, pwm int) {
	v.mu.Lock()
	v.channels[channel] = pwm
	v.mu.Unlock()

	v.emitChannels()
}

// Overrides returns the active channel overrides.
func (v *Vehicle) Overrides() map[int]int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return maps.Clone(v.overrides)
}

// Mission returns the last uploaded mission.
func (v *Vehicle) Mission() waypoint.Mission {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.mission)
}

// History returns the requests received so far, e.g. "mode:GUIDED", "arm",
// "upload:5" or "override:3=100".
func (v *Vehicle) History() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.history)
}

// Listeners returns the number of listeners registered for msgType.
func (v *Vehicle) Listeners(msgType string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.listeners[msgType])
}

// Closed reports whether Close was called.
func (v *Vehicle) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *Vehicle) emitChannels() {
	v.mu.Lock()
	fields := make(map[string]float64, len(v.channels)+len(v.overrides))
	for ch, pwm := range v.channels {
		fields[vehicle.ChannelField(ch)] = float64(pwm)
	}
	for ch, pwm := range v.overrides {
		fields[vehicle.ChannelField(ch)] = float64(pwm)
	}
	v.mu.Unlock()

	v.Emit(vehicle.Message{Type: vehicle.MessageRCChannels, Fields: fields})
}

func (v *Vehicle) emitLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stop:
			return
		case <-ticker.C:
			v.emitChannels()
		}
	}
}
