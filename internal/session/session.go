// Package session owns the link to one flight controller and exposes the
// bounded operations the ground station issues against it.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	fsmutil "github.com/autopeer-io/groundpeer/internal/pkg/util/fsm"
	"github.com/autopeer-io/groundpeer/internal/pkg/util/poll"
	"github.com/autopeer-io/groundpeer/internal/ports"
	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/errdefs"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/waypoint"
)

// Session is one connected vehicle in a role. Operations that command the
// vehicle are serialized; Mode, Armed and State may be read at any time.
type Session struct {
	// mu serializes commanding operations.
	mu sync.Mutex

	role  string
	cfg   *Config
	state *ports.State
	clock clock.Clock
	log   log.Logger

	// linkMu guards device and vehicle, which change only on connect and
	// disconnect.
	linkMu  sync.RWMutex
	device  string
	vehicle vehicle.Vehicle

	fsm *fsm.FSM
}

// Option customizes Connect.
type Option func(*Session)

// WithConfig replaces the default poll and channel policy.
func WithConfig(cfg *Config) Option {
	return func(s *Session) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithClock replaces the wall clock used for timed holds.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// PollOption overrides the poll bounds of a single call.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	timeout  time.Duration
}

func WithInterval(d time.Duration) PollOption {
	return func(c *pollConfig) { c.interval = d }
}

// WithTimeout bounds the call. Zero or negative waits until ctx ends.
func WithTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) { c.timeout = d }
}

// Connect tries each candidate in order and returns a session on the first
// device that answers the handshake within timeout. A device is claimed in
// state before it is dialed and released again if the dial fails. Devices
// already claimed by other sessions are skipped.
func Connect(ctx context.Context, dialer vehicle.Dialer, state *ports.State, candidates iter.Seq[string],
	role string, baud int, timeout time.Duration, opts ...Option,
) (*Session, error) {
	s := &Session{
		role:  role,
		cfg:   NewConfig(),
		state: state,
		clock: clock.RealClock{},
		log:   log.WithValues("role", role),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.fsm = newMachine(s)

	tried := 0
	for device := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !state.Claim(device, role) {
			s.log.Debug("Skipping claimed device", "device", device)
			continue
		}
		tried++

		if err := s.dial(ctx, dialer, device, baud, timeout); err != nil {
			s.log.Warn("Connection failed", "device", device, "error", err.Error())
			continue
		}

		s.log.Info("Vehicle connected", "device", device, "mode", s.Mode())
		return s, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s tried %d unclaimed candidates", errdefs.ErrNoDeviceFound, role, tried)
}

// dial runs one connecting attempt. The claim on device is already held.
func (s *Session) dial(ctx context.Context, dialer vehicle.Dialer, device string, baud int, timeout time.Duration) error {
	if err := s.event(ctx, EventConnect, device); err != nil {
		s.state.Release(device)
		return err
	}
	s.setLink(device, nil)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := dialer.Dial(dialCtx, device, baud)
	if err != nil {
		// enter_disconnected releases the claim.
		_ = s.event(ctx, EventFail)
		return err
	}
	s.setLink(device, v)

	if err := s.event(ctx, EventConnected); err != nil {
		_ = s.event(ctx, EventClose)
		return err
	}
	return nil
}

// event fires an fsm event. Transitions are not abandoned when ctx is
// cancelled, so releasing a claim always completes.
func (s *Session) event(ctx context.Context, name string, args ...any) error {
	return s.fsm.Event(context.WithoutCancel(ctx), name, args...)
}

func (s *Session) setLink(device string, v vehicle.Vehicle) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	s.device, s.vehicle = device, v
}

// Role returns the role the session was connected for.
func (s *Session) Role() string { return s.role }

// Device returns the claimed device, or "" once closed.
func (s *Session) Device() string {
	s.linkMu.RLock()
	defer s.linkMu.RUnlock()
	return s.device
}

// State returns the session state machine's current state.
func (s *Session) State() string { return s.fsm.Current() }

// Mode returns the last mode reported by the vehicle.
func (s *Session) Mode() string {
	v, err := s.link()
	if err != nil {
		return ""
	}
	return v.Mode()
}

// Armed returns the last armed flag reported by the vehicle.
func (s *Session) Armed() bool {
	v, err := s.link()
	if err != nil {
		return false
	}
	return v.Armed()
}

// Vehicle returns the underlying link, for listeners and telemetry reads.
func (s *Session) Vehicle() (vehicle.Vehicle, error) {
	return s.link()
}

func (s *Session) link() (vehicle.Vehicle, error) {
	s.linkMu.RLock()
	defer s.linkMu.RUnlock()

	switch s.fsm.Current() {
	case StateDisconnected, StateConnecting:
		return nil, fmt.Errorf("%w: %s", errdefs.ErrNotConnected, s.role)
	}
	return s.vehicle, nil
}

// SetMode requests mode name and waits until the vehicle reports it.
func (s *Session) SetMode(ctx context.Context, name string, opts ...PollOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMode(ctx, name, errdefs.ErrModeTimeout, opts...)
}

// Arm requests arming and waits until the vehicle reports armed.
func (s *Session) Arm(ctx context.Context, opts ...PollOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arm(ctx, opts...)
}

// Disarm requests disarming on every poll until the vehicle reports it.
func (s *Session) Disarm(ctx context.Context, opts ...PollOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disarm(ctx, opts...)
}

// Land switches to LAND and waits for it.
func (s *Session) Land(ctx context.Context, opts ...PollOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMode(ctx, vehicle.ModeLand, errdefs.ErrLandTimeout, opts...)
}

// StartMission switches to AUTO and waits for it.
func (s *Session) StartMission(ctx context.Context, opts ...PollOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMode(ctx, vehicle.ModeAuto, errdefs.ErrStartTimeout, opts...)
}

// UploadMission replaces the onboard mission with m. A failure part way
// leaves the onboard mission undefined; it is returned and not retried.
func (s *Session) UploadMission(ctx context.Context, m waypoint.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upload(ctx, m)
}

// UploadMissionFile reads a waypoint file and uploads it.
func (s *Session) UploadMissionFile(ctx context.Context, path string) error {
	m, err := waypoint.Read(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upload(ctx, m); err != nil {
		return err
	}
	s.log.Info("Mission file uploaded", "path", path)
	return nil
}

// WaitForMissionCompletion polls the next mission index until it drops to
// 0. It waits until ctx ends unless WithTimeout is given, and fails with
// ErrNotConnected once the session is closed. It does not take the
// operation lock, so a land or mode change can still be issued while it
// waits.
func (s *Session) WaitForMissionCompletion(ctx context.Context, opts ...PollOption) error {
	if _, err := s.link(); err != nil {
		return err
	}

	pc := pollConfig{interval: s.cfg.CompletionInterval}
	for _, opt := range opts {
		opt(&pc)
	}

	err := poll.Until(ctx, pc.interval, pc.timeout, func(context.Context) (bool, error) {
		v, err := s.link()
		if err != nil {
			return false, err
		}
		return v.NextMissionIndex() == 0, nil
	})
	if err != nil {
		return fmt.Errorf("wait for %s mission completion: %w", s.role, err)
	}
	s.log.Info("Mission complete")
	return nil
}

// SetServoOverride forces channel to pwm. No acknowledgment is awaited.
func (s *Session) SetServoOverride(channel, pwm int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.override(channel, pwm)
}

// ThrottleNudge holds the throttle channel at pwm for hold and then hands
// it back to the transmitter, also when ctx ends early.
func (s *Session) ThrottleNudge(ctx context.Context, pwm int, hold time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.link()
	if err != nil {
		return err
	}

	ch := s.cfg.ThrottleChannel
	if err := v.SetChannelOverride(ch, pwm); err != nil {
		return fmt.Errorf("override channel %d on %s: %w", ch, s.role, err)
	}
	s.log.Info("Throttle nudge", "channel", ch, "pwm", pwm, "hold", hold)

	var waitErr error
	select {
	case <-s.clock.After(hold):
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if err := v.ClearChannelOverride(ch); err != nil {
		return fmt.Errorf("release channel %d on %s: %w", ch, s.role, err)
	}
	return waitErr
}

// ArmSequence arms in GUIDED and settles in STABILIZE.
func (s *Session) ArmSequence(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setMode(ctx, vehicle.ModeGuided, errdefs.ErrModeTimeout); err != nil {
		return err
	}
	if err := s.arm(ctx); err != nil {
		return err
	}
	return s.setMode(ctx, vehicle.ModeStabilize, errdefs.ErrModeTimeout)
}

// DisarmSequence drops to STABILIZE and disarms.
func (s *Session) DisarmSequence(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setMode(ctx, vehicle.ModeStabilize, errdefs.ErrModeTimeout); err != nil {
		return err
	}
	return s.disarm(ctx)
}

// StartSequence runs Launch and then waits for the mission to complete.
func (s *Session) StartSequence(ctx context.Context) error {
	if err := s.Launch(ctx); err != nil {
		return err
	}
	return s.WaitForMissionCompletion(ctx)
}

// Launch arms in GUIDED and switches to AUTO without waiting for the
// mission to finish.
func (s *Session) Launch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setMode(ctx, vehicle.ModeGuided, errdefs.ErrModeTimeout); err != nil {
		return err
	}
	if err := s.arm(ctx); err != nil {
		return err
	}
	if err := s.setMode(ctx, vehicle.ModeAuto, errdefs.ErrStartTimeout); err != nil {
		return err
	}
	s.log.Info("Mission started")
	return nil
}

func (s *Session) OpenServo() error {
	return s.SetServoOverride(s.cfg.ServoChannel, s.cfg.ServoOpenPWM)
}

func (s *Session) CloseServo() error {
	return s.SetServoOverride(s.cfg.ServoChannel, s.cfg.ServoClosePWM)
}

// Close releases the link and the device claim. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fsm.Is(StateDisconnected) {
		return nil
	}
	device := s.Device()
	if err := s.event(context.Background(), EventClose); fsmutil.IsRealError(err) {
		return fmt.Errorf("close %s: %w", s.role, err)
	}
	s.log.Info("Vehicle disconnected", "device", device)
	return nil
}

func (s *Session) setMode(ctx context.Context, name string, kind error, opts ...PollOption) error {
	if !vehicle.ValidMode(name) {
		return fmt.Errorf("%w: unknown mode %q", errdefs.ErrValidation, name)
	}
	v, err := s.link()
	if err != nil {
		return err
	}

	if err := v.SetMode(ctx, name); err != nil {
		return fmt.Errorf("request mode %s on %s: %w", name, s.role, err)
	}

	err = s.wait(ctx, kind, opts, func() bool { return v.Mode() == name })
	if err != nil {
		return err
	}

	if err := s.event(ctx, modeEvent(name)); fsmutil.IsRealError(err) {
		return err
	}
	s.log.Info("Mode changed", "mode", name)
	return nil
}

func (s *Session) arm(ctx context.Context, opts ...PollOption) error {
	v, err := s.link()
	if err != nil {
		return err
	}
	if err := v.SetArmed(ctx, true); err != nil {
		return fmt.Errorf("request arm on %s: %w", s.role, err)
	}
	if err := s.wait(ctx, errdefs.ErrArmTimeout, opts, v.Armed); err != nil {
		return err
	}
	s.log.Info("Vehicle armed")
	return nil
}

func (s *Session) disarm(ctx context.Context, opts ...PollOption) error {
	v, err := s.link()
	if err != nil {
		return err
	}

	err = s.wait(ctx, errdefs.ErrDisarmTimeout, opts, func() bool {
		if !v.Armed() {
			return true
		}
		if err := v.SetArmed(ctx, false); err != nil {
			s.log.Warn("Disarm request failed", "error", err.Error())
		}
		return false
	})
	if err != nil {
		return err
	}
	s.log.Info("Vehicle disarmed")
	return nil
}

func (s *Session) upload(ctx context.Context, m waypoint.Mission) error {
	if err := m.Validate(); err != nil {
		return err
	}
	v, err := s.link()
	if err != nil {
		return err
	}

	if err := v.ClearMission(ctx); err != nil {
		return fmt.Errorf("clear mission on %s: %w", s.role, err)
	}
	for _, cmd := range m {
		if err := v.AddMission(cmd); err != nil {
			return fmt.Errorf("stage mission item %d on %s: %w", cmd.Seq, s.role, err)
		}
	}
	if err := v.UploadMission(ctx); err != nil {
		return fmt.Errorf("upload mission to %s: %w", s.role, err)
	}

	s.log.Info("Mission uploaded", "items", len(m))
	return nil
}

func (s *Session) override(channel, pwm int) error {
	v, err := s.link()
	if err != nil {
		return err
	}
	if err := v.SetChannelOverride(channel, pwm); err != nil {
		return fmt.Errorf("override channel %d on %s: %w", channel, s.role, err)
	}
	s.log.Info("Channel override set", "channel", channel, "pwm", pwm)
	return nil
}

// wait polls done with the session's mode bounds and maps a timeout to kind.
func (s *Session) wait(ctx context.Context, kind error, opts []PollOption, done func() bool) error {
	pc := pollConfig{interval: s.cfg.ModeInterval, timeout: s.cfg.ModeTimeout}
	for _, opt := range opts {
		opt(&pc)
	}

	err := poll.Until(ctx, pc.interval, pc.timeout, func(context.Context) (bool, error) {
		return done(), nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return fmt.Errorf("%w: %s after %s", kind, s.role, pc.timeout)
	}
	return err
}
