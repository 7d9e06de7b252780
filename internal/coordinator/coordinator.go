// Package coordinator runs operator commands across the vehicle sessions of
// a formation and sequences the leader/follower launch.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/groundpeer/internal/logsink"
	"github.com/autopeer-io/groundpeer/internal/ports"
	"github.com/autopeer-io/groundpeer/internal/profile"
	"github.com/autopeer-io/groundpeer/internal/session"
	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/errdefs"
)

// Config is the coordinator's static configuration.
type Config struct {
	Baud           int
	ConnectTimeout time.Duration

	// Profiles decides the roles on offer and their per-role policy.
	Profiles profile.Set

	// MissionDir resolves relative mission file names.
	MissionDir string

	// ModelFile is uploaded by the upload-model action.
	ModelFile string
}

// Observer is told about every finished panel action.
type Observer interface {
	ObserveAction(role, action string, elapsed time.Duration, err error)
}

// Status is a point-in-time view of one session.
type Status struct {
	Role   Role   `json:"role"`
	Device string `json:"device"`
	State  string `json:"state"`
	Mode   string `json:"mode"`
	Armed  bool   `json:"armed"`
}

// Coordinator owns the sessions of every role. All device claims go through
// one shared ports.State.
type Coordinator struct {
	cfg       Config
	dialer    vehicle.Dialer
	enum      ports.Enumerator
	state     *ports.State
	sink      *logsink.Sink
	clock     clock.Clock
	observers []Observer

	mu         sync.RWMutex
	sessions   map[Role]*session.Session
	connecting map[Role]bool

	tasks sync.WaitGroup
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

func WithObserver(o Observer) Option {
	return func(co *Coordinator) { co.observers = append(co.observers, o) }
}

func New(cfg Config, dialer vehicle.Dialer, enum ports.Enumerator, state *ports.State, sink *logsink.Sink, opts ...Option) *Coordinator {
	if cfg.Profiles == nil {
		cfg.Profiles = profile.Defaults()
	}
	if cfg.ModelFile == "" {
		cfg.ModelFile = "model.waypoints"
	}
	c := &Coordinator{
		cfg:        cfg,
		dialer:     dialer,
		enum:       enum,
		state:      state,
		sink:       sink,
		clock:      clock.RealClock{},
		sessions:   make(map[Role]*session.Session),
		connecting: make(map[Role]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Roles returns the configured roles, sorted.
func (c *Coordinator) Roles() []Role {
	var roles []Role
	for _, r := range c.cfg.Profiles.Roles() {
		roles = append(roles, Role(r))
	}
	return roles
}

// ParseRole validates s against the configured roles.
func (c *Coordinator) ParseRole(s string) (Role, error) {
	if _, ok := c.cfg.Profiles[s]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownRole, s)
	}
	return Role(s), nil
}

// ConnectError collects the per-role failures of ConnectAll.
type ConnectError struct {
	Errors map[Role]error
}

func (e *ConnectError) Error() string {
	roles := make([]string, 0, len(e.Errors))
	for r := range e.Errors {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)

	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, fmt.Sprintf("%s: %v", r, e.Errors[Role(r)]))
	}
	return "connect failed for " + strings.Join(parts, "; ")
}

func (e *ConnectError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, err)
	}
	return errs
}

// ConnectAll connects every role concurrently. A failing role does not stop
// the others; the returned map holds every role that is connected, and the
// error, if any, is a *ConnectError naming each failed role.
func (c *Coordinator) ConnectAll(ctx context.Context, roles []Role, excludeClaimed bool) (map[Role]*session.Session, error) {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs = make(map[Role]error)
	)

	for _, role := range roles {
		g.Go(func() error {
			if _, err := c.Connect(ctx, role, excludeClaimed); err != nil {
				mu.Lock()
				errs[role] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[Role]*session.Session, len(roles))
	for _, role := range roles {
		if s, ok := c.Session(role); ok {
			out[role] = s
		}
	}
	if len(errs) > 0 {
		return out, &ConnectError{Errors: errs}
	}
	return out, nil
}

// Connect returns the live session of role, dialing one if there is none.
// With excludeClaimed the candidate list is narrowed to unclaimed devices
// up front; claims are taken atomically either way.
func (c *Coordinator) Connect(ctx context.Context, role Role, excludeClaimed bool) (*session.Session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[role]; ok && s.State() != session.StateDisconnected {
		c.mu.Unlock()
		return s, nil
	}
	if c.connecting[role] {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: connect already in progress", role)
	}
	c.connecting[role] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.connecting, role)
		c.mu.Unlock()
	}()

	candidates := ports.ListCandidates(c.enum)
	if excludeClaimed {
		candidates = slices.Values(c.state.Unclaimed(candidates))
	}

	p := c.cfg.Profiles.For(string(role))
	s, err := session.Connect(ctx, c.dialer, c.state, candidates, string(role), c.cfg.Baud, c.cfg.ConnectTimeout,
		session.WithConfig(&p.Session), session.WithClock(c.clock))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessions[role] = s
	c.mu.Unlock()

	c.sink.Reportf(string(role), string(ActionConnect), "%s connected on %s", role, s.Device())
	return s, nil
}

// Disconnect closes the session of role, if any.
func (c *Coordinator) Disconnect(role Role) error {
	c.mu.Lock()
	s, ok := c.sessions[role]
	delete(c.sessions, role)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close()
}

// Session returns the live session of role.
func (c *Coordinator) Session(role Role) (*session.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sessions[role]
	if !ok || s.State() == session.StateDisconnected {
		return nil, false
	}
	return s, true
}

// Sessions returns the live sessions.
func (c *Coordinator) Sessions() []*session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*session.Session
	for _, s := range c.sessions {
		if s.State() != session.StateDisconnected {
			out = append(out, s)
		}
	}
	return out
}

// Status reports every configured role, connected or not.
func (c *Coordinator) Status() []Status {
	var out []Status
	for _, role := range c.Roles() {
		st := Status{Role: role, State: session.StateDisconnected}
		if s, ok := c.Session(role); ok {
			st.Device = s.Device()
			st.State = s.State()
			st.Mode = s.Mode()
			st.Armed = s.Armed()
		}
		out = append(out, st)
	}
	return out
}

// Do runs one panel action to completion. The outcome is reported to the
// sink and to every observer; failures are returned and never retried.
func (c *Coordinator) Do(ctx context.Context, role Role, action Action) error {
	action, err := c.validate(role, action)
	if err != nil {
		return err
	}

	start := c.clock.Now()
	c.sink.Reportf(string(role), string(action), "%s %s started", role, action)

	err = c.do(ctx, role, action)

	elapsed := c.clock.Since(start)
	for _, o := range c.observers {
		o.ObserveAction(string(role), string(action), elapsed, err)
	}
	if err != nil {
		c.sink.Report(string(role), string(action), fmt.Sprintf("%s %s failed", role, action), err)
		return err
	}
	c.sink.Reportf(string(role), string(action), "%s %s complete", role, action)
	return nil
}

// Submit validates the request and runs it in the background. Results
// arrive through the sink.
func (c *Coordinator) Submit(ctx context.Context, role Role, action Action) error {
	action, err := c.validate(role, action)
	if err != nil {
		return err
	}

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		_ = c.Do(ctx, role, action)
	}()
	return nil
}

// Wait blocks until every submitted action has returned.
func (c *Coordinator) Wait() {
	c.tasks.Wait()
}

// Close disconnects every role.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[Role]*session.Session)
	c.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// validate checks role and returns action in canonical form.
func (c *Coordinator) validate(role Role, action Action) (Action, error) {
	if _, err := c.ParseRole(string(role)); err != nil {
		return "", err
	}
	return ParseAction(string(action))
}

func (c *Coordinator) do(ctx context.Context, role Role, action Action) error {
	switch action {
	case ActionConnect:
		_, err := c.Connect(ctx, role, true)
		return err
	case ActionDisconnect:
		return c.Disconnect(role)
	}

	s, ok := c.Session(role)
	if !ok {
		return fmt.Errorf("%w: no %s drone connected", errdefs.ErrNotConnected, role)
	}

	switch action {
	case ActionUpload:
		return s.UploadMissionFile(ctx, c.MissionPath(c.cfg.Profiles.For(string(role)).MissionFile))
	case ActionUploadModel:
		return s.UploadMissionFile(ctx, c.ModelPath())
	case ActionArm:
		return s.ArmSequence(ctx)
	case ActionDisarm:
		return s.DisarmSequence(ctx)
	case ActionStart:
		return s.StartSequence(ctx)
	case ActionLand:
		return s.Land(ctx)
	case ActionServoOpen:
		return s.OpenServo()
	case ActionServoClose:
		return s.CloseServo()
	}

	if mode, ok := action.Mode(); ok {
		return s.SetMode(ctx, mode)
	}
	return fmt.Errorf("%w %q", ErrUnknownAction, action)
}

// MissionPath resolves a mission file name against the mission directory.
func (c *Coordinator) MissionPath(name string) string {
	if c.cfg.MissionDir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.cfg.MissionDir, name)
}

// MissionFile returns the resolved mission file of role.
func (c *Coordinator) MissionFile(role Role) string {
	return c.MissionPath(c.cfg.Profiles.For(string(role)).MissionFile)
}

// ModelPath returns the resolved file of the upload-model action.
func (c *Coordinator) ModelPath() string {
	return c.MissionPath(c.cfg.ModelFile)
}

// Profile returns the profile of role.
func (c *Coordinator) Profile(role Role) *profile.Profile {
	return c.cfg.Profiles.For(string(role))
}
