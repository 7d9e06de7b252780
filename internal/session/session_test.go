package session

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/groundpeer/internal/ports"
	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/internal/vehicle/sim"
	"github.com/autopeer-io/groundpeer/pkg/errdefs"
	"github.com/autopeer-io/groundpeer/pkg/waypoint"
)

func fastConfig() *Config {
	cfg := NewConfig()
	cfg.ModeInterval = 5 * time.Millisecond
	cfg.ModeTimeout = 100 * time.Millisecond
	cfg.CompletionInterval = time.Millisecond
	return cfg
}

func connect(t *testing.T, opts sim.Options, extra ...Option) (*Session, *sim.Vehicle, *ports.State) {
	t.Helper()

	dialer := sim.NewDialer(opts)
	state := ports.NewState()
	candidates := ports.ListCandidates(ports.StaticEnumerator{"/dev/ttyUSB0"})

	s, err := Connect(context.Background(), dialer, state, candidates, "mother", 57600, time.Second,
		append([]Option{WithConfig(fastConfig())}, extra...)...)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s, dialer.Vehicle("/dev/ttyUSB0"), state
}

func testMission() waypoint.Mission {
	return waypoint.Mission{
		{Seq: 1, Frame: waypoint.FrameRelativeAlt, Command: waypoint.CommandTakeoff, Alt: 3, AutoContinue: true},
		{Seq: 2, Frame: waypoint.FrameRelativeAlt, Command: waypoint.CommandWaypoint, Lat: 52.1, Lon: 4.3, Alt: 6, AutoContinue: true},
		{Seq: 3, Frame: waypoint.FrameRelativeAlt, Command: waypoint.CommandLand, Lat: 52.2, Lon: 4.4, AutoContinue: true},
	}
}

func TestConnect(t *testing.T) {
	candidates := ports.StaticEnumerator{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"}

	tests := []struct {
		name       string
		preclaimed []string
		refuse     []string
		wantDevice string
		wantDials  []string
		wantErr    error
	}{
		{
			name:       "first candidate",
			wantDevice: "/dev/ttyUSB0",
			wantDials:  []string{"/dev/ttyUSB0"},
		},
		{
			name:       "skips claimed",
			preclaimed: []string{"/dev/ttyUSB0"},
			wantDevice: "/dev/ttyUSB1",
			wantDials:  []string{"/dev/ttyUSB1"},
		},
		{
			name:       "falls through failed handshake",
			refuse:     []string{"/dev/ttyUSB0", "/dev/ttyUSB1"},
			wantDevice: "/dev/ttyUSB2",
			wantDials:  []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"},
		},
		{
			name:       "all claimed or refused",
			preclaimed: []string{"/dev/ttyUSB0", "/dev/ttyUSB2"},
			refuse:     []string{"/dev/ttyUSB1"},
			wantDials:  []string{"/dev/ttyUSB1"},
			wantErr:    errdefs.ErrNoDeviceFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := ports.NewState()
			for _, d := range tt.preclaimed {
				state.Claim(d, "top")
			}
			dialer := sim.NewDialer(sim.Options{})
			dialer.Refuse = make(map[string]bool)
			for _, d := range tt.refuse {
				dialer.Refuse[d] = true
			}

			s, err := Connect(context.Background(), dialer, state, ports.ListCandidates(candidates), "mother", 57600, time.Second)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Connect err = %v, want %v", err, tt.wantErr)
			}
			if !slices.Equal(dialer.Dials(), tt.wantDials) {
				t.Errorf("dials = %v, want %v", dialer.Dials(), tt.wantDials)
			}
			for _, d := range tt.refuse {
				if owner, ok := state.Owner(d); ok && owner == "mother" {
					t.Errorf("refused device %s still claimed", d)
				}
			}
			if tt.wantErr != nil {
				return
			}

			defer s.Close()
			if s.Device() != tt.wantDevice {
				t.Errorf("device = %q, want %q", s.Device(), tt.wantDevice)
			}
			if owner, _ := state.Owner(tt.wantDevice); owner != "mother" {
				t.Errorf("owner of %s = %q, want mother", tt.wantDevice, owner)
			}
			if s.State() != StateConnected {
				t.Errorf("state = %q, want %q", s.State(), StateConnected)
			}
		})
	}
}

func TestConnectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := ports.NewState()
	_, err := Connect(ctx, sim.NewDialer(sim.Options{}), state,
		ports.ListCandidates(ports.StaticEnumerator{"/dev/ttyUSB0"}), "mother", 57600, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Connect err = %v, want context.Canceled", err)
	}
	if len(state.Claimed()) != 0 {
		t.Errorf("claims left behind: %v", state.Claimed())
	}
}

func TestSetMode(t *testing.T) {
	tests := []struct {
		name      string
		opts      sim.Options
		mode      string
		wantErr   error
		wantState string
	}{
		{"immediate", sim.Options{}, vehicle.ModeGuided, nil, "guided"},
		{"lagging vehicle", sim.Options{ModeLag: 3}, vehicle.ModeLoiter, nil, "loiter"},
		{"never switches", sim.Options{IgnoreModes: []string{vehicle.ModeRTL}}, vehicle.ModeRTL, errdefs.ErrModeTimeout, StateConnected},
		{"unknown mode", sim.Options{}, "ACRO", errdefs.ErrValidation, StateConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := connect(t, tt.opts)

			err := s.SetMode(context.Background(), tt.mode)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetMode err = %v, want %v", err, tt.wantErr)
			}
			if s.State() != tt.wantState {
				t.Errorf("state = %q, want %q", s.State(), tt.wantState)
			}
		})
	}
}

func TestSetModeTimeoutBound(t *testing.T) {
	s, _, _ := connect(t, sim.Options{IgnoreModes: []string{vehicle.ModeGuided}})

	start := time.Now()
	err := s.SetMode(context.Background(), vehicle.ModeGuided, WithInterval(10*time.Millisecond), WithTimeout(50*time.Millisecond))
	elapsed := time.Since(start)

	if !errors.Is(err, errdefs.ErrModeTimeout) {
		t.Fatalf("err = %v, want ErrModeTimeout", err)
	}
	if elapsed > time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestTimeoutKinds(t *testing.T) {
	tests := []struct {
		name    string
		opts    sim.Options
		op      func(context.Context, *Session) error
		wantErr error
	}{
		{"arm", sim.Options{NeverArm: true}, func(ctx context.Context, s *Session) error { return s.Arm(ctx) }, errdefs.ErrArmTimeout},
		{"disarm", sim.Options{NeverDisarm: true}, func(ctx context.Context, s *Session) error { return s.Disarm(ctx) }, errdefs.ErrDisarmTimeout},
		{"land", sim.Options{IgnoreModes: []string{vehicle.ModeLand}}, func(ctx context.Context, s *Session) error { return s.Land(ctx) }, errdefs.ErrLandTimeout},
		{"start", sim.Options{IgnoreModes: []string{vehicle.ModeAuto}}, func(ctx context.Context, s *Session) error { return s.StartMission(ctx) }, errdefs.ErrStartTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, v, _ := connect(t, tt.opts)
			if tt.name == "disarm" {
				_ = v.SetArmed(context.Background(), true)
			}

			err := tt.op(context.Background(), s)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if !errdefs.IsTimeout(err) {
				t.Errorf("IsTimeout(%v) = false", err)
			}
		})
	}
}

func TestDisarmRepeatsRequest(t *testing.T) {
	s, v, _ := connect(t, sim.Options{NeverDisarm: true})
	_ = v.SetArmed(context.Background(), true)

	_ = s.Disarm(context.Background(), WithTimeout(30*time.Millisecond))

	n := 0
	for _, h := range v.History() {
		if h == "disarm" {
			n++
		}
	}
	if n < 2 {
		t.Errorf("disarm requested %d times, want at least 2", n)
	}
}

func TestUploadMission(t *testing.T) {
	boom := errors.New("link lost")

	tests := []struct {
		name        string
		opts        sim.Options
		mission     waypoint.Mission
		wantErr     error
		wantHistory []string
	}{
		{"uploads", sim.Options{}, testMission(), nil, []string{"clear", "upload:3"}},
		{"empty mission", sim.Options{}, nil, errdefs.ErrValidation, nil},
		{"transfer failure", sim.Options{FailUpload: boom}, testMission(), boom, []string{"clear"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, v, _ := connect(t, tt.opts)

			err := s.UploadMission(context.Background(), tt.mission)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !slices.Equal(v.History(), tt.wantHistory) {
				t.Errorf("history = %v, want %v", v.History(), tt.wantHistory)
			}
			if tt.wantErr == nil && !slices.Equal(v.Mission(), tt.mission) {
				t.Errorf("onboard mission = %v", v.Mission())
			}
		})
	}
}

func TestUploadMissionFile(t *testing.T) {
	s, v, _ := connect(t, sim.Options{})

	path := filepath.Join(t.TempDir(), "attemp.waypoints")
	if err := waypoint.Write(path, testMission()); err != nil {
		t.Fatal(err)
	}

	if err := s.UploadMissionFile(context.Background(), path); err != nil {
		t.Fatalf("UploadMissionFile: %v", err)
	}
	if got := len(v.Mission()); got != 3 {
		t.Errorf("uploaded %d items, want 3", got)
	}

	err := s.UploadMissionFile(context.Background(), filepath.Join(t.TempDir(), "missing.waypoints"))
	if !errors.Is(err, errdefs.ErrIO) {
		t.Errorf("missing file err = %v, want ErrIO", err)
	}
}

func TestStartSequence(t *testing.T) {
	s, v, _ := connect(t, sim.Options{})
	ctx := context.Background()

	if err := s.UploadMission(ctx, testMission()); err != nil {
		t.Fatal(err)
	}
	if err := s.StartSequence(ctx); err != nil {
		t.Fatalf("StartSequence: %v", err)
	}

	want := []string{"clear", "upload:3", "mode:GUIDED", "arm", "mode:AUTO"}
	if !slices.Equal(v.History(), want) {
		t.Errorf("history = %v, want %v", v.History(), want)
	}
	if s.State() != "auto" {
		t.Errorf("state = %q, want auto", s.State())
	}
}

func TestWaitForMissionCompletionHonoursContext(t *testing.T) {
	s, _, _ := connect(t, sim.Options{StallMission: true})

	if err := s.UploadMission(context.Background(), testMission()); err != nil {
		t.Fatal(err)
	}
	if err := s.Launch(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := s.WaitForMissionCompletion(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestWaitForMissionCompletionEndsOnClose(t *testing.T) {
	s, _, _ := connect(t, sim.Options{StallMission: true})

	if err := s.UploadMission(context.Background(), testMission()); err != nil {
		t.Fatal(err)
	}
	if err := s.Launch(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.WaitForMissionCompletion(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, errdefs.ErrNotConnected) {
			t.Errorf("err = %v, want ErrNotConnected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not end after Close")
	}
}

func TestArmAndDisarmSequences(t *testing.T) {
	s, v, _ := connect(t, sim.Options{})
	ctx := context.Background()

	if err := s.ArmSequence(ctx); err != nil {
		t.Fatalf("ArmSequence: %v", err)
	}
	if !s.Armed() || s.Mode() != vehicle.ModeStabilize {
		t.Errorf("after arm: armed=%v mode=%s", s.Armed(), s.Mode())
	}

	if err := s.DisarmSequence(ctx); err != nil {
		t.Fatalf("DisarmSequence: %v", err)
	}

	want := []string{"mode:GUIDED", "arm", "mode:STABILIZE", "mode:STABILIZE", "disarm"}
	if !slices.Equal(v.History(), want) {
		t.Errorf("history = %v, want %v", v.History(), want)
	}
}

func TestServo(t *testing.T) {
	s, v, _ := connect(t, sim.Options{})

	if err := s.OpenServo(); err != nil {
		t.Fatal(err)
	}
	if got := v.Overrides()[vehicle.ChannelServo]; got != vehicle.ServoOpenPWM {
		t.Errorf("open pwm = %d", got)
	}
	if err := s.CloseServo(); err != nil {
		t.Fatal(err)
	}
	if got := v.Overrides()[vehicle.ChannelServo]; got != vehicle.ServoClosePWM {
		t.Errorf("close pwm = %d", got)
	}
}

func TestThrottleNudge(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	s, v, _ := connect(t, sim.Options{}, WithClock(fc))

	done := make(chan error, 1)
	go func() {
		done <- s.ThrottleNudge(context.Background(), 100, 2*time.Second)
	}()

	deadline := time.Now().Add(time.Second)
	for !fc.HasWaiters() {
		if time.Now().After(deadline) {
			t.Fatal("nudge never started waiting")
		}
		time.Sleep(time.Millisecond)
	}

	if got := v.Overrides()[vehicle.ChannelThrottle]; got != 100 {
		t.Errorf("throttle override during hold = %d, want 100", got)
	}

	fc.Step(time.Second)
	select {
	case <-done:
		t.Fatal("nudge released before the hold elapsed")
	case <-time.After(10 * time.Millisecond):
	}

	fc.Step(time.Second)
	if err := <-done; err != nil {
		t.Fatalf("ThrottleNudge: %v", err)
	}
	if _, ok := v.Overrides()[vehicle.ChannelThrottle]; ok {
		t.Error("throttle override still set after the hold")
	}
}

func TestCloseIdempotent(t *testing.T) {
	s, v, state := connect(t, sim.Options{})

	for i := range 2 {
		if err := s.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}

	if !v.Closed() {
		t.Error("vehicle link not closed")
	}
	if state.IsClaimed("/dev/ttyUSB0") {
		t.Error("device still claimed after Close")
	}
	if s.State() != StateDisconnected {
		t.Errorf("state = %q", s.State())
	}
	if err := s.Arm(context.Background()); !errors.Is(err, errdefs.ErrNotConnected) {
		t.Errorf("Arm after Close = %v, want ErrNotConnected", err)
	}
}
