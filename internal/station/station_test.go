package station

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/autopeer-io/groundpeer/internal/coordinator"
	"github.com/autopeer-io/groundpeer/internal/journal"
	"github.com/autopeer-io/groundpeer/internal/ports"
	"github.com/autopeer-io/groundpeer/internal/profile"
	"github.com/autopeer-io/groundpeer/internal/vehicle/mavlink"
	"github.com/autopeer-io/groundpeer/internal/vehicle/sim"
	"github.com/autopeer-io/groundpeer/pkg/options"
)

func newConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{
		StationID:      "test-station",
		HttpOptions:    options.NewHttpOptions(),
		MqttOptions:    options.NewMqttOptions(),
		S3Options:      options.NewS3Options(),
		JournalOptions: options.NewJournalOptions(),
		SerialOptions:  options.NewSerialOptions(),
		Profiles:       profile.Defaults(),
		MissionDir:     t.TempDir(),
		AutoConnect:    true,
		SinkSize:       16,
	}
	cfg.HttpOptions.Enabled = false
	cfg.SerialOptions.Simulate = true
	cfg.SerialOptions.ConnectTimeout = time.Second
	cfg.JournalOptions.Path = filepath.Join(cfg.MissionDir, "journal.db")
	return cfg
}

func TestRunSimulated(t *testing.T) {
	cfg := newConfig(t)
	s, err := cfg.NewStation()
	if err != nil {
		t.Fatalf("NewStation: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Coordinator().Sessions()) < 3 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("auto connect reached %d sessions", len(s.Coordinator().Sessions()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Coordinator().Do(ctx, coordinator.RoleTop, coordinator.ActionServoOpen); err != nil {
		t.Fatalf("servo-open: %v", err)
	}
	if got := s.state.Claimed(); len(got) != 3 {
		t.Errorf("claimed = %v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := s.state.Claimed(); len(got) != 0 {
		t.Errorf("claims left after shutdown: %v", got)
	}

	j := journal.New(cfg.JournalOptions.Path)
	defer j.Close()
	entries, err := j.List(context.Background(), "top", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "servo-open" || entries[0].Status != "success" {
		t.Errorf("journal = %+v", entries)
	}
}

func TestUploadedFile(t *testing.T) {
	cfg := newConfig(t)
	s, err := cfg.NewStation()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		action string
		want   string
	}{
		{action: "upload", want: filepath.Join(cfg.MissionDir, "TDWP.waypoints")},
		{action: "upload-model", want: filepath.Join(cfg.MissionDir, "model.waypoints")},
		{action: "arm", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			if got := s.uploadedFile("top", tt.action); got != tt.want {
				t.Errorf("uploadedFile(top, %s) = %q, want %q", tt.action, got, tt.want)
			}
		})
	}
}

func TestNewStationArchiveConfig(t *testing.T) {
	cfg := newConfig(t)
	cfg.S3Options.Endpoint = "localhost:9000"
	cfg.S3Options.AccessKeyID = "key"
	cfg.S3Options.SecretAccessKey = "secret"

	s, err := cfg.NewStation()
	if err != nil {
		t.Fatalf("NewStation: %v", err)
	}
	if s.archive == nil || s.recorder == nil {
		t.Error("archive not wired")
	}
}

func TestLink(t *testing.T) {
	tests := []struct {
		name     string
		devices  []string
		simulate bool
		want     []string
	}{
		{name: "simulated defaults", simulate: true, want: []string{"sim0", "sim1", "sim2"}},
		{name: "simulated fixed", devices: []string{"a"}, simulate: true, want: []string{"a"}},
		{name: "fixed serial", devices: []string{"/dev/ttyUSB3"}, want: []string{"/dev/ttyUSB3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options.NewSerialOptions()
			opts.Devices = tt.devices
			opts.Simulate = tt.simulate

			enum, dialer := Link(opts)
			got, err := enum.List()
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("devices = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("devices = %v, want %v", got, tt.want)
				}
			}

			_, isSim := dialer.(*sim.Dialer)
			_, isMAV := dialer.(*mavlink.Dialer)
			if isSim != tt.simulate || isMAV == tt.simulate {
				t.Errorf("dialer = %T, simulate = %v", dialer, tt.simulate)
			}
		})
	}

	if enum, _ := Link(options.NewSerialOptions()); enum != (ports.SerialEnumerator{}) {
		t.Errorf("default enumerator = %T", enum)
	}
}
