package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	cliflag "k8s.io/component-base/cli/flag"
)

type testOptions struct {
	Serial struct {
		Baud    int           `mapstructure:"baud"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"serial"`
	Name string `mapstructure:"name"`

	completed bool
	invalid   bool
}

func newTestOptions() *testOptions {
	o := &testOptions{Name: "station"}
	o.Serial.Baud = 57600
	o.Serial.Timeout = 90 * time.Second
	return o
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("serial")
	fs.IntVar(&o.Serial.Baud, "serial.baud", o.Serial.Baud, "baud")
	fs.DurationVar(&o.Serial.Timeout, "serial.timeout", o.Serial.Timeout, "timeout")
	fss.FlagSet("misc").StringVar(&o.Name, "name", o.Name, "name")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	if o.invalid || o.Serial.Baud <= 0 {
		return errors.New("invalid")
	}
	return nil
}

func execute(t *testing.T, opts *testOptions, run RunFunc, args ...string) error {
	t.Helper()
	a := NewApp("gpeer-test", "test", WithOptions(opts), WithRunFunc(run), WithDefaultValidArgs(), WithSilence())
	a.Command().SetArgs(args)
	return a.Command().Execute()
}

func TestFlagsOverrideDefaults(t *testing.T) {
	opts := newTestOptions()
	ran := false

	err := execute(t, opts, func() error { ran = true; return nil }, "--serial.baud=115200", "--serial.timeout=5s")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ran || !opts.completed {
		t.Fatalf("ran=%v completed=%v", ran, opts.completed)
	}
	if opts.Serial.Baud != 115200 || opts.Serial.Timeout != 5*time.Second || opts.Name != "station" {
		t.Errorf("options = %+v", opts)
	}
}

func TestConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpeer.yaml")
	data := "serial:\n  baud: 9600\n  timeout: 30s\nname: from-file\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GPEER_NAME", "from-env")

	opts := newTestOptions()
	if err := execute(t, opts, nil, "--config", path); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if opts.Serial.Baud != 9600 || opts.Serial.Timeout != 30*time.Second {
		t.Errorf("serial = %+v, want values from the file", opts.Serial)
	}
	if opts.Name != "from-env" {
		t.Errorf("name = %q, want the environment to win over the file", opts.Name)
	}
}

func TestFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		args []string
		run  RunFunc
		prep func(*testOptions)
	}{
		{name: "positional args", args: []string{"extra"}},
		{name: "missing config file", args: []string{"--config", "/nonexistent/gpeer.yaml"}},
		{name: "validation", prep: func(o *testOptions) { o.invalid = true }},
		{name: "run error", run: func() error { return boom }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := newTestOptions()
			if tt.prep != nil {
				tt.prep(opts)
			}
			if err := execute(t, opts, tt.run, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
