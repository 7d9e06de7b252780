package options

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"127.0.0.1:8087", false},
		{":8087", false},
		{"localhost:0", false},
		{"8087", true},
		{"127.0.0.1:http", true},
		{"127.0.0.1:70000", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if err := ValidateAddress(tt.addr); (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	if got := join("serial.baud"); got != "serial.baud" {
		t.Errorf("got %q", got)
	}
	if got := join("serial.baud", "station", "", "edge"); got != "station.edge.serial.baud" {
		t.Errorf("got %q", got)
	}
}

func TestAddFlagsWithPrefix(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o := NewSerialOptions()
	o.AddFlags(fs, "follower")

	if err := fs.Parse([]string{"--follower.serial.baud=115200", "--follower.serial.devices=/dev/ttyACM0,/dev/ttyACM1"}); err != nil {
		t.Fatal(err)
	}
	if o.Baud != 115200 || len(o.Devices) != 2 {
		t.Errorf("parsed %+v", o)
	}
}

func TestOptionalGroupsSkipValidationWhenDisabled(t *testing.T) {
	groups := []IOptions{NewMqttOptions(), NewS3Options(), NewJournalOptions(), NewSerialOptions(), NewHttpOptions()}
	for _, g := range groups {
		if errs := g.Validate(); len(errs) != 0 {
			t.Errorf("%T: unexpected errors %v", g, errs)
		}
	}

	s3 := NewS3Options()
	s3.Endpoint = "minio.local:9000"
	if errs := s3.Validate(); len(errs) != 1 {
		t.Errorf("s3 without credentials: %v", errs)
	}
}
