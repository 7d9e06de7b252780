package archive

import (
	"testing"
	"time"

	"github.com/autopeer-io/groundpeer/pkg/options"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2025, 3, 9, 14, 5, 7, 0, time.FixedZone("KST", 9*3600))

	tests := []struct {
		name string
		role string
		file string
		want string
	}{
		{name: "plain", role: "mother", file: "attemp.waypoints", want: "mother/20250309T050507Z-attemp.waypoints"},
		{name: "directory stripped", role: "top", file: "/var/lib/gpeer/TDWP.waypoints", want: "top/20250309T050507Z-TDWP.waypoints"},
		{name: "windows path", role: "bottom", file: `C:\missions\BDWP.waypoints`, want: "bottom/20250309T050507Z-BDWP.waypoints"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObjectKey(tt.role, tt.file, at); got != tt.want {
				t.Errorf("ObjectKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewMinIO(t *testing.T) {
	opts := options.NewS3Options()
	opts.Endpoint = "localhost:9000"
	opts.AccessKeyID = "key"
	opts.SecretAccessKey = "secret"

	m, err := NewMinIO(opts)
	if err != nil {
		t.Fatalf("NewMinIO: %v", err)
	}
	if m.bucketName != "missions" {
		t.Errorf("bucket = %q", m.bucketName)
	}

	opts.Endpoint = "http://bad endpoint"
	if _, err := NewMinIO(opts); err == nil {
		t.Error("expected an error for an invalid endpoint")
	}
}
