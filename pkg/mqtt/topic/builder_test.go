package topic

import "testing"

func TestBuilder(t *testing.T) {
	b := NewBuilder("gcs/v1")

	tests := []struct {
		got, want string
	}{
		{b.Command("mother"), "gcs/v1/command/mother"},
		{b.CommandWildcard(), "gcs/v1/command/+"},
		{b.CommandAck("top"), "gcs/v1/command/ack/top"},
		{b.Log("bottom"), "gcs/v1/log/bottom"},
		{b.Status("station-1"), "gcs/v1/status/station-1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestLast(t *testing.T) {
	for in, want := range map[string]string{
		"gcs/v1/command/mother": "mother",
		"mother":                "mother",
		"gcs/v1/command/":       "",
	} {
		if got := Last(in); got != want {
			t.Errorf("Last(%q) = %q, want %q", in, got, want)
		}
	}
}
