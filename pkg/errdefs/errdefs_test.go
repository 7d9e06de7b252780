package errdefs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"mode", ErrModeTimeout, true},
		{"wrapped arm", fmt.Errorf("mother: %w", ErrArmTimeout), true},
		{"land", ErrLandTimeout, true},
		{"start", fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrStartTimeout)), true},
		{"format", ErrFormat, false},
		{"nil", nil, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
