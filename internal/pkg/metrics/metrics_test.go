package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/autopeer-io/groundpeer/pkg/errdefs"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{fmt.Errorf("top: %w", errdefs.ErrArmTimeout), "timeout"},
		{errors.New("link lost"), "failed"},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRecorder(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("bottom", "land", "timeout"))

	Recorder{}.ObserveAction("bottom", "land", 10*time.Second, errdefs.ErrLandTimeout)

	after := testutil.ToFloat64(OperationsTotal.WithLabelValues("bottom", "land", "timeout"))
	if after-before != 1 {
		t.Errorf("counter moved by %v, want 1", after-before)
	}
}
