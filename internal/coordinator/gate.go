package coordinator

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/groundpeer/internal/pkg/util/poll"
	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/pkg/log"
)

// TelemetrySource is a session whose vehicle link can carry listeners.
type TelemetrySource interface {
	Role() string
	Vehicle() (vehicle.Vehicle, error)
}

// WaitForTelemetryThreshold blocks until field of msgType on leader reports
// a value at or above threshold, checking the latest value every interval.
// There is no timeout of its own; it returns early only when ctx ends.
func WaitForTelemetryThreshold(ctx context.Context, leader TelemetrySource, msgType, field string, threshold float64, interval time.Duration) error {
	v, err := leader.Vehicle()
	if err != nil {
		return err
	}

	var (
		latest atomic.Uint64
		seen   atomic.Bool
	)
	remove := v.AddMessageListener(msgType, func(m vehicle.Message) {
		if val, ok := m.Fields[field]; ok {
			latest.Store(math.Float64bits(val))
			seen.Store(true)
		}
	})
	defer remove()

	logger := log.WithValues("role", leader.Role(), "message", msgType, "field", field)
	logger.Info("Waiting for telemetry threshold", "threshold", threshold)

	err = poll.Until(ctx, interval, 0, func(context.Context) (bool, error) {
		return seen.Load() && math.Float64frombits(latest.Load()) >= threshold, nil
	})
	if err != nil {
		return fmt.Errorf("wait for %s %s.%s >= %v: %w", leader.Role(), msgType, field, threshold, err)
	}

	logger.Info("Telemetry threshold reached", "value", math.Float64frombits(latest.Load()))
	return nil
}
