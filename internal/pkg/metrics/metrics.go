package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/autopeer-io/groundpeer/pkg/errdefs"
)

// Registry holds every groundpeer collector. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// ClaimedDevices is the number of serial devices held by a session.
	ClaimedDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundpeer_claimed_devices",
			Help: "Number of serial devices currently claimed by a vehicle session.",
		},
	)

	// OperationsTotal counts operator actions per role and outcome.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundpeer_operations_total",
			Help: "Total number of vehicle operations by role, action and status.",
		},
		[]string{"role", "action", "status"}, // status: success/failed/timeout
	)

	// OperationDuration records how long each action took, waits included.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groundpeer_operation_duration_seconds",
			Help:    "Duration of vehicle operations, including their polls.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300, 900},
		},
		[]string{"action"},
	)

	// SinkDropped counts status lines discarded because no one was reading.
	SinkDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "groundpeer_log_lines_dropped_total",
			Help: "Status lines dropped from the log sink on overflow.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ClaimedDevices,
		OperationsTotal,
		OperationDuration,
		SinkDropped,
	)
}

// Recorder feeds operation outcomes into the collectors above.
type Recorder struct{}

// ObserveAction records one finished operation.
func (Recorder) ObserveAction(role, action string, elapsed time.Duration, err error) {
	OperationsTotal.WithLabelValues(role, action, Status(err)).Inc()
	OperationDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// Status maps an operation error to its status label.
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errdefs.IsTimeout(err):
		return "timeout"
	default:
		return "failed"
	}
}
