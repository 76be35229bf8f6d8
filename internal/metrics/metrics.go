// Package metrics exports bootstrap run counters to Prometheus.
package metrics

import (
	"time"

	"bootfit/internal/bootstrap"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "bootfit"
	subsystem = "bootstrap"
)

// BootstrapMetrics implements bootstrap.Observer. All operations are safe for
// concurrent use through the collectors' own locking.
type BootstrapMetrics struct {
	AttemptsTotal   *prometheus.CounterVec
	WorkersTotal    *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	IterationsTotal prometheus.Counter
	ActiveRuns      prometheus.Gauge
}

var _ bootstrap.Observer = (*BootstrapMetrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*BootstrapMetrics, error) {
	m := &BootstrapMetrics{
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Refit attempts by outcome (accepted, rejected, failed)",
		}, []string{"outcome"}),
		WorkersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workers_total",
			Help:      "Finished workers by status (ok, failed)",
		}, []string{"status"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Finished bootstrap runs by completeness (complete, partial)",
		}, []string{"completeness"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall time of bootstrap runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1200},
		}),
		IterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "iterations_total",
			Help:      "Accepted iterations across finished runs",
		}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_runs",
			Help:      "Bootstrap runs currently executing",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.AttemptsTotal, m.WorkersTotal, m.RunsTotal, m.RunDuration, m.IterationsTotal, m.ActiveRuns,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AttemptFinished counts one refit attempt.
func (m *BootstrapMetrics) AttemptFinished(kind bootstrap.OutcomeKind) {
	m.AttemptsTotal.WithLabelValues(kind.String()).Inc()
}

// WorkerFinished counts one worker.
func (m *BootstrapMetrics) WorkerFinished(failed bool) {
	status := "ok"
	if failed {
		status = "failed"
	}
	m.WorkersTotal.WithLabelValues(status).Inc()
}

// RunFinished records a merged run.
func (m *BootstrapMetrics) RunFinished(result *bootstrap.Result, elapsed time.Duration) {
	completeness := "complete"
	if result.Partial {
		completeness = "partial"
	}
	m.RunsTotal.WithLabelValues(completeness).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.IterationsTotal.Add(float64(result.NumIteration))
}

// RunStarted and RunStopped bracket a service-level run.
func (m *BootstrapMetrics) RunStarted() { m.ActiveRuns.Inc() }

func (m *BootstrapMetrics) RunStopped() { m.ActiveRuns.Dec() }
