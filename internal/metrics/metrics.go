// Package metrics exposes Prometheus collectors for the reminder engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "memoria"

// Metrics groups the engine's collectors. A nil *Metrics is valid and
// records nothing, so callers never need to check.
type Metrics struct {
	ticks            prometheus.Counter
	tickDuration     prometheus.Histogram
	triggers         *prometheus.CounterVec
	evalFailures     prometheus.Counter
	markerFailures   prometheus.Counter
	dispatchFailures prometheus.Counter
	activeReminders  prometheus.Gauge
}

// New constructs Metrics and registers the collectors with reg. Tests should
// pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Number of reminder evaluation passes.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Time spent evaluating all registered reminders.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "triggers_total",
			Help:      "Trigger events produced, by reminder frequency.",
		}, []string{"frequency"}),
		evalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluation_failures_total",
			Help:      "Reminders that could not be evaluated during a tick.",
		}),
		markerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "mark_fired_failures_total",
			Help:      "Failures persisting last_triggered for once reminders.",
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dispatch_failures_total",
			Help:      "Trigger events the notification dispatcher failed to deliver.",
		}),
		activeReminders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "active_reminders",
			Help:      "Reminders currently registered for evaluation.",
		}),
	}

	collectors := []prometheus.Collector{
		m.ticks, m.tickDuration, m.triggers, m.evalFailures,
		m.markerFailures, m.dispatchFailures, m.activeReminders,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveTick records one evaluation pass.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) IncTrigger(frequency string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(frequency).Inc()
}

func (m *Metrics) IncEvalFailure() {
	if m == nil {
		return
	}
	m.evalFailures.Inc()
}

func (m *Metrics) IncMarkerFailure() {
	if m == nil {
		return
	}
	m.markerFailures.Inc()
}

func (m *Metrics) IncDispatchFailure() {
	if m == nil {
		return
	}
	m.dispatchFailures.Inc()
}

func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.activeReminders.Set(float64(n))
}
