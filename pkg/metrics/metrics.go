// Package metrics exposes Prometheus instrumentation for the monitor.
//
// All methods are safe to call on a nil *Metrics, so components can take
// metrics as an optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NavarchProject/eventwatch/pkg/events"
)

// Metrics holds the monitor's collectors and the registry they live on.
type Metrics struct {
	registry *prometheus.Registry

	polls         *prometheus.CounterVec
	eventsSeen    *prometheus.CounterVec
	drainResults  *prometheus.CounterVec
	acks          *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cycleDuration prometheus.Histogram
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventwatch_polls_total",
				Help: "Scheduled events polls by result",
			},
			[]string{"result"},
		),
		eventsSeen: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventwatch_events_seen_total",
				Help: "Scheduled events observed in poll responses by type",
			},
			[]string{"type"},
		),
		drainResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventwatch_drain_results_total",
				Help: "Drain hook invocations per event by result",
			},
			[]string{"result"},
		),
		acks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventwatch_acks_total",
				Help: "Early acknowledgments by result (success, failure, simulated, skipped)",
			},
			[]string{"result"},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventwatch_cycles_total",
				Help: "Handled polling cycles by outcome",
			},
			[]string{"outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventwatch_notifications_total",
				Help: "Outbound notifications by sink and result",
			},
			[]string{"sink", "result"},
		),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventwatch_cycle_duration_seconds",
			Help:    "Time spent handling a polling cycle with events",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}

	m.registry.MustRegister(
		m.polls,
		m.eventsSeen,
		m.drainResults,
		m.acks,
		m.cycles,
		m.notifications,
		m.cycleDuration,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePoll records a poll and the events it returned.
func (m *Metrics) ObservePoll(batch *events.Batch, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.polls.WithLabelValues("error").Inc()
		return
	}
	if batch.Empty() {
		m.polls.WithLabelValues("empty").Inc()
		return
	}
	m.polls.WithLabelValues("events").Inc()
	for _, e := range batch.Events {
		m.eventsSeen.WithLabelValues(string(e.Type)).Inc()
	}
}

// ObserveDrain records one event's drain outcome.
func (m *Metrics) ObserveDrain(ok bool) {
	if m == nil {
		return
	}
	m.drainResults.WithLabelValues(resultLabel(ok)).Inc()
}

// ObserveAck records acknowledgment outcomes. result is one of success,
// failure, simulated or skipped.
func (m *Metrics) ObserveAck(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.acks.WithLabelValues(result).Add(float64(n))
}

// ObserveCycle records a handled cycle.
func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// ObserveNotification records an outbound notification.
func (m *Metrics) ObserveNotification(sink string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(sink, resultLabel(err == nil)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
