// Package metrics holds the Prometheus collectors the trip engine reports to.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "busline"

// Metrics is a set of collectors registered on a private registry, so tests
// can build as many as they like without clashing on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	Transitions      *prometheus.CounterVec
	SafetyGateBlocks prometheus.Counter
	Overrides        *prometheus.CounterVec
	Conflicts        *prometheus.CounterVec
	BulkItems        *prometheus.CounterVec
	AuditFailures    prometheus.Counter
	DispatchFailures *prometheus.CounterVec
	DispatchDropped  *prometheus.CounterVec
}

// Override kinds reported on the overrides counter.
const (
	OverrideVehicleConflict = "vehicle_conflict"
	OverrideStaffConflict   = "staff_conflict"
	OverrideSafetyGate      = "safety_gate"
)

// New creates and registers every collector, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trip_transitions_total",
			Help:      "Committed trip status transitions.",
		}, []string{"from", "to"}),
		SafetyGateBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_gate_blocks_total",
			Help:      "Departures blocked by the pre-trip inspection gate.",
		}),
		Overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overrides_total",
			Help:      "Accepted overrides of advisory blocks.",
		}, []string{"kind"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_conflicts_total",
			Help:      "Scheduling conflicts found, by resource kind.",
		}, []string{"resource"}),
		BulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_items_total",
			Help:      "Bulk operation item outcomes.",
		}, []string{"action", "outcome"}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit entries that could not be written after commit.",
		}),
		DispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Side effects that failed after all retries.",
		}, []string{"kind"}),
		DispatchDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_dropped_total",
			Help:      "Side effects dropped because the queue was full.",
		}, []string{"kind"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Transitions,
		m.SafetyGateBlocks,
		m.Overrides,
		m.Conflicts,
		m.BulkItems,
		m.AuditFailures,
		m.DispatchFailures,
		m.DispatchDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
