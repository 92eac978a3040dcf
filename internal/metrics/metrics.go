package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the governance core. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Message transitions by role and resulting state
	Transitions *prometheus.CounterVec

	// Policy decisions by rule id; "none" when no rule matched
	PolicyDecisions *prometheus.CounterVec

	// Authorization outcomes by role: "signed" or "aborted"
	Authorizations *prometheus.CounterVec

	// Device round trip latency
	AuthorizeLatency prometheus.Histogram

	// 1 while the totem is connected
	AuthorityConnected prometheus.Gauge

	// Ledger appends by action state
	LedgerEvents *prometheus.CounterVec

	// Unsigned inputs admitted since the last acknowledgement
	GhostInputs prometheus.Gauge

	// Events copied to the export archive, and export failures
	Exported     prometheus.Counter
	ExportErrors prometheus.Counter
}

// New registers every metric on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "totem_message_transitions_total",
			Help: "Message state transitions by role and resulting state",
		}, []string{"role", "state"}),

		PolicyDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "totem_policy_decisions_total",
			Help: "Policy engine decisions by matching rule and outcome",
		}, []string{"rule", "outcome"}),

		Authorizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "totem_authorizations_total",
			Help: "Authority gate round trips by role and outcome",
		}, []string{"role", "outcome"}),

		AuthorizeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "totem_authorize_duration_seconds",
			Help:    "Duration of the hardware authorization round trip",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.8, 1, 2.5, 5},
		}),

		AuthorityConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "totem_authority_connected",
			Help: "1 while the hardware authority is connected",
		}),

		LedgerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "totem_ledger_events_total",
			Help: "Audit ledger appends by transition state and risk",
		}, []string{"state", "risk"}),

		GhostInputs: f.NewGauge(prometheus.GaugeOpts{
			Name: "totem_ghost_inputs",
			Help: "Unsigned inputs admitted since the last reconnect notice",
		}),

		Exported: f.NewCounter(prometheus.CounterOpts{
			Name: "totem_export_events_total",
			Help: "Audit events copied to the export archive",
		}),

		ExportErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "totem_export_errors_total",
			Help: "Failed export batches",
		}),
	}
}

// IncrementTransition records a message entering state.
func (m *Metrics) IncrementTransition(role, state string) {
	if m != nil {
		m.Transitions.WithLabelValues(role, state).Inc()
	}
}

// IncrementPolicyDecision records one Evaluate outcome.
func (m *Metrics) IncrementPolicyDecision(rule string, blocked bool) {
	if m == nil {
		return
	}
	if rule == "" {
		rule = "none"
	}
	outcome := "allowed"
	if blocked {
		outcome = "blocked"
	}
	m.PolicyDecisions.WithLabelValues(rule, outcome).Inc()
}

// ObserveAuthorization records one gate round trip.
func (m *Metrics) ObserveAuthorization(role string, signed bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "aborted"
	if signed {
		outcome = "signed"
	}
	m.Authorizations.WithLabelValues(role, outcome).Inc()
	m.AuthorizeLatency.Observe(d.Seconds())
}

// SetAuthorityConnected mirrors the gate state.
func (m *Metrics) SetAuthorityConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.AuthorityConnected.Set(1)
	} else {
		m.AuthorityConnected.Set(0)
	}
}

// IncrementLedgerEvent records one ledger append.
func (m *Metrics) IncrementLedgerEvent(state, risk string) {
	if m != nil {
		m.LedgerEvents.WithLabelValues(state, risk).Inc()
	}
}

// SetGhostInputs records the pending ghost input count.
func (m *Metrics) SetGhostInputs(n int) {
	if m != nil {
		m.GhostInputs.Set(float64(n))
	}
}

// AddExported records a successful export batch.
func (m *Metrics) AddExported(n int) {
	if m != nil {
		m.Exported.Add(float64(n))
	}
}

// IncrementExportError records a failed export batch.
func (m *Metrics) IncrementExportError() {
	if m != nil {
		m.ExportErrors.Inc()
	}
}
