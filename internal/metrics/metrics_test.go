package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/CheRocks42/project-re-governance-protocol/internal/metrics"
)

func TestMetrics_Record(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.IncrementPolicyDecision("", false)
	m.IncrementPolicyDecision("transfer_limit", true)
	m.IncrementPolicyDecision("transfer_limit", true)
	m.ObserveAuthorization("user", true, 800*time.Millisecond)
	m.ObserveAuthorization("user", false, time.Millisecond)
	m.SetAuthorityConnected(true)
	m.SetGhostInputs(3)
	m.AddExported(5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyDecisions.WithLabelValues("none", "allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PolicyDecisions.WithLabelValues("transfer_limit", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Authorizations.WithLabelValues("user", "signed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Authorizations.WithLabelValues("user", "aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthorityConnected))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.GhostInputs))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Exported))

	m.SetAuthorityConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AuthorityConnected))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.IncrementTransition("user", "committed")
		m.IncrementPolicyDecision("x", true)
		m.ObserveAuthorization("agent", true, time.Second)
		m.SetAuthorityConnected(true)
		m.IncrementLedgerEvent("DRAFT", "LOW")
		m.SetGhostInputs(1)
		m.AddExported(1)
		m.IncrementExportError()
	})
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.New(prometheus.NewRegistry())
		metrics.New(prometheus.NewRegistry())
	})
}
