package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPollMetricsRegisterPerRegistry(t *testing.T) {
	require := require.New(t)

	// two registries must not collide
	m1 := NewPollMetrics(prometheus.NewRegistry(), "ballot", "poll")
	m2 := NewPollMetrics(prometheus.NewRegistry(), "ballot", "poll")

	m1.Operations.WithLabelValues("vote", "ok").Inc()
	m1.Operations.WithLabelValues("vote", "ok").Inc()
	m2.Operations.WithLabelValues("vote", "ok").Inc()

	require.Equal(2.0, testutil.ToFloat64(m1.Operations.WithLabelValues("vote", "ok")))
	require.Equal(1.0, testutil.ToFloat64(m2.Operations.WithLabelValues("vote", "ok")))
}

func TestAuditMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuditMetrics(reg, "ballot", "audit")
	m.Violations.WithLabelValues("p1", "duplicate_voter").Inc()

	n, err := testutil.GatherAndCount(reg, "ballot_audit_violations_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
