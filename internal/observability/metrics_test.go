package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue reads the current value of a counter via the client_model DTO.
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewMetricsWith(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith("docrouter", reg)

	require.NotNil(t, m)

	m.RunsStarted.WithLabelValues("llm").Inc()
	m.RunsStarted.WithLabelValues("llm").Inc()
	m.ItemsExecuted.WithLabelValues("llm", "completed").Add(5)
	m.AnalysisProbes.WithLabelValues("miss").Inc()

	assert.Equal(t, 2.0, counterValue(t, m.RunsStarted.WithLabelValues("llm")))
	assert.Equal(t, 5.0, counterValue(t, m.ItemsExecuted.WithLabelValues("llm", "completed")))
	assert.Equal(t, 1.0, counterValue(t, m.AnalysisProbes.WithLabelValues("miss")))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["docrouter_runs_started_total"])
	assert.True(t, names["docrouter_items_executed_total"])
	assert.True(t, names["docrouter_analysis_probes_total"])
}

func TestNewMetricsWithSeparateRegistries(t *testing.T) {
	// Registering twice against distinct registries must not panic.
	assert.NotPanics(t, func() {
		NewMetricsWith("docrouter", prometheus.NewRegistry())
		NewMetricsWith("docrouter", prometheus.NewRegistry())
	})
}
