package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterValue(f *dto.MetricFamily, labelValue string) float64 {
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetValue() == labelValue {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestMetrics_RecordBacktest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordBacktest(StatusOK, 0.01, 3)
	m.RecordBacktest(StatusOK, 0.02, 2)
	m.RecordBacktest(StatusFailed, 0, 0)

	families := gather(t, reg)
	assert.Equal(t, 2.0, counterValue(families["test_backtest_runs_total"], StatusOK))
	assert.Equal(t, 1.0, counterValue(families["test_backtest_runs_total"], StatusFailed))
	assert.Equal(t, 5.0, families["test_backtest_trades_simulated_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, uint64(2), families["test_backtest_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestMetrics_CacheAndDB(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordCache("result", true)
	m.RecordCache("result", false)
	m.RecordCache("result", false)
	m.RecordDBQuery("postgres", "insert_result", 0.003, errors.New("boom"))

	families := gather(t, reg)
	assert.Equal(t, 1.0, counterValue(families["test_cache_requests_total"], "hit"))
	assert.Equal(t, 2.0, counterValue(families["test_cache_requests_total"], "miss"))
	assert.Equal(t, 1.0, counterValue(families["test_database_query_errors_total"], "insert_result"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordBacktest(StatusOK, 1, 1)
	m.RecordRun(StatusOK, 1, 1)
	m.RecordCache("x", true)
	m.RecordIngestionEvent(StatusOK)
	m.RecordDBQuery("pg", "op", 1, nil)
	m.JobStarted()
	m.JobFinished()
	m.RecordSeriesBuild()
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}
