package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Statements.WithLabelValues(StatusOK).Inc()
	m.Statements.WithLabelValues(StatusOK).Inc()
	m.OrdersSaved.Add(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Statements.WithLabelValues(StatusOK)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.OrdersSaved))

	// Separate instances do not share state.
	assert.Equal(t, 0.0, testutil.ToFloat64(New().OrdersSaved))
}

func TestHandler(t *testing.T) {
	m := New()
	m.AnalysisRuns.WithLabelValues("week").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rf_history_analysis_runs_total{window="week"} 1`)
}
