package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveRunAndPrediction(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveRun("ok", 40*time.Millisecond)
	m.ObserveRun("ok", 50*time.Millisecond)
	m.ObserveRun("decode_error", time.Millisecond)
	m.ObservePrediction("happy", 0.8)
	m.ObserveStage("extract", 10*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `emotion_runs_total{outcome="ok"} 2`)
	assert.Contains(t, body, `emotion_runs_total{outcome="decode_error"} 1`)
	assert.Contains(t, body, `emotion_predictions_total{label="happy"} 1`)
	assert.Contains(t, body, `emotion_stage_duration_seconds_count{stage="extract"} 1`)
	assert.Contains(t, body, `emotion_run_duration_seconds_count 3`)
}

func TestWrapRecordsStatus(t *testing.T) {
	t.Parallel()

	m := NewMetrics(nil)
	handler := m.Wrap("/api/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	body := scrape(t, m)
	assert.Contains(t, body, `emotion_http_requests_total{endpoint="/api/test",method="GET",status="418"} 1`)
}
