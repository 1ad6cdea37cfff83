package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokeshec23/GC-AI/internal/metrics"
)

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.ChunkResolved("openai", "ok")
	m.ChunkResolved("openai", "failed")
	m.ProviderCall("gemini", "rate_limited", 250*time.Millisecond)
	m.JobStarted()
	m.JobFinished("ingest", "completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	assert.Contains(t, out, `guideline_chunks_total{provider="openai",status="ok"} 1`)
	assert.Contains(t, out, `guideline_chunks_total{provider="openai",status="failed"} 1`)
	assert.Contains(t, out, `guideline_provider_call_seconds_count{outcome="rate_limited",provider="gemini"} 1`)
	assert.Contains(t, out, `guideline_sessions_total{kind="ingest",status="completed"} 1`)
	assert.Contains(t, out, "guideline_active_jobs 0")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ChunkResolved("openai", "ok")
		m.ProviderCall("openai", "ok", time.Second)
		m.JobStarted()
		m.JobFinished("compare", "failed")
	})
}
