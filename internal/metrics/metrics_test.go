package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The collectors register on the default registry, so any process that
// mounts promhttp.Handler() exposes them.
func TestCollectorsScrapable(t *testing.T) {
	JobsTotal.WithLabelValues("completed").Inc()
	StageSeconds.WithLabelValues("fetch").Observe(0.25)
	ChunksDropped.Inc()
	QueriesTotal.WithLabelValues("answered").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "askpdf_ingest_jobs_total")
	assert.Contains(t, body, "askpdf_ingest_stage_seconds")
	assert.Contains(t, body, "askpdf_chunks_dropped_total")
	assert.Contains(t, body, "askpdf_queries_total")
}
