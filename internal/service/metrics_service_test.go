package service

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServicePlanRuns(t *testing.T) {
	m := NewMetricsService()
	m.ObservePlanRun("Optimal", 2*time.Second, 3, []string{"overlap", "overlap", "capacity"})
	m.ObservePlanRun("Infeasible", 1*time.Second, 0, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.planRuns.WithLabelValues("Optimal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.planRuns.WithLabelValues("Infeasible")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.inputWarnings))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.consistency.WithLabelValues("overlap")))

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.PlanRuns)
	assert.InDelta(t, 1500.0, snap.AverageSolveDuration, 1e-6)
}

func TestMetricsServiceCacheRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	assert.InDelta(t, 2.0/3.0, testutil.ToFloat64(m.cacheHitRatio), 1e-9)
	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/plans/:id", 200, 10*time.Millisecond)
	m.ObserveJob("plans", "success", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
	assert.Contains(t, rec.Body.String(), "queue_job_duration_seconds")

	var nilMetrics *MetricsService
	rec = httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 503, rec.Code)
	nilMetrics.ObservePlanRun("Optimal", time.Second, 0, nil)
}
