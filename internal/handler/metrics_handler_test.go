package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-activity-planner/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	h := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{"database": up, "redis": nil})
	c, w := newTestContext(httptest.NewRequest(http.MethodGet, "/ready", nil), nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]Pinger{"database": up, "redis": down})
	c, w = newTestContext(httptest.NewRequest(http.MethodGet, "/ready", nil), nil)
	h.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"database": "ok", "redis": "connection refused"}, body.Checks)
}

func TestMetricsHandlerEndpoints(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), nil)

	c, w := newTestContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	h.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines")

	c, w = newTestContext(httptest.NewRequest(http.MethodGet, "/metrics/snapshot", nil), nil)
	h.Snapshot(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"plan_runs":0`)

	c, w = newTestContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
