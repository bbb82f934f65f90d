package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLive(t *testing.T) {
	h := NewHandler(time.Now().Add(-time.Minute), ":8080", "memory")
	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body liveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.GreaterOrEqual(t, body.UptimeSec, int64(59))
}

func TestReadyReportsFailingDependency(t *testing.T) {
	h := NewHandler(time.Now(), ":8080", "postgres").
		WithCheck("redis", func(context.Context) error { return nil }).
		WithCheck("database", func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body readinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.True(t, body.Dependencies["redis"].Reachable)
	assert.False(t, body.Dependencies["database"].Reachable)
	assert.Equal(t, "connection refused", body.Dependencies["database"].Error)
}

func TestReadyWithoutDependencies(t *testing.T) {
	h := NewHandler(time.Now(), ":8080", "memory")
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFull(t *testing.T) {
	h := NewHandler(time.Now(), ":9090", "memory")
	rec := httptest.NewRecorder()
	h.Full(rec, httptest.NewRequest(http.MethodGet, "/v1/internal/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body fullResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, ":9090", body.App.HTTPAddr)
	assert.Equal(t, "memory", body.App.Storage)
	assert.Nil(t, body.Pool)
	assert.NotEmpty(t, body.Runtime.GoVersion)
}
