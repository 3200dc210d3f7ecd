package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"corpflow-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriticalStoreFailureMakesSystemUnhealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := NewChecker(logger.Discard(), time.Minute)

	storeErr := errors.New("connection refused")
	checker.RegisterStoreCheck(func(context.Context) error { return storeErr })
	checker.RegisterRedisCheck(func(context.Context) error { return errors.New("no redis") })
	checker.RunChecks(context.Background())

	assert.False(t, checker.IsSystemHealthy())
	status := checker.GetStatus()
	assert.Equal(t, StatusDown, status["store"].Status)
	assert.Equal(t, StatusDegraded, status["redis"].Status)

	r := gin.New()
	r.GET("/health", checker.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	storeErr = nil
	checker.RunChecks(context.Background())
	assert.True(t, checker.IsSystemHealthy())
}

func TestAPICheck(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	checker := NewChecker(logger.Discard(), time.Minute)
	checker.RegisterAPICheck("ai", upstream.URL, nil)
	checker.RunChecks(context.Background())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", checker.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Components map[string]Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, StatusUp, body.Components["api-ai"].Status)
	assert.Equal(t, StatusUp, body.Components["self"].Status)
}
