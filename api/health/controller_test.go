package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entityservice/config"
)

func engineWith(env string, checks map[string]Checker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{App: config.AppConfig{Name: "entityservice", Version: "1.2.3", Env: env}}
	engine := gin.New()
	NewController(cfg, checks).RegisterRoutes(engine.Group(""))
	return engine
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth_AllHealthy(t *testing.T) {
	engine := engineWith("development", map[string]Checker{
		"database": func(context.Context) error { return nil },
	})

	w := get(engine, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "healthy", resp.Checks["database"].Status)
	require.NotNil(t, resp.System, "system info in development")
}

func TestHealth_Unhealthy(t *testing.T) {
	engine := engineWith("production", map[string]Checker{
		"database": func(context.Context) error { return nil },
		"mongodb":  func(context.Context) error { return errors.New("connection refused") },
	})

	w := get(engine, "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["mongodb"].Message)
	assert.Nil(t, resp.System)
}

func TestHealth_CheckTimesOut(t *testing.T) {
	engine := engineWith("test", map[string]Checker{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	w := get(engine, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "slow not available")
}

func TestLivenessAndReadiness(t *testing.T) {
	engine := engineWith("test", nil)

	w := get(engine, "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())

	w = get(engine, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
}
