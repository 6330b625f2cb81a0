package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"entityservice/api/response"
	"entityservice/config"
	"entityservice/domain/repository"
	"entityservice/infrastructure/persistence"
	"entityservice/pkg/logger"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(nil) })
	return logs
}

func serve(engine *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping?x=1", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestIDMiddleware())

	var fromGin, fromCtx string
	engine.GET("/ping", func(c *gin.Context) {
		fromGin = response.GetRequestID(c)
		fromCtx = persistence.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := serve(engine, "req-42")
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", fromGin)
	assert.Equal(t, "req-42", fromCtx, "propagated to the request context")

	w = serve(engine, "")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	assert.Equal(t, fromGin, fromCtx)
}

func TestUnitOfWorkMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(UnitOfWorkMiddleware())

	var units []*repository.UnitOfWork
	engine.GET("/ping", func(c *gin.Context) {
		units = append(units, repository.UnitOfWorkFromContext(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	serve(engine, "")
	serve(engine, "")
	require.Len(t, units, 2)
	assert.NotNil(t, units[0])
	assert.NotNil(t, units[1])
	assert.NotSame(t, units[0], units[1], "one unit of work per request")
}

func TestLoggingMiddleware(t *testing.T) {
	logs := observe(t)
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestIDMiddleware(), LoggingMiddleware())
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	serve(engine, "req-1")

	entries := logs.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/ping?x=1", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestRecoveryMiddleware(t *testing.T) {
	logs := observe(t)
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestIDMiddleware(), RecoveryMiddleware())
	engine.GET("/ping", func(*gin.Context) { panic("boom") })

	w := serve(engine, "req-2")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"request_id":"req-2"`)
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestRateLimitMiddleware(t *testing.T) {
	observe(t)
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RateLimitMiddleware(&config.RateLimitConfig{Enabled: true, Rate: 0.001, Burst: 2}))
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(engine, "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, "").Code)
	w := serve(engine, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RateLimitMiddleware(&config.RateLimitConfig{Enabled: false, Rate: 0, Burst: 0}))
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(engine, "").Code)
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}
