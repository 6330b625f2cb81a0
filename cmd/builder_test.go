package cmd_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"entityservice/cmd"
	"entityservice/config"
	tasks "entityservice/examples/minimal-service/api"
	"entityservice/examples/minimal-service/domain"
	"entityservice/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Name: "entityservice-test", Version: "0.0.1", Env: "test"},
		Server:    config.ServerConfig{Port: "0"},
		Database:  config.DatabaseConfig{Type: config.DatabaseMemory},
		Log:       config.LogConfig{Level: "debug", Output: "stdout"},
		Paginator: config.PaginatorConfig{DefaultPageSize: 20, MaxPageSize: 100},
	}
}

func build(t *testing.T, cfg *config.Config) *cmd.App {
	t.Helper()
	t.Cleanup(func() { logger.SetLogger(nil) })

	app, err := tasks.Setup(cmd.NewBuilder(cfg).WithLogger(zaptest.NewLogger(t))).Build(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func call(engine *gin.Engine, method, target, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:5000"
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestBuild_MemoryBackend(t *testing.T) {
	app := build(t, memoryConfig())
	engine := app.GetEngine()

	w := call(engine, http.MethodPost, "/api/v1/tasks", `{"title":"write docs","labels":["Docs"," urgent "]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var created struct {
		Data struct {
			ID     string   `json:"id"`
			Status string   `json:"status"`
			Labels []string `json:"labels"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, domain.StatusOpen, created.Data.Status)
	assert.Equal(t, []string{"docs", "urgent"}, created.Data.Labels)

	w = call(engine, http.MethodGet, "/api/v1/entities/Task/"+created.Data.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "write docs")

	w = call(engine, http.MethodGet, "/api/v1/entities/Label", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "labels stay internal")

	w = call(engine, http.MethodGet, "/api/v1/tasks/open/count", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"open":1`)

	w = call(engine, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestBuild_ManagerServesRegisteredEntities(t *testing.T) {
	app := build(t, memoryConfig())

	assert.True(t, app.Registry().Has(domain.TaskEntity))
	assert.True(t, app.Registry().Has(domain.LabelEntity))

	svc, err := app.Manager().Get(domain.TaskEntity)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskEntity, svc.EntityName())
	assert.False(t, svc.IsTransactionEnabled())

	_, err = app.Manager().Get("Unknown")
	assert.Error(t, err)
}

func TestBuild_UnknownDatabaseType(t *testing.T) {
	t.Cleanup(func() { logger.SetLogger(nil) })
	cfg := memoryConfig()
	cfg.Database.Type = "cassandra"

	_, err := cmd.NewBuilder(cfg).WithLogger(zaptest.NewLogger(t)).Build(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}
