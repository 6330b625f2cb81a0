package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"entityservice/api"
	"entityservice/application/entityservice"
	"entityservice/config"
	"entityservice/domain/repository"
	"entityservice/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// App wires configuration, repositories, services and the HTTP server.
type App struct {
	config   *config.Config
	router   *api.Router
	server   *http.Server
	registry *repository.Registry
	manager  *entityservice.Manager
	closers  []func(context.Context) error
}

// Manager entity services of every registered entity
func (a *App) Manager() *entityservice.Manager { return a.manager }

// Registry repositories of every registered entity
func (a *App) Registry() *repository.Registry { return a.registry }

// GetEngine gin engine, used by tests to serve requests in memory.
func (a *App) GetEngine() *gin.Engine { return a.router.GetEngine() }

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			zap.String("addr", a.server.Addr),
			zap.String("health", "/api/v1/health"))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			_ = a.Shutdown(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down server")
	}

	timeout := a.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops the server and releases the storage backend.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	_ = logger.Sync()

	if err := errors.Join(errs...); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}
