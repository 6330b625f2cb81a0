package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"entityservice/config"
	"entityservice/infrastructure/persistence/retry"
	"entityservice/pkg/logger"
)

const DefaultConnectTimeout = 10 * time.Second

// Connect connects and pings the server, retrying per rc.
func Connect(ctx context.Context, cfg config.MongoConfig, rc retry.Config) (*mongo.Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	opts := options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout)

	var client *mongo.Client
	err := retry.ExecuteWithRetry(ctx, rc, func(ctx context.Context) error {
		c, err := mongo.Connect(opts)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := c.Ping(pingCtx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			logger.Warn("MongoDB ping failed", zap.String("database", cfg.Database), zap.Error(err))
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	logger.Info("MongoDB connected", zap.String("database", cfg.Database))
	return client, nil
}
