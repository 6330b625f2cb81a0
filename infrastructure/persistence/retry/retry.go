// Package retry retries connection setup and gorm transactions with
// exponential backoff on transient MySQL failures.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"entityservice/config"
	"entityservice/domain/shared"
)

type Config struct {
	Enabled                       bool
	MaxAttempts                   int
	InitialDelay                  time.Duration
	MaxDelay                      time.Duration
	BackoffFactor                 float64
	JitterEnabled                 bool
	RetryOnConcurrentModification bool
	RetryOnDeadlock               bool
	RetryOnLockTimeout            bool
	RetryOnConnectionFailure      bool
	RetryPredicate                func(error) bool
}

var DefaultConfig = Config{
	Enabled:                       true,
	MaxAttempts:                   3,
	InitialDelay:                  100 * time.Millisecond,
	MaxDelay:                      2 * time.Second,
	BackoffFactor:                 2.0,
	JitterEnabled:                 true,
	RetryOnConcurrentModification: true,
	RetryOnDeadlock:               true,
	RetryOnLockTimeout:            true,
	RetryOnConnectionFailure:      true,
}

func FromAppConfig(rc config.RetryConfig) Config {
	return Config{
		Enabled:                       rc.Enabled,
		MaxAttempts:                   rc.MaxAttempts,
		InitialDelay:                  rc.InitialDelay,
		MaxDelay:                      rc.MaxDelay,
		BackoffFactor:                 rc.BackoffFactor,
		JitterEnabled:                 rc.JitterEnabled,
		RetryOnConcurrentModification: rc.RetryOnConcurrentModification,
		RetryOnDeadlock:               rc.RetryOnDeadlock,
		RetryOnLockTimeout:            rc.RetryOnLockTimeout,
		RetryOnConnectionFailure:      rc.RetryOnConnectionFailure,
	}
}

func ExponentialBackoffWithJitter(attempt int, cfg Config) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.JitterEnabled {
		delay *= 0.8 + rand.Float64()*0.4
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func IsRetryableError(err error, cfg Config) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if cfg.RetryPredicate != nil && cfg.RetryPredicate(err) {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	if cfg.RetryOnConcurrentModification {
		if errors.Is(err, shared.ErrConflict) || strings.Contains(errStr, "concurrent modification") {
			return true
		}
	}

	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1213:
			return cfg.RetryOnDeadlock
		case 1205:
			return cfg.RetryOnLockTimeout
		}
		return false
	}
	if strings.Contains(errStr, "deadlock") || strings.Contains(errStr, "lock wait timeout") {
		return cfg.RetryOnDeadlock
	}

	if cfg.RetryOnConnectionFailure {
		if errors.Is(err, mysqlDriver.ErrInvalidConn) ||
			strings.Contains(errStr, "connection refused") ||
			(strings.Contains(errStr, "connection") && strings.Contains(errStr, "lost")) {
			return true
		}
	}
	return errors.Is(err, gorm.ErrInvalidTransaction)
}

func ExecuteWithRetry(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if !cfg.Enabled || cfg.MaxAttempts <= 1 {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		if !IsRetryableError(err, cfg) || attempt == cfg.MaxAttempts {
			break
		}

		if delay := ExponentialBackoffWithJitter(attempt, cfg); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return lastErr
}
