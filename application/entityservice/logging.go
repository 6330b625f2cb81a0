package entityservice

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggingPriority priority LoggingInitializer installs its middleware at, ahead
// of the repository step.
const LoggingPriority = 100

// LoggingMiddleware logs every dispatch passing through it.
func LoggingMiddleware(l *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, ev *Event) error {
			start := time.Now()
			err := next(ctx, ev)

			fields := []zap.Field{
				zap.Stringer("operation", ev.Operation),
				zap.String("entity", ev.EntityName),
				zap.String("event_id", ev.ID),
				zap.Duration("elapsed", time.Since(start)),
			}
			if ev.Params.Criteria != nil {
				fields = append(fields, zap.Stringer("criteria", ev.Params.Criteria))
			}
			if err != nil {
				l.Warn("entity operation failed", append(fields, zap.Error(err))...)
				return err
			}
			l.Debug("entity operation", fields...)
			return nil
		}
	}
}

// LoggingInitializer attaches LoggingMiddleware to every operation.
func LoggingInitializer(l *zap.Logger) Initializer {
	return func(s *Service) {
		for _, op := range Operations() {
			s.Attach(op, LoggingPriority, LoggingMiddleware(l))
		}
	}
}
