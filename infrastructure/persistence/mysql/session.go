package mysql

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"entityservice/domain/repository"
	"entityservice/domain/shared"
	"entityservice/infrastructure/persistence"
	"entityservice/infrastructure/persistence/retry"
	"entityservice/pkg/logger"
)

// Session tracks entity changes and flushes them to MySQL.
//
// Persist and Remove only schedule work; Flush writes it. Pending changes,
// the open transaction and its depth belong to the unit of work carried by
// the context (repository.ContextWithUnitOfWork), so concurrent requests
// sharing one Session never join each other's transaction. A context without
// a unit of work uses the Session's own state, meant for a single caller.
//
//	BeginTransaction  depth 0 -> 1   physical BEGIN
//	BeginTransaction  depth 1 -> 2
//	CommitTransaction depth 2 -> 1
//	CommitTransaction depth 1 -> 0   physical COMMIT
//	RollbackTransaction              physical ROLLBACK, depth 0, pending dropped
type Session struct {
	db    *gorm.DB
	log   *zap.Logger
	retry retry.Config

	// mu guards root and every unit state handed out by unit
	mu   sync.Mutex
	root unitState
}

// unitState per unit of work
type unitState struct {
	tx      *gorm.DB
	depth   int
	pending []change
}

type change struct {
	entity shared.Entity
	remove bool
}

type SessionOption func(*Session)

func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRetry retry policy of Transaction.
func WithRetry(cfg retry.Config) SessionOption {
	return func(s *Session) { s.retry = cfg }
}

func NewSession(db *gorm.DB, opts ...SessionOption) *Session {
	s := &Session{
		db:    db,
		log:   logger.With(zap.String("component", "mysql.session")),
		retry: retry.DefaultConfig,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// unit state of the unit of work of ctx; callers hold s.mu.
func (s *Session) unit(ctx context.Context) *unitState {
	if u := repository.UnitOfWorkFromContext(ctx); u != nil {
		return u.Load(s, func() any { return &unitState{} }).(*unitState)
	}
	return &s.root
}

// DB connection for ctx: the transaction carried by ctx, the transaction of
// its unit of work, or the pool.
func (s *Session) DB(ctx context.Context) *gorm.DB {
	if tx := persistence.TxFromContext(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	s.mu.Lock()
	tx := s.unit(ctx).tx
	s.mu.Unlock()
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

func (s *Session) inTransaction(ctx context.Context) bool {
	if persistence.TxFromContext(ctx) != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unit(ctx).tx != nil
}

// Persist schedules an insert-or-update of e.
func (s *Session) Persist(ctx context.Context, e shared.Entity) {
	s.schedule(ctx, change{entity: e})
}

// Remove schedules a delete of e.
func (s *Session) Remove(ctx context.Context, e shared.Entity) {
	s.schedule(ctx, change{entity: e, remove: true})
}

// Pending number of changes scheduled in the unit of work of ctx.
func (s *Session) Pending(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unit(ctx).pending)
}

// Clear drops the changes scheduled in the unit of work of ctx.
func (s *Session) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unit(ctx).pending = nil
}

// schedule keeps one change per entity, the latest wins.
func (s *Session) schedule(ctx context.Context, c change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.unit(ctx)
	if _, idx, ok := lo.FindIndexOf(u.pending, func(p change) bool { return sameEntity(p.entity, c.entity) }); ok {
		u.pending[idx] = c
		return
	}
	u.pending = append(u.pending, c)
}

// Flush writes the scheduled changes in scheduling order: all of them, or only
// those of the given entities. Outside a transaction the batch runs in its
// own. A failed batch stays scheduled.
func (s *Session) Flush(ctx context.Context, entities ...shared.Entity) error {
	batch := s.take(ctx, entities)
	if len(batch) == 0 {
		return nil
	}

	write := func(db *gorm.DB) error {
		for _, c := range batch {
			var err error
			if c.remove {
				err = db.Delete(c.entity).Error
			} else {
				err = db.Save(c.entity).Error
			}
			if err != nil {
				return fmt.Errorf("flush %T %q: %w", c.entity, c.entity.ID(), err)
			}
		}
		return nil
	}

	db := s.DB(ctx)
	var err error
	if s.inTransaction(ctx) {
		err = write(db)
	} else {
		err = db.Transaction(write)
	}
	if err != nil {
		s.mu.Lock()
		u := s.unit(ctx)
		u.pending = append(batch, u.pending...)
		s.mu.Unlock()
		s.log.Debug("flush failed", zap.Int("changes", len(batch)), zap.Error(err))
		return err
	}
	s.log.Debug("flushed", zap.Int("changes", len(batch)))
	return nil
}

func (s *Session) take(ctx context.Context, entities []shared.Entity) []change {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.unit(ctx)
	if len(entities) == 0 {
		batch := u.pending
		u.pending = nil
		return batch
	}
	batch, rest := lo.FilterReject(u.pending, func(c change, _ int) bool {
		return lo.ContainsBy(entities, func(e shared.Entity) bool { return sameEntity(c.entity, e) })
	})
	u.pending = rest
	return batch
}

// ============================================================================
// Transactions
// ============================================================================

func (s *Session) BeginTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.unit(ctx)
	if u.depth == 0 {
		tx := s.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return shared.NewTransactionError("begin transaction", tx.Error)
		}
		u.tx = tx
	}
	u.depth++
	return nil
}

func (s *Session) CommitTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.unit(ctx)
	if u.depth == 0 {
		return shared.NewTransactionError("commit without an active transaction", nil)
	}
	u.depth--
	if u.depth > 0 {
		return nil
	}
	tx := u.tx
	u.tx = nil
	if err := tx.Commit().Error; err != nil {
		u.pending = nil
		return shared.NewTransactionError("commit transaction", err)
	}
	return nil
}

// RollbackTransaction without an active transaction is a no-op.
func (s *Session) RollbackTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.unit(ctx)
	if u.depth == 0 {
		return nil
	}
	tx := u.tx
	u.tx, u.depth, u.pending = nil, 0, nil
	if err := tx.Rollback().Error; err != nil {
		return shared.NewTransactionError("rollback transaction", err)
	}
	return nil
}

func (s *Session) IsTransactionEnabled() bool { return true }

// Transaction runs fn in a fresh transaction and unit of work carried by its
// context, flushes, and commits. Deadlocks and lock timeouts re-run the whole
// attempt.
func (s *Session) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.ExecuteWithRetry(ctx, s.retry, func(ctx context.Context) (err error) {
		tx := s.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("failed to begin transaction: %w", tx.Error)
		}

		txCtx := persistence.ContextWithTx(repository.ContextWithUnitOfWork(ctx), tx)
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				s.Clear(txCtx)
				panic(r)
			}
		}()

		if err := fn(txCtx); err != nil {
			tx.Rollback()
			s.Clear(txCtx)
			return err
		}
		if err := s.Flush(txCtx); err != nil {
			tx.Rollback()
			s.Clear(txCtx)
			return err
		}
		if err := tx.Commit().Error; err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// sameEntity same pointer, or same type and non-empty id.
func sameEntity(a, b shared.Entity) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) {
		return false
	}
	if shared.HasID(a) && shared.HasID(b) {
		return a.ID() == b.ID()
	}
	return ta.Comparable() && a == b
}
