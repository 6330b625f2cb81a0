package entityservice

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"entityservice/domain/criteria"
	"entityservice/domain/repository"
	"entityservice/domain/shared"
	"entityservice/pkg/logger"
)

// Service CRUD façade of one entity type.
type Service struct {
	entityName string
	resolver   repository.Resolver
	log        *zap.Logger
	listeners  *listenerTable
	defaults   map[Operation]ListenerID

	repoMu sync.Mutex
	repo   repository.Repository
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger; the global logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates the service of entityName. The name must be known to resolver.
func New(resolver repository.Resolver, entityName string, opts ...Option) (*Service, error) {
	if resolver == nil || entityName == "" || !resolver.Has(entityName) {
		return nil, shared.NewInvalidEntityTypeError(entityName)
	}

	s := &Service{
		entityName: entityName,
		resolver:   resolver,
		log:        logger.With(),
		listeners:  newListenerTable(),
		defaults:   make(map[Operation]ListenerID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("entity", entityName))

	for _, op := range Operations() {
		s.defaults[op] = s.listeners.attach(op, DefaultPriority, s.defaultStep(op))
	}
	return s, nil
}

// EntityName entity type this service is bound to.
func (s *Service) EntityName() string { return s.entityName }

// Repository resolves the repository once and caches it.
func (s *Service) Repository(ctx context.Context) (repository.Repository, error) {
	s.repoMu.Lock()
	defer s.repoMu.Unlock()
	if s.repo != nil {
		return s.repo, nil
	}
	repo, err := s.resolver.Resolve(ctx, s.entityName)
	if err != nil {
		return nil, err
	}
	s.repo = repo
	return repo, nil
}

// Attach installs mw on op. Higher priorities run first; the repository
// step runs at DefaultPriority.
func (s *Service) Attach(op Operation, priority int, mw Middleware) ListenerID {
	return s.listeners.attach(op, priority, mw)
}

// Detach removes a middleware installed by Attach.
func (s *Service) Detach(id ListenerID) bool {
	return s.listeners.detach(id)
}

// DefaultListener id of the bundled repository step of op, e.g. to replace it.
func (s *Service) DefaultListener(op Operation) ListenerID {
	return s.defaults[op]
}

// ============================================================================
// Read operations
// ============================================================================

// Find returns the entity with id, nil when absent.
func (s *Service) Find(ctx context.Context, id string) (shared.Entity, error) {
	if _, err := s.readable(ctx); err != nil {
		return nil, err
	}
	ev, err := s.dispatch(ctx, OpFind, Params{ID: id})
	if err != nil {
		return nil, err
	}
	return entityResult(ev), nil
}

// FindAll returns every entity.
func (s *Service) FindAll(ctx context.Context) (*Result, error) {
	if _, err := s.readable(ctx); err != nil {
		return nil, err
	}
	ev, err := s.dispatch(ctx, OpFindAll, Params{})
	if err != nil {
		return nil, err
	}
	return listResult(ev)
}

// FindBy returns the entities matching c.
func (s *Service) FindBy(ctx context.Context, c *criteria.Criteria) (*Result, error) {
	if _, err := s.readable(ctx); err != nil {
		return nil, err
	}
	ev, err := s.dispatch(ctx, OpFindBy, Params{Criteria: c})
	if err != nil {
		return nil, err
	}
	return listResult(ev)
}

// FindOneBy returns the first entity matching c, nil when none does.
func (s *Service) FindOneBy(ctx context.Context, c *criteria.Criteria) (shared.Entity, error) {
	if _, err := s.readable(ctx); err != nil {
		return nil, err
	}
	ev, err := s.dispatch(ctx, OpFindOneBy, Params{Criteria: c})
	if err != nil {
		return nil, err
	}
	return entityResult(ev), nil
}

// CountBy counts the entities matching c.
func (s *Service) CountBy(ctx context.Context, c *criteria.Criteria) (int64, error) {
	if _, err := s.readable(ctx); err != nil {
		return 0, err
	}
	ev, err := s.dispatch(ctx, OpCountBy, Params{Criteria: c})
	if err != nil {
		return 0, err
	}
	n, _ := ev.Result.(int64)
	return n, nil
}

// ============================================================================
// Write operations
// ============================================================================

// Persist stores e and flushes when the repository is Flushable.
func (s *Service) Persist(ctx context.Context, e shared.Entity) error {
	if _, err := s.writable(ctx); err != nil {
		return err
	}
	if e == nil {
		return shared.NewValidationError(s.entityName, "entity", "entity must not be nil")
	}
	_, err := s.dispatch(ctx, OpPersist, Params{Entity: e, IsNew: !shared.HasID(e)})
	return err
}

// MultiPersist persists every entity through the persist chain and flushes once.
func (s *Service) MultiPersist(ctx context.Context, entities []shared.Entity) error {
	if _, err := s.writable(ctx); err != nil {
		return err
	}
	for _, e := range entities {
		if e == nil {
			return shared.NewValidationError(s.entityName, "entities", "entities must not contain nil")
		}
	}
	_, err := s.dispatch(ctx, OpMultiPersist, Params{Entities: entities})
	return err
}

// Delete removes e and flushes when the repository is Flushable.
func (s *Service) Delete(ctx context.Context, e shared.Entity) error {
	if _, err := s.deletable(ctx); err != nil {
		return err
	}
	if e == nil {
		return shared.NewValidationError(s.entityName, "entity", "entity must not be nil")
	}
	_, err := s.dispatch(ctx, OpDelete, Params{Entity: e})
	return err
}

// DeleteBy removes the entities matching c and flushes when the repository is Flushable.
func (s *Service) DeleteBy(ctx context.Context, c *criteria.Criteria) error {
	if _, err := s.deletable(ctx); err != nil {
		return err
	}
	_, err := s.dispatch(ctx, OpDeleteBy, Params{Criteria: c})
	return err
}

// ============================================================================
// Transactions (not dispatched)
// ============================================================================

// IsTransactionEnabled reports whether the repository is TransactionAware
// and has transactions enabled.
func (s *Service) IsTransactionEnabled() bool {
	repo, err := s.Repository(context.Background())
	if err != nil {
		return false
	}
	tx, ok := repository.AsTransactionAware(repo)
	return ok && tx.IsTransactionEnabled()
}

// BeginTransaction, CommitTransaction and RollbackTransaction are forwarded
// only when IsTransactionEnabled holds; otherwise they fail with ErrCapability.
func (s *Service) BeginTransaction(ctx context.Context) error {
	tx, err := s.transactional(ctx)
	if err != nil {
		return err
	}
	return tx.BeginTransaction(ctx)
}

func (s *Service) CommitTransaction(ctx context.Context) error {
	tx, err := s.transactional(ctx)
	if err != nil {
		return err
	}
	return tx.CommitTransaction(ctx)
}

func (s *Service) RollbackTransaction(ctx context.Context) error {
	tx, err := s.transactional(ctx)
	if err != nil {
		return err
	}
	return tx.RollbackTransaction(ctx)
}

// ============================================================================
// Dispatch
// ============================================================================

func (s *Service) dispatch(ctx context.Context, op Operation, params Params) (*Event, error) {
	ev := newEvent(s, op, params)
	if err := s.listeners.chain(op)(ctx, ev); err != nil {
		s.log.Debug("dispatch stopped with error",
			zap.Stringer("operation", op),
			zap.String("event_id", ev.ID),
			zap.Duration("elapsed", time.Since(ev.StartedAt)),
			zap.Error(err),
		)
		return ev, err
	}
	return ev, nil
}

// defaultStep calls the repository for op, then hands over to the next listener.
func (s *Service) defaultStep(op Operation) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, ev *Event) error {
			if err := s.invoke(ctx, op, ev); err != nil {
				return err
			}
			return next(ctx, ev)
		}
	}
}

func (s *Service) invoke(ctx context.Context, op Operation, ev *Event) error {
	repo, err := s.Repository(ctx)
	if err != nil {
		return err
	}

	switch op {
	case OpFind, OpFindAll, OpFindBy, OpFindOneBy, OpCountBy:
		r, ok := repository.AsReadable(repo)
		if !ok {
			return shared.NewCapabilityError(s.entityName, repository.CapReadable)
		}
		return s.invokeRead(ctx, r, op, ev)

	case OpPersist:
		w, ok := repository.AsWritable(repo)
		if !ok {
			return shared.NewCapabilityError(s.entityName, repository.CapWritable)
		}
		if err := w.Persist(ctx, ev.Params.Entity); err != nil {
			return err
		}
		if ev.Params.DeferFlush {
			return nil
		}
		return s.flush(ctx, repo)

	case OpMultiPersist:
		for _, e := range ev.Params.Entities {
			params := Params{Entity: e, IsNew: !shared.HasID(e), DeferFlush: true}
			if _, err := s.dispatch(ctx, OpPersist, params); err != nil {
				return err
			}
		}
		return s.flush(ctx, repo)

	case OpDelete, OpDeleteBy:
		d, ok := repository.AsDeletable(repo)
		if !ok {
			return shared.NewCapabilityError(s.entityName, repository.CapDeletable)
		}
		if op == OpDelete {
			err = d.Delete(ctx, ev.Params.Entity)
		} else {
			err = d.DeleteBy(ctx, ev.Params.Criteria)
		}
		if err != nil {
			return err
		}
		return s.flush(ctx, repo)
	}
	return shared.NewValidationError(s.entityName, "operation", "unknown operation "+op.String())
}

func (s *Service) invokeRead(ctx context.Context, r repository.Readable, op Operation, ev *Event) error {
	var (
		list []shared.Entity
		err  error
	)
	switch op {
	case OpFind:
		var e shared.Entity
		if e, err = r.Find(ctx, ev.Params.ID); err == nil {
			ev.Result = e
		}
		return err
	case OpFindOneBy:
		var e shared.Entity
		if e, err = r.FindOneBy(ctx, ev.Params.Criteria); err == nil {
			ev.Result = e
		}
		return err
	case OpCountBy:
		var n int64
		if n, err = r.CountBy(ctx, ev.Params.Criteria); err == nil {
			ev.Result = n
		}
		return err
	case OpFindAll:
		list, err = r.FindAll(ctx)
	default:
		list, err = r.FindBy(ctx, ev.Params.Criteria)
	}
	if err != nil {
		return err
	}
	res, err := NewResultFrom(list)
	if err != nil {
		return err
	}
	ev.Result = res
	return nil
}

func (s *Service) flush(ctx context.Context, repo repository.Repository) error {
	if f, ok := repository.AsFlushable(repo); ok {
		return f.Flush(ctx)
	}
	return nil
}

// ============================================================================
// Capability checks
// ============================================================================

func (s *Service) readable(ctx context.Context) (repository.Readable, error) {
	repo, err := s.Repository(ctx)
	if err != nil {
		return nil, err
	}
	r, ok := repository.AsReadable(repo)
	if !ok {
		return nil, s.capabilityError(repository.CapReadable)
	}
	return r, nil
}

func (s *Service) writable(ctx context.Context) (repository.Writable, error) {
	repo, err := s.Repository(ctx)
	if err != nil {
		return nil, err
	}
	w, ok := repository.AsWritable(repo)
	if !ok {
		return nil, s.capabilityError(repository.CapWritable)
	}
	return w, nil
}

func (s *Service) deletable(ctx context.Context) (repository.Deletable, error) {
	repo, err := s.Repository(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := repository.AsDeletable(repo)
	if !ok {
		return nil, s.capabilityError(repository.CapDeletable)
	}
	return d, nil
}

func (s *Service) transactional(ctx context.Context) (repository.TransactionAware, error) {
	repo, err := s.Repository(ctx)
	if err != nil {
		return nil, err
	}
	tx, ok := repository.AsTransactionAware(repo)
	if !ok {
		return nil, s.capabilityError(repository.CapTransactionAware)
	}
	if !tx.IsTransactionEnabled() {
		return nil, s.capabilityError(repository.CapTransactionEnabled)
	}
	return tx, nil
}

func (s *Service) capabilityError(capability string) error {
	err := shared.NewCapabilityError(s.entityName, capability)
	s.log.Warn("repository capability missing", zap.String("capability", capability))
	return err
}

func entityResult(ev *Event) shared.Entity {
	e, _ := ev.Result.(shared.Entity)
	return e
}

// listResult reads the Result of a list operation. Listeners may also answer
// with a plain slice or sequence, which is wrapped here.
func listResult(ev *Event) (*Result, error) {
	switch v := ev.Result.(type) {
	case *Result:
		return v, nil
	case nil:
		return NewResultFrom([]shared.Entity{})
	default:
		return NewResultFrom(v)
	}
}

var _ repository.TransactionAware = (*Service)(nil)
