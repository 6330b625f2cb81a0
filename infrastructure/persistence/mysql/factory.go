package mysql

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"

	"entityservice/domain/repository"
	"entityservice/domain/shared"
)

type constructor struct {
	model  any
	create func(*Session) (repository.Repository, error)
}

// RepositoryFactory creates the gorm repository of every registered model,
// all sharing one Session. It is a repository.AbstractFactory.
type RepositoryFactory struct {
	session *Session

	mu           sync.RWMutex
	constructors map[string]constructor
}

func NewRepositoryFactory(session *Session) *RepositoryFactory {
	return &RepositoryFactory{
		session:      session,
		constructors: make(map[string]constructor),
	}
}

// Register makes entity name resolvable to a Repository[T, PT].
func Register[T any, PT Model[T]](f *RepositoryFactory, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = constructor{
		model: new(T),
		create: func(s *Session) (repository.Repository, error) {
			return NewRepository[T, PT](name, s)
		},
	}
}

func (f *RepositoryFactory) Session() *Session { return f.session }

func (f *RepositoryFactory) CanCreate(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[name]
	return ok
}

func (f *RepositoryFactory) Create(_ context.Context, name string) (repository.Repository, error) {
	f.mu.RLock()
	c, ok := f.constructors[name]
	f.mu.RUnlock()
	if !ok {
		return nil, shared.NewRepositoryNotFoundError(name)
	}
	return c.create(f.session)
}

// Names registered entity names, sorted.
func (f *RepositoryFactory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := lo.Keys(f.constructors)
	sort.Strings(names)
	return names
}

// AutoMigrate creates or updates the table of every registered model.
func (f *RepositoryFactory) AutoMigrate(ctx context.Context) error {
	f.mu.RLock()
	models := make([]any, 0, len(f.constructors))
	for _, name := range lo.Keys(f.constructors) {
		models = append(models, f.constructors[name].model)
	}
	f.mu.RUnlock()
	return f.session.db.WithContext(ctx).AutoMigrate(models...)
}

var _ repository.AbstractFactory = (*RepositoryFactory)(nil)
