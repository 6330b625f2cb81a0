package mongodb

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"entityservice/domain/repository"
	"entityservice/domain/shared"
)

// RepositoryFactory creates the repository of every registered document
// type over one database. It is a repository.AbstractFactory.
type RepositoryFactory struct {
	db   *mongo.Database
	opts []Option

	mu           sync.RWMutex
	constructors map[string]func(*mongo.Database) repository.Repository
}

func NewRepositoryFactory(db *mongo.Database, opts ...Option) *RepositoryFactory {
	return &RepositoryFactory{
		db:           db,
		opts:         opts,
		constructors: make(map[string]func(*mongo.Database) repository.Repository),
	}
}

// Register stores entity name in collection.
func Register[T any, PT Model[T]](f *RepositoryFactory, name, collection string, opts ...Option) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := append(append([]Option{}, f.opts...), opts...)
	f.constructors[name] = func(db *mongo.Database) repository.Repository {
		return NewRepository[T, PT](name, db.Collection(collection), all...)
	}
}

func (f *RepositoryFactory) CanCreate(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[name]
	return ok
}

func (f *RepositoryFactory) Create(_ context.Context, name string) (repository.Repository, error) {
	f.mu.RLock()
	create, ok := f.constructors[name]
	f.mu.RUnlock()
	if !ok {
		return nil, shared.NewRepositoryNotFoundError(name)
	}
	return create(f.db), nil
}

func (f *RepositoryFactory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := lo.Keys(f.constructors)
	sort.Strings(names)
	return names
}

var _ repository.AbstractFactory = (*RepositoryFactory)(nil)
