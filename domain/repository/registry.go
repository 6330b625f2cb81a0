package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"entityservice/domain/shared"
)

// Resolver maps an entity type name to its repository.
type Resolver interface {
	// Resolve returns the repository for name or shared.ErrRepositoryNotFound.
	Resolve(ctx context.Context, name string) (Repository, error)

	// Has reports whether name can be resolved.
	Has(name string) bool
}

// Factory creates the repository of one entity type.
type Factory func(ctx context.Context, name string) (Repository, error)

// AbstractFactory creates repositories for any entity type it recognises.
type AbstractFactory interface {
	CanCreate(name string) bool
	Create(ctx context.Context, name string) (Repository, error)
}

// Registry is a memoizing Resolver.
//
// Lookup order: registered instances, then per-name factories, then abstract
// factories in registration order. Created repositories are cached and must
// implement at least one capability interface.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]Repository
	factories map[string]Factory
	abstract  []AbstractFactory
}

func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]Repository),
		factories: make(map[string]Factory),
	}
}

// Register stores a ready repository under name.
func (r *Registry) Register(name string, repo Repository) error {
	if err := validate(name, repo); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[name] = repo
	return nil
}

// RegisterFactory installs a lazy factory for name.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// AddAbstractFactory appends a fallback factory.
func (r *Registry) AddAbstractFactory(f AbstractFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abstract = append(r.abstract, f)
}

// Has implements Resolver
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.instances[name]; ok {
		return true
	}
	if _, ok := r.factories[name]; ok {
		return true
	}
	return lo.ContainsBy(r.abstract, func(f AbstractFactory) bool { return f.CanCreate(name) })
}

// Resolve implements Resolver
func (r *Registry) Resolve(ctx context.Context, name string) (Repository, error) {
	r.mu.RLock()
	if repo, ok := r.instances[name]; ok {
		r.mu.RUnlock()
		return repo, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// another goroutine may have created it meanwhile
	if repo, ok := r.instances[name]; ok {
		return repo, nil
	}

	var create Factory
	if f, ok := r.factories[name]; ok {
		create = f
	} else if af, ok := lo.Find(r.abstract, func(f AbstractFactory) bool { return f.CanCreate(name) }); ok {
		create = af.Create
	}
	if create == nil {
		return nil, shared.NewRepositoryNotFoundError(name)
	}

	repo, err := create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create repository %s: %w", name, err)
	}
	if err := validate(name, repo); err != nil {
		return nil, err
	}
	r.instances[name] = repo
	return repo, nil
}

// Names lists the explicitly registered names (instances and factories), sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Union(lo.Keys(r.instances), lo.Keys(r.factories))
	sort.Strings(names)
	return names
}

func validate(name string, repo Repository) error {
	if repo == nil {
		return shared.NewRepositoryNotFoundError(name)
	}
	if len(Capabilities(repo)) == 0 {
		return shared.NewValidationError(name, "repository",
			fmt.Sprintf("repository %T implements no capability interface", repo))
	}
	return nil
}

var _ Resolver = (*Registry)(nil)
