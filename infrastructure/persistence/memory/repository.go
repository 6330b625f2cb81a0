// Package memory in-memory collection repository, used by tests, examples and
// the "memory" database type.
package memory

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"entityservice/domain/criteria"
	"entityservice/domain/repository"
	"entityservice/domain/shared"
)

// CollectionRepository keeps entities in insertion order.
// It is Readable, Writable and Deletable; writes are immediate.
type CollectionRepository struct {
	mu         sync.RWMutex
	entityName string
	items      []shared.Entity
}

func NewCollectionRepository(entityName string, initial ...shared.Entity) *CollectionRepository {
	r := &CollectionRepository{entityName: entityName}
	for _, e := range initial {
		if e != nil {
			r.items = append(r.items, e)
		}
	}
	return r
}

// EntityName entity type stored in this collection.
func (r *CollectionRepository) EntityName() string { return r.entityName }

func (r *CollectionRepository) Find(_ context.Context, id string) (shared.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := lo.Find(r.items, func(e shared.Entity) bool { return e.ID() == id })
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (r *CollectionRepository) FindAll(_ context.Context) ([]shared.Entity, error) {
	return r.Persisted(), nil
}

func (r *CollectionRepository) FindBy(_ context.Context, c *criteria.Criteria) ([]shared.Entity, error) {
	matches, err := r.filter(c.WhereExpression())
	if err != nil {
		return nil, err
	}
	orderBy(matches, c.Orderings())

	if offset, ok := c.FirstResult(); ok {
		if offset >= len(matches) {
			return []shared.Entity{}, nil
		}
		matches = matches[offset:]
	}
	if limit, ok := c.MaxResults(); ok && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

func (r *CollectionRepository) FindOneBy(ctx context.Context, c *criteria.Criteria) (shared.Entity, error) {
	matches, err := r.FindBy(ctx, c.WithMaxResults(1))
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

func (r *CollectionRepository) CountBy(_ context.Context, c *criteria.Criteria) (int64, error) {
	matches, err := r.filter(c.WhereExpression())
	if err != nil {
		return 0, err
	}
	return int64(len(matches)), nil
}

// Persist adds e, or replaces the stored entity with the same identity.
// Entities implementing IdentityAssigner get a uuid when they have no id.
func (r *CollectionRepository) Persist(_ context.Context, e shared.Entity) error {
	if e == nil {
		return shared.NewValidationError(r.entityName, "entity", "entity must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !shared.HasID(e) {
		if assigner, ok := e.(shared.IdentityAssigner); ok {
			assigner.AssignID(uuid.NewString())
		}
	}

	if _, idx, ok := lo.FindIndexOf(r.items, func(item shared.Entity) bool { return sameEntity(item, e) }); ok {
		r.items[idx] = e
		return nil
	}
	r.items = append(r.items, e)
	return nil
}

func (r *CollectionRepository) Delete(_ context.Context, e shared.Entity) error {
	if e == nil {
		return shared.NewValidationError(r.entityName, "entity", "entity must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = lo.Reject(r.items, func(item shared.Entity, _ int) bool { return sameEntity(item, e) })
	return nil
}

func (r *CollectionRepository) DeleteBy(_ context.Context, c *criteria.Criteria) error {
	matches, err := r.filter(c.WhereExpression())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = lo.Reject(r.items, func(item shared.Entity, _ int) bool {
		return lo.ContainsBy(matches, func(m shared.Entity) bool { return sameEntity(m, item) })
	})
	return nil
}

// Persisted snapshot of the stored entities in insertion order.
func (r *CollectionRepository) Persisted() []shared.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]shared.Entity{}, r.items...)
}

func (r *CollectionRepository) filter(expr criteria.Expression) ([]shared.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]shared.Entity, 0, len(r.items))
	for _, e := range r.items {
		ok, err := Match(e, expr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func orderBy(items []shared.Entity, orderings []criteria.Ordering) {
	if len(orderings) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, o := range orderings {
			a, _ := FieldValue(items[i], o.Field)
			b, _ := FieldValue(items[j], o.Field)
			cmp, ok := compareNullable(a, b)
			if !ok || cmp == 0 {
				continue
			}
			if o.Direction == criteria.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// compareNullable sorts nil values first.
func compareNullable(a, b any) (int, bool) {
	switch {
	case isNil(a) && isNil(b):
		return 0, true
	case isNil(a):
		return -1, true
	case isNil(b):
		return 1, true
	}
	return compare(a, b)
}

// sameEntity same pointer, or same non-empty id.
func sameEntity(a, b shared.Entity) bool {
	if shared.HasID(a) && shared.HasID(b) {
		return a.ID() == b.ID()
	}
	return isSameRef(a, b)
}

func isSameRef(a, b shared.Entity) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

var (
	_ repository.Readable  = (*CollectionRepository)(nil)
	_ repository.Writable  = (*CollectionRepository)(nil)
	_ repository.Deletable = (*CollectionRepository)(nil)
)
