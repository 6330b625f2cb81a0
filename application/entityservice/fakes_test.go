package entityservice

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"entityservice/domain/criteria"
	"entityservice/domain/repository"
	"entityservice/domain/shared"
)

type note struct {
	id    string
	Title string
}

func (n *note) ID() string            { return n.id }
func (n *note) AssignID(id string)    { n.id = id }
func (n *note) ToMap() map[string]any { return map[string]any{"id": n.id, "title": n.Title} }

// spyRepo implements every capability and records calls.
type spyRepo struct {
	mu        sync.Mutex
	items     []shared.Entity
	calls     map[string]int
	log       []string
	failOn    map[string]error
	txEnabled bool
}

func newSpy(items ...shared.Entity) *spyRepo {
	return &spyRepo{
		items:     items,
		calls:     make(map[string]int),
		failOn:    make(map[string]error),
		txEnabled: true,
	}
}

func (r *spyRepo) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
	r.log = append(r.log, name)
	return r.failOn[name]
}

func (r *spyRepo) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *spyRepo) Find(_ context.Context, id string) (shared.Entity, error) {
	if err := r.record("find"); err != nil {
		return nil, err
	}
	for _, e := range r.items {
		if e.ID() == id {
			return e, nil
		}
	}
	return nil, nil
}

func (r *spyRepo) FindAll(context.Context) ([]shared.Entity, error) {
	if err := r.record("findAll"); err != nil {
		return nil, err
	}
	return append([]shared.Entity(nil), r.items...), nil
}

func (r *spyRepo) FindBy(_ context.Context, _ *criteria.Criteria) ([]shared.Entity, error) {
	if err := r.record("findBy"); err != nil {
		return nil, err
	}
	return append([]shared.Entity(nil), r.items...), nil
}

func (r *spyRepo) FindOneBy(_ context.Context, _ *criteria.Criteria) (shared.Entity, error) {
	if err := r.record("findOneBy"); err != nil {
		return nil, err
	}
	if len(r.items) == 0 {
		return nil, nil
	}
	return r.items[0], nil
}

func (r *spyRepo) CountBy(_ context.Context, _ *criteria.Criteria) (int64, error) {
	if err := r.record("countBy"); err != nil {
		return 0, err
	}
	return int64(len(r.items)), nil
}

func (r *spyRepo) Persist(_ context.Context, e shared.Entity) error {
	if err := r.record("persist"); err != nil {
		return err
	}
	r.items = append(r.items, e)
	return nil
}

func (r *spyRepo) Delete(context.Context, shared.Entity) error { return r.record("delete") }
func (r *spyRepo) DeleteBy(context.Context, *criteria.Criteria) error {
	return r.record("deleteBy")
}
func (r *spyRepo) Flush(context.Context, ...shared.Entity) error { return r.record("flush") }

func (r *spyRepo) BeginTransaction(context.Context) error    { return r.record("begin") }
func (r *spyRepo) CommitTransaction(context.Context) error   { return r.record("commit") }
func (r *spyRepo) RollbackTransaction(context.Context) error { return r.record("rollback") }
func (r *spyRepo) IsTransactionEnabled() bool                { return r.txEnabled }

// capability subsets built by embedding the interfaces
type readOnly struct{ repository.Readable }
type writeOnly struct{ repository.Writable }
type readWrite struct {
	repository.Readable
	repository.Writable
}
type crud struct {
	repository.Readable
	repository.Writable
	repository.Deletable
}

func newService(t *testing.T, repo repository.Repository, opts ...Option) *Service {
	t.Helper()
	reg := repository.NewRegistry()
	require.NoError(t, reg.Register("Note", repo))
	s, err := New(reg, "Note", opts...)
	require.NoError(t, err)
	return s
}
