package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entityservice/application/entityservice"
	"entityservice/domain/criteria"
	"entityservice/domain/repository"
	"entityservice/domain/shared"
)

type task struct {
	id        string
	Title     string `json:"title"`
	Priority  int
	Owner     *string
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (t *task) ID() string         { return t.id }
func (t *task) AssignID(id string) { t.id = id }

func ptr(s string) *string { return &s }

func ids(entities []shared.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID()
	}
	return out
}

func fixture() *CollectionRepository {
	march := time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC)
	return NewCollectionRepository("Task",
		&task{id: "1", Title: "Write report", Priority: 3, Owner: ptr("ann"), CreatedAt: march},
		&task{id: "2", Title: "Review PR", Priority: 1, CreatedAt: march.AddDate(0, -1, 0)},
		&task{id: "3", Title: "report bug", Priority: 2, Owner: ptr("bob"), CreatedAt: march.AddDate(-1, 0, 0)},
	)
}

func TestCollectionRepository_Find(t *testing.T) {
	repo := fixture()
	ctx := context.Background()

	got, err := repo.Find(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID())

	got, err = repo.Find(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCollectionRepository_FindBy(t *testing.T) {
	repo := fixture()
	now := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		expr criteria.Expression
		want []string
	}{
		{"eq", criteria.Eq("title", "Review PR"), []string{"2"}},
		{"eq coerces strings", criteria.Eq("Priority", "3"), []string{"1"}},
		{"neq", criteria.Neq("priority", 1), []string{"1", "3"}},
		{"is null", criteria.IsNull("owner"), []string{"2"}},
		{"is not null", criteria.IsNotNull("owner"), []string{"1", "3"}},
		{"gt", criteria.Gt("priority", 1), []string{"1", "3"}},
		{"lte", criteria.Lte("priority", 2), []string{"2", "3"}},
		{"in", criteria.In("id", "1", "3"), []string{"1", "3"}},
		{"not in", criteria.NotIn("id", "1", "3"), []string{"2"}},
		{"contains ignores case", criteria.Contains("title", "REPORT"), []string{"1", "3"}},
		{"not contains", criteria.NotContains("title", "report"), []string{"2"}},
		{"starts with", criteria.StartsWith("title", "re"), []string{"2", "3"}},
		{"ends with", criteria.EndsWith("title", "PR"), []string{"2"}},
		{"between", criteria.Between("priority", 2, 3), []string{"1", "3"}},
		{"current month via column tag", criteria.CurrentMonth("created_at", now), []string{"1"}},
		{"previous month", criteria.PreviousMonth("CreatedAt", now), []string{"2"}},
		{"previous year", criteria.PreviousYear("CreatedAt", now), []string{"3"}},
		{"or", criteria.Or(criteria.Eq("id", "1"), criteria.Eq("id", "2")), []string{"1", "2"}},
		{"and", criteria.And(criteria.Contains("title", "report"), criteria.Gt("priority", 2)), []string{"1"}},
		{"empty composite", criteria.And(), []string{"1", "2", "3"}},
		{"unknown field", criteria.Eq("missing", "x"), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindBy(context.Background(), criteria.New().Where(tt.expr))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCollectionRepository_UnknownOperator(t *testing.T) {
	repo := fixture()
	expr := criteria.Comparison{Field: "title", Operator: "SOUNDS_LIKE", Value: "x"}

	_, err := repo.FindBy(context.Background(), criteria.New().Where(expr))
	assert.ErrorIs(t, err, shared.ErrTranslation)

	bad := criteria.MultiValue{Field: "priority", Operator: criteria.OpBetween, Values: []any{1}}
	_, err = repo.CountBy(context.Background(), criteria.New().Where(bad))
	assert.ErrorIs(t, err, shared.ErrTranslation)
}

func TestCollectionRepository_OrderingAndPaging(t *testing.T) {
	repo := fixture()
	ctx := context.Background()

	c := criteria.New().OrderBy("priority", criteria.Desc)
	got, err := repo.FindBy(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "2"}, ids(got))

	got, err = repo.FindBy(ctx, c.WithFirstResult(1).WithMaxResults(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids(got))

	got, err = repo.FindBy(ctx, c.WithFirstResult(10))
	require.NoError(t, err)
	assert.Empty(t, got)

	// nil owners sort first
	got, err = repo.FindBy(ctx, criteria.New().OrderBy("owner", criteria.Asc))
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1", "3"}, ids(got))

	one, err := repo.FindOneBy(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "1", one.ID())

	n, err := repo.CountBy(ctx, c.WithMaxResults(1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "count ignores paging")
}

func TestCollectionRepository_FromMappingMatchesEquality(t *testing.T) {
	repo := fixture()

	mappings := []map[string]any{
		{"title": "Review PR"},
		{"priority": 2, "owner": "bob"},
		{"priority": 3, "owner": "bob"},
		{},
	}
	for _, m := range mappings {
		got, err := repo.FindBy(context.Background(), criteria.FromMapping(m))
		require.NoError(t, err)

		for _, e := range repo.Persisted() {
			matches := true
			for field, want := range m {
				v, _ := FieldValue(e, field)
				matches = matches && equal(v, want)
			}
			assert.Equal(t, matches, containsEntity(got, e), "mapping %v entity %s", m, e.ID())
		}
	}
}

func containsEntity(list []shared.Entity, e shared.Entity) bool {
	for _, item := range list {
		if item == e {
			return true
		}
	}
	return false
}

func TestCollectionRepository_PersistIsIdempotent(t *testing.T) {
	repo := NewCollectionRepository("Task")
	ctx := context.Background()
	fresh := &task{Title: "new"}

	require.NoError(t, repo.Persist(ctx, fresh))
	require.NoError(t, repo.Persist(ctx, fresh))

	assert.NotEmpty(t, fresh.ID(), "id assigned on first persist")
	assert.Len(t, repo.Persisted(), 1)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID()}, ids(all))

	// same id, different instance replaces
	replacement := &task{id: fresh.ID(), Title: "renamed"}
	require.NoError(t, repo.Persist(ctx, replacement))
	assert.Len(t, repo.Persisted(), 1)
	assert.Equal(t, "renamed", repo.Persisted()[0].(*task).Title)
}

func TestCollectionRepository_Delete(t *testing.T) {
	repo := fixture()
	ctx := context.Background()

	require.NoError(t, repo.Delete(ctx, &task{id: "2"}))
	assert.Equal(t, []string{"1", "3"}, ids(repo.Persisted()))

	require.NoError(t, repo.DeleteBy(ctx, criteria.New().Where(criteria.Contains("title", "report"))))
	assert.Empty(t, repo.Persisted())

	assert.ErrorIs(t, repo.Delete(ctx, nil), shared.ErrInvalidInput)
}

// service level scenarios over the collection repository

func newTaskService(t *testing.T, repo *CollectionRepository) *entityservice.Service {
	t.Helper()
	reg := repository.NewRegistry()
	require.NoError(t, reg.Register("Task", repo))
	svc, err := entityservice.New(reg, "Task")
	require.NoError(t, err)
	return svc
}

func TestService_FindExistingAndMissing(t *testing.T) {
	svc := newTaskService(t, NewCollectionRepository("Task", &task{id: "1"}, &task{id: "2"}))
	ctx := context.Background()

	got, err := svc.Find(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID())

	got, err = svc.Find(ctx, "3")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestService_PersistTwiceStoresOnce(t *testing.T) {
	repo := NewCollectionRepository("Task")
	svc := newTaskService(t, repo)
	ctx := context.Background()
	e := &task{Title: "once"}

	require.NoError(t, svc.Persist(ctx, e))
	require.NoError(t, svc.Persist(ctx, e))

	assert.Len(t, repo.Persisted(), 1)
	all, err := svc.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, all.Count())
}

func TestService_CountByEmptyMapping(t *testing.T) {
	svc := newTaskService(t, NewCollectionRepository("Task"))

	c, err := criteria.Normalize(map[string]any{})
	require.NoError(t, err)
	n, err := svc.CountBy(context.Background(), c)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_CollectionIsNotFlushableOrTransactional(t *testing.T) {
	svc := newTaskService(t, NewCollectionRepository("Task"))

	assert.False(t, svc.IsTransactionEnabled())
	assert.ErrorIs(t, svc.BeginTransaction(context.Background()), shared.ErrCapability)
	require.NoError(t, svc.MultiPersist(context.Background(), []shared.Entity{&task{}, &task{}}))
}
