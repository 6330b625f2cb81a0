package mysql

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"entityservice/domain/criteria"
	"entityservice/domain/shared"
	"entityservice/infrastructure/persistence/translator"
)

// Model is a gorm model whose pointer is an entity.
type Model[T any] interface {
	*T
	shared.Entity
}

var schemaCache sync.Map

// Repository gorm repository of one model type. It has every capability:
// reads go straight to the database, Persist and Delete are scheduled on the
// Session until Flush, DeleteBy runs immediately.
type Repository[T any, PT Model[T]] struct {
	name    string
	session *Session
	schema  *schema.Schema
}

func NewRepository[T any, PT Model[T]](name string, session *Session) (*Repository[T, PT], error) {
	s, err := schema.Parse(new(T), &schemaCache, session.db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("parse %s model: %w", name, err)
	}
	if s.PrioritizedPrimaryField == nil {
		return nil, shared.NewValidationError(name, "", "model has no primary key")
	}
	return &Repository[T, PT]{name: name, session: session, schema: s}, nil
}

func (r *Repository[T, PT]) EntityName() string { return r.name }

// Table name of the model.
func (r *Repository[T, PT]) Table() string { return r.schema.Table }

func (r *Repository[T, PT]) translator() *translator.Translator {
	return translator.New(r.schema.Table, translator.SchemaResolver(r.schema))
}

func (r *Repository[T, PT]) query(ctx context.Context, c *criteria.Criteria) (*gorm.DB, error) {
	return r.translator().Apply(r.session.DB(ctx).Model(new(T)), c)
}

// ============================================================================
// Readable
// ============================================================================

func (r *Repository[T, PT]) Find(ctx context.Context, id string) (shared.Entity, error) {
	pk := r.schema.PrioritizedPrimaryField.Name
	return r.FindOneBy(ctx, criteria.New().Where(criteria.Eq(pk, id)))
}

func (r *Repository[T, PT]) FindAll(ctx context.Context) ([]shared.Entity, error) {
	return r.FindBy(ctx, nil)
}

func (r *Repository[T, PT]) FindBy(ctx context.Context, c *criteria.Criteria) ([]shared.Entity, error) {
	tx, err := r.query(ctx, c)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.name, err)
	}
	out := make([]shared.Entity, len(rows))
	for i := range rows {
		out[i] = PT(&rows[i])
	}
	return out, nil
}

func (r *Repository[T, PT]) FindOneBy(ctx context.Context, c *criteria.Criteria) (shared.Entity, error) {
	rows, err := r.FindBy(ctx, c.WithMaxResults(1))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *Repository[T, PT]) CountBy(ctx context.Context, c *criteria.Criteria) (int64, error) {
	tx, err := r.query(ctx, criteria.New().Where(c.WhereExpression()))
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.name, err)
	}
	return n, nil
}

// ============================================================================
// Writable / Deletable / Flushable
// ============================================================================

// Persist schedules e. String primary keys left empty get a uuid.
func (r *Repository[T, PT]) Persist(ctx context.Context, e shared.Entity) error {
	m, err := r.model(e)
	if err != nil {
		return err
	}
	if !shared.HasID(m) && r.schema.PrioritizedPrimaryField.FieldType.Kind() == reflect.String {
		if assigner, ok := e.(shared.IdentityAssigner); ok {
			assigner.AssignID(uuid.NewString())
		}
	}
	r.session.Persist(ctx, m)
	return nil
}

func (r *Repository[T, PT]) Delete(ctx context.Context, e shared.Entity) error {
	m, err := r.model(e)
	if err != nil {
		return err
	}
	r.session.Remove(ctx, m)
	return nil
}

// DeleteBy deletes the matching rows immediately; an empty criteria deletes every row.
func (r *Repository[T, PT]) DeleteBy(ctx context.Context, c *criteria.Criteria) error {
	where, err := r.translator().Translate(c.WhereExpression())
	if err != nil {
		return err
	}
	db := r.session.DB(ctx)
	if where == nil {
		db = db.Session(&gorm.Session{AllowGlobalUpdate: true})
	} else {
		db = db.Where(where)
	}
	if err := db.Delete(new(T)).Error; err != nil {
		return fmt.Errorf("delete %s: %w", r.name, err)
	}
	return nil
}

func (r *Repository[T, PT]) Flush(ctx context.Context, entities ...shared.Entity) error {
	return r.session.Flush(ctx, entities...)
}

func (r *Repository[T, PT]) model(e shared.Entity) (PT, error) {
	m, ok := e.(PT)
	if !ok || (*T)(m) == nil {
		var zero PT
		return zero, shared.NewValidationError(r.name, "entity", fmt.Sprintf("expected %T, got %T", new(T), e))
	}
	return m, nil
}

// ============================================================================
// TransactionAware
// ============================================================================

func (r *Repository[T, PT]) BeginTransaction(ctx context.Context) error {
	return r.session.BeginTransaction(ctx)
}

func (r *Repository[T, PT]) CommitTransaction(ctx context.Context) error {
	return r.session.CommitTransaction(ctx)
}

func (r *Repository[T, PT]) RollbackTransaction(ctx context.Context) error {
	return r.session.RollbackTransaction(ctx)
}

func (r *Repository[T, PT]) IsTransactionEnabled() bool { return r.session.IsTransactionEnabled() }
