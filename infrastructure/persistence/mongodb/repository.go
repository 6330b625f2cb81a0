package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"entityservice/domain/criteria"
	"entityservice/domain/shared"
	"entityservice/pkg/logger"
)

// Model is a document type whose pointer is an entity. The document keeps
// its id under `bson:"_id"`.
type Model[T any] interface {
	*T
	shared.Entity
}

// Repository stores one document type in one collection. Writes are applied
// immediately; it is neither flushable nor transaction aware.
type Repository[T any, PT Model[T]] struct {
	name       string
	collection *mongo.Collection
	translator *Translator
	log        *zap.Logger
}

type Option func(*repoOptions)

type repoOptions struct {
	fields map[string]string
	log    *zap.Logger
}

// WithFieldMap maps criteria fields to document keys. "id" maps to "_id"
// unless overridden.
func WithFieldMap(fields map[string]string) Option {
	return func(o *repoOptions) {
		for k, v := range fields {
			o.fields[k] = v
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *repoOptions) { o.log = l }
}

func NewRepository[T any, PT Model[T]](name string, collection *mongo.Collection, opts ...Option) *Repository[T, PT] {
	o := &repoOptions{fields: map[string]string{"id": "_id"}}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get()
	}
	return &Repository[T, PT]{
		name:       name,
		collection: collection,
		translator: NewTranslator(o.fields),
		log:        o.log.Named("mongodb").With(zap.String("entity", name)),
	}
}

func (r *Repository[T, PT]) EntityName() string { return r.name }

func (r *Repository[T, PT]) Collection() *mongo.Collection { return r.collection }

// ============================================================================
// Readable
// ============================================================================

func (r *Repository[T, PT]) Find(ctx context.Context, id string) (shared.Entity, error) {
	var doc T
	err := r.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, r.handleError(err)
	}
	return PT(&doc), nil
}

func (r *Repository[T, PT]) FindAll(ctx context.Context) ([]shared.Entity, error) {
	return r.FindBy(ctx, nil)
}

func (r *Repository[T, PT]) FindBy(ctx context.Context, c *criteria.Criteria) ([]shared.Entity, error) {
	filter, err := r.translator.Filter(c.WhereExpression())
	if err != nil {
		return nil, err
	}
	cursor, err := r.collection.Find(ctx, filter, r.translator.FindOptions(c))
	if err != nil {
		return nil, r.handleError(err)
	}
	defer func() {
		if closeErr := cursor.Close(ctx); closeErr != nil {
			r.log.Warn("failed to close cursor", zap.Error(closeErr))
		}
	}()

	var out []shared.Entity
	for cursor.Next(ctx) {
		doc := new(T)
		if err := cursor.Decode(doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.name, err)
		}
		out = append(out, PT(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, r.handleError(err)
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
	filter, err := r.translator.Filter(c.WhereExpression())
	if err != nil {
		return 0, err
	}
	n, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, r.handleError(err)
	}
	return n, nil
}

// ============================================================================
// Writable / Deletable
// ============================================================================

// Persist upserts e by id. Entities without an id get a uuid first.
func (r *Repository[T, PT]) Persist(ctx context.Context, e shared.Entity) error {
	m, err := r.model(e)
	if err != nil {
		return err
	}
	if !shared.HasID(m) {
		assigner, ok := e.(shared.IdentityAssigner)
		if !ok {
			return shared.NewValidationError(r.name, "id", "entity has no id")
		}
		assigner.AssignID(uuid.NewString())
	}

	_, err = r.collection.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: m.ID()}},
		m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return r.handleError(err)
	}
	r.log.Debug("document saved", zap.String("id", m.ID()))
	return nil
}

func (r *Repository[T, PT]) Delete(ctx context.Context, e shared.Entity) error {
	m, err := r.model(e)
	if err != nil {
		return err
	}
	if _, err := r.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: m.ID()}}); err != nil {
		return r.handleError(err)
	}
	return nil
}

// DeleteBy deletes every matching document; an empty criteria deletes all of them.
func (r *Repository[T, PT]) DeleteBy(ctx context.Context, c *criteria.Criteria) error {
	filter, err := r.translator.Filter(c.WhereExpression())
	if err != nil {
		return err
	}
	res, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return r.handleError(err)
	}
	r.log.Debug("documents deleted", zap.Int64("count", res.DeletedCount))
	return nil
}

func (r *Repository[T, PT]) model(e shared.Entity) (PT, error) {
	m, ok := e.(PT)
	if !ok || (*T)(m) == nil {
		var zero PT
		return zero, shared.NewValidationError(r.name, "entity", fmt.Sprintf("expected %T, got %T", new(T), e))
	}
	return m, nil
}

// handleError maps driver errors to shared errors.
func (r *Repository[T, PT]) handleError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return shared.NewNotFoundError(r.name)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %w", shared.NewConflictError(r.name, "duplicate key"), err)
	}
	return fmt.Errorf("%s: %w", r.name, err)
}
