package mongodb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap/zaptest"

	"entityservice/domain/criteria"
	"entityservice/domain/repository"
	"entityservice/domain/shared"
)

type taskDoc struct {
	TaskID string `bson:"_id"`
	Title  string `bson:"title"`
}

func (d *taskDoc) ID() string         { return d.TaskID }
func (d *taskDoc) AssignID(id string) { d.TaskID = id }

type labelDoc struct {
	Name string `bson:"_id"`
}

func (d *labelDoc) ID() string { return d.Name }

// offlineDB never reaches a server: the driver connects lazily and every
// test here fails before the first round trip.
func offlineDB(t *testing.T) *mongo.Database {
	t.Helper()
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client.Database("entities")
}

func TestRepository_Capabilities(t *testing.T) {
	repo := NewRepository[taskDoc]("Task", offlineDB(t).Collection("tasks"), WithLogger(zaptest.NewLogger(t)))

	assert.Equal(t, []string{
		repository.CapReadable,
		repository.CapWritable,
		repository.CapDeletable,
	}, repository.Capabilities(repo))
	assert.Equal(t, "Task", repo.EntityName())
	assert.Equal(t, "tasks", repo.Collection().Name())
}

func TestRepository_RejectsForeignEntities(t *testing.T) {
	repo := NewRepository[taskDoc]("Task", offlineDB(t).Collection("tasks"))
	ctx := context.Background()

	assert.ErrorIs(t, repo.Persist(ctx, &labelDoc{Name: "x"}), shared.ErrInvalidInput)
	assert.ErrorIs(t, repo.Delete(ctx, (*taskDoc)(nil)), shared.ErrInvalidInput)
}

func TestRepository_TranslationErrorsBeforeQuery(t *testing.T) {
	repo := NewRepository[taskDoc]("Task", offlineDB(t).Collection("tasks"))
	ctx := context.Background()
	bad := criteria.New().Where(criteria.Comparison{Field: "title", Operator: "~"})

	_, err := repo.FindBy(ctx, bad)
	assert.ErrorIs(t, err, shared.ErrTranslation)
	_, err = repo.CountBy(ctx, bad)
	assert.ErrorIs(t, err, shared.ErrTranslation)
	assert.ErrorIs(t, repo.DeleteBy(ctx, bad), shared.ErrTranslation)
}

func TestRepository_FieldMap(t *testing.T) {
	repo := NewRepository[taskDoc]("Task", offlineDB(t).Collection("tasks"),
		WithFieldMap(map[string]string{"Title": "title"}))

	got, err := repo.translator.Filter(criteria.And(criteria.Eq("id", "t1"), criteria.Eq("Title", "x")))
	require.NoError(t, err)
	assert.Equal(t, "_id", got[0].Value.(bson.A)[0].(bson.D)[0].Key)
	assert.Equal(t, "title", got[0].Value.(bson.A)[1].(bson.D)[0].Key)
}

func TestRepository_HandleError(t *testing.T) {
	repo := NewRepository[taskDoc]("Task", offlineDB(t).Collection("tasks"))

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	err := repo.handleError(dup)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.ErrorAs(t, err, new(mongo.WriteException))

	assert.ErrorIs(t, repo.handleError(mongo.ErrNoDocuments), shared.ErrNotFound)

	boom := errors.New("boom")
	assert.ErrorIs(t, repo.handleError(boom), boom)
}

func TestRepositoryFactory(t *testing.T) {
	f := NewRepositoryFactory(offlineDB(t))
	Register[taskDoc](f, "Task", "tasks")
	Register[labelDoc](f, "Label", "labels")

	assert.True(t, f.CanCreate("Task"))
	assert.False(t, f.CanCreate("User"))
	assert.Equal(t, []string{"Label", "Task"}, f.Names())

	repo, err := f.Create(context.Background(), "Label")
	require.NoError(t, err)
	require.IsType(t, &Repository[labelDoc, *labelDoc]{}, repo)
	assert.Equal(t, "labels", repo.(*Repository[labelDoc, *labelDoc]).Collection().Name())

	_, err = f.Create(context.Background(), "User")
	assert.ErrorIs(t, err, shared.ErrRepositoryNotFound)
}
