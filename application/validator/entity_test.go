package validator

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entityservice/application/entityservice"
	"entityservice/domain/repository"
	"entityservice/domain/shared"
	"entityservice/infrastructure/persistence/memory"
)

type user struct {
	id    string
	Email string
}

func (u *user) ID() string { return u.id }

func newUsers(t *testing.T) *entityservice.Service {
	t.Helper()
	reg := repository.NewRegistry()
	require.NoError(t, reg.Register("User", memory.NewCollectionRepository("User",
		&user{id: "u1", Email: "ann@example.com"},
	)))
	svc, err := entityservice.New(reg, "User")
	require.NoError(t, err)
	return svc
}

func TestEntityExists(t *testing.T) {
	svc := newUsers(t)

	for _, method := range []Method{MethodFindBy, MethodFindOneBy, MethodCountBy} {
		t.Run(string(method), func(t *testing.T) {
			v, err := NewEntityExists(svc, Options{Method: method})
			require.NoError(t, err)

			assert.NoError(t, v.Validate(context.Background(), "u1"))

			err = v.Validate(context.Background(), "u9")
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
			assert.Equal(t, "No object matching 'u9' was found", err.Error())
		})
	}
}

func TestEntityNotExists(t *testing.T) {
	svc := newUsers(t)
	v, err := NewEntityNotExists(svc, Options{Field: "email"})
	require.NoError(t, err)

	assert.NoError(t, v.Validate(context.Background(), "bob@example.com"))

	err = v.Validate(context.Background(), "ann@example.com")
	require.Error(t, err)
	assert.Equal(t, "Object matching 'ann@example.com' was found", err.Error())

	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "User", de.Entity)
	assert.Equal(t, "email", de.Field)
}

func TestNewEntityExists_InvalidOptions(t *testing.T) {
	_, err := NewEntityExists(nil, Options{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewEntityExists(newUsers(t), Options{Method: "delete"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRegister(t *testing.T) {
	svc := newUsers(t)
	exists, err := NewEntityExists(svc, Options{})
	require.NoError(t, err)
	unique, err := NewEntityNotExists(svc, Options{Field: "email"})
	require.NoError(t, err)

	validate := validator.New()
	require.NoError(t, Register(validate, "user_exists", exists))
	require.NoError(t, Register(validate, "email_free", unique))

	type request struct {
		UserID string `validate:"required,user_exists"`
		Email  string `validate:"required,email,email_free"`
	}

	ctx := context.Background()
	assert.NoError(t, validate.StructCtx(ctx, request{UserID: "u1", Email: "new@example.com"}))

	err = validate.StructCtx(ctx, request{UserID: "nope", Email: "ann@example.com"})
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	tags := []string{verrs[0].Tag(), verrs[1].Tag()}
	assert.ElementsMatch(t, []string{"user_exists", "email_free"}, tags)
}
