// Package validator checks input values against stored entities.
package validator

import (
	"context"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"entityservice/application/entityservice"
	"entityservice/domain/criteria"
	"entityservice/domain/shared"
)

// Method façade lookup used to test a value.
type Method string

const (
	MethodFindBy    Method = "findBy"
	MethodFindOneBy Method = "findOneBy"
	MethodCountBy   Method = "countBy"
)

// Lookup the read side of an entity service.
type Lookup interface {
	FindBy(ctx context.Context, c *criteria.Criteria) (*entityservice.Result, error)
	FindOneBy(ctx context.Context, c *criteria.Criteria) (shared.Entity, error)
	CountBy(ctx context.Context, c *criteria.Criteria) (int64, error)
}

// Options lookup field and method, "id" and findBy by default.
type Options struct {
	Field  string `default:"id"`
	Method Method `default:"findBy"`
}

// Checker validates a single value.
type Checker interface {
	Validate(ctx context.Context, value any) error
}

type entityCheck struct {
	lookup Lookup
	opts   Options
	entity string
}

func newEntityCheck(lookup Lookup, opts Options) (entityCheck, error) {
	if lookup == nil {
		return entityCheck{}, shared.NewValidationError("", "lookup", "entity lookup must not be nil")
	}
	if err := defaults.Set(&opts); err != nil {
		return entityCheck{}, err
	}
	switch opts.Method {
	case MethodFindBy, MethodFindOneBy, MethodCountBy:
	default:
		return entityCheck{}, shared.NewValidationError("", "method", fmt.Sprintf("unsupported lookup method %q", opts.Method))
	}
	var entity string
	if named, ok := lookup.(interface{ EntityName() string }); ok {
		entity = named.EntityName()
	}
	return entityCheck{lookup: lookup, opts: opts, entity: entity}, nil
}

// found runs the configured lookup for field = value.
func (c entityCheck) found(ctx context.Context, value any) (bool, error) {
	crit := criteria.FromMapping(map[string]any{c.opts.Field: value})

	switch c.opts.Method {
	case MethodFindOneBy:
		e, err := c.lookup.FindOneBy(ctx, crit)
		return e != nil, err
	case MethodCountBy:
		n, err := c.lookup.CountBy(ctx, crit)
		return n > 0, err
	default:
		res, err := c.lookup.FindBy(ctx, crit)
		if err != nil {
			return false, err
		}
		return res.Count() > 0, nil
	}
}

// EntityExists fails when no entity matches the value.
type EntityExists struct{ check entityCheck }

func NewEntityExists(lookup Lookup, opts Options) (*EntityExists, error) {
	c, err := newEntityCheck(lookup, opts)
	if err != nil {
		return nil, err
	}
	return &EntityExists{check: c}, nil
}

// Validate implements Checker
func (v *EntityExists) Validate(ctx context.Context, value any) error {
	ok, err := v.check.found(ctx, value)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewValidationError(v.check.entity, v.check.opts.Field,
			fmt.Sprintf("No object matching '%v' was found", value))
	}
	return nil
}

// EntityNotExists fails when an entity matches the value.
type EntityNotExists struct{ check entityCheck }

func NewEntityNotExists(lookup Lookup, opts Options) (*EntityNotExists, error) {
	c, err := newEntityCheck(lookup, opts)
	if err != nil {
		return nil, err
	}
	return &EntityNotExists{check: c}, nil
}

// Validate implements Checker
func (v *EntityNotExists) Validate(ctx context.Context, value any) error {
	ok, err := v.check.found(ctx, value)
	if err != nil {
		return err
	}
	if ok {
		return shared.NewValidationError(v.check.entity, v.check.opts.Field,
			fmt.Sprintf("Object matching '%v' was found", value))
	}
	return nil
}

// Register binds check to a struct tag, e.g. `validate:"note_exists"`.
// Use validate.StructCtx so the lookup sees the request context.
func Register(validate *validator.Validate, tag string, check Checker) error {
	return validate.RegisterValidationCtx(tag, func(ctx context.Context, fl validator.FieldLevel) bool {
		return check.Validate(ctx, fl.Field().Interface()) == nil
	})
}
