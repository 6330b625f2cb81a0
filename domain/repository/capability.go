// Package repository declares repository capabilities and the registry.
//
// A repository advertises what it can do by implementing any subset of the
// capability interfaces below. The entity service checks capabilities before
// dispatching an operation and fails with shared.ErrCapability when the
// repository lacks one.
package repository

import (
	"context"

	"entityservice/domain/criteria"
	"entityservice/domain/shared"
)

// Repository is any value implementing at least one capability interface.
type Repository = any

// Readable repositories look entities up.
type Readable interface {
	// Find returns the entity with id, or nil with a nil error when absent.
	Find(ctx context.Context, id string) (shared.Entity, error)

	FindAll(ctx context.Context) ([]shared.Entity, error)

	// FindBy honours the criteria's where expression, ordering and offset/limit.
	FindBy(ctx context.Context, c *criteria.Criteria) ([]shared.Entity, error)

	// FindOneBy returns the first match, or nil with a nil error when nothing matches.
	FindOneBy(ctx context.Context, c *criteria.Criteria) (shared.Entity, error)

	// CountBy counts matches, ignoring offset/limit.
	CountBy(ctx context.Context, c *criteria.Criteria) (int64, error)
}

// Writable repositories store new or changed entities.
type Writable interface {
	Persist(ctx context.Context, e shared.Entity) error
}

// Deletable repositories remove entities.
type Deletable interface {
	Delete(ctx context.Context, e shared.Entity) error
	DeleteBy(ctx context.Context, c *criteria.Criteria) error
}

// Flushable repositories buffer writes until Flush.
// Without arguments every pending change is written.
type Flushable interface {
	Flush(ctx context.Context, entities ...shared.Entity) error
}

// TransactionAware repositories expose explicit transaction control.
type TransactionAware interface {
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	IsTransactionEnabled() bool
}

// Capability names used in error messages.
const (
	CapReadable           = "readable"
	CapWritable           = "writable"
	CapDeletable          = "deletable"
	CapFlushable          = "flushable"
	CapTransactionAware   = "transaction aware"
	CapTransactionEnabled = "transaction enabled"
)

// ============================================================================
// Checks
// ============================================================================

func AsReadable(r Repository) (Readable, bool) {
	v, ok := r.(Readable)
	return v, ok
}

func AsWritable(r Repository) (Writable, bool) {
	v, ok := r.(Writable)
	return v, ok
}

func AsDeletable(r Repository) (Deletable, bool) {
	v, ok := r.(Deletable)
	return v, ok
}

func AsFlushable(r Repository) (Flushable, bool) {
	v, ok := r.(Flushable)
	return v, ok
}

func AsTransactionAware(r Repository) (TransactionAware, bool) {
	v, ok := r.(TransactionAware)
	return v, ok
}

// Capabilities lists the capability names r implements.
func Capabilities(r Repository) []string {
	var caps []string
	if _, ok := AsReadable(r); ok {
		caps = append(caps, CapReadable)
	}
	if _, ok := AsWritable(r); ok {
		caps = append(caps, CapWritable)
	}
	if _, ok := AsDeletable(r); ok {
		caps = append(caps, CapDeletable)
	}
	if _, ok := AsFlushable(r); ok {
		caps = append(caps, CapFlushable)
	}
	if _, ok := AsTransactionAware(r); ok {
		caps = append(caps, CapTransactionAware)
	}
	return caps
}
