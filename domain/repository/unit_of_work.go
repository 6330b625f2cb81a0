package repository

import (
	"context"
	"sync"
)

// UnitOfWork groups the stateful repository work of one caller.
//
// Scopes transaction and pending-change state of stateful repositories to one
// logical caller: an HTTP request, a transaction aggregate run. It travels in
// the context; repositories keep their state for it under their own key.
// Two callers with different units never see each other's transaction.
type UnitOfWork struct {
	mu    sync.Mutex
	state map[any]any
}

type unitOfWorkKey struct{}

// ContextWithUnitOfWork returns ctx carrying a new, empty unit of work.
func ContextWithUnitOfWork(ctx context.Context) context.Context {
	return context.WithValue(ctx, unitOfWorkKey{}, &UnitOfWork{state: make(map[any]any)})
}

// EnsureUnitOfWork returns ctx unchanged when it already carries a unit of
// work, otherwise ctx with a new one.
func EnsureUnitOfWork(ctx context.Context) context.Context {
	if UnitOfWorkFromContext(ctx) != nil {
		return ctx
	}
	return ContextWithUnitOfWork(ctx)
}

// UnitOfWorkFromContext unit of work carried by ctx, nil if none.
func UnitOfWorkFromContext(ctx context.Context) *UnitOfWork {
	u, _ := ctx.Value(unitOfWorkKey{}).(*UnitOfWork)
	return u
}

// Load returns the state owner keeps in this unit, creating it on first use.
func (u *UnitOfWork) Load(owner any, create func() any) any {
	u.mu.Lock()
	defer u.mu.Unlock()
	if v, ok := u.state[owner]; ok {
		return v
	}
	v := create()
	u.state[owner] = v
	return v
}
