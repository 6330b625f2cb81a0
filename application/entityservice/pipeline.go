package entityservice

import (
	"context"
	"sort"
	"sync"
)

// Handler processes one dispatch.
type Handler func(ctx context.Context, ev *Event) error

// Middleware wraps the rest of the chain. Returning without calling next
// stops the dispatch.
type Middleware func(next Handler) Handler

// ListenerID identifies an attached middleware for Detach.
type ListenerID uint64

// DefaultPriority priority of the bundled repository step.
const DefaultPriority = 0

type listener struct {
	id       ListenerID
	priority int
	mw       Middleware
}

// listenerTable per operation lists, kept in descending priority order,
// insertion order among equal priorities.
type listenerTable struct {
	mu     sync.RWMutex
	lastID ListenerID
	byOp   map[Operation][]listener
}

func newListenerTable() *listenerTable {
	return &listenerTable{byOp: make(map[Operation][]listener)}
}

func (t *listenerTable) attach(op Operation, priority int, mw Middleware) ListenerID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastID++
	l := listener{id: t.lastID, priority: priority, mw: mw}

	list := t.byOp[op]
	// first index with a strictly lower priority
	idx := sort.Search(len(list), func(i int) bool { return list[i].priority < priority })
	list = append(list, listener{})
	copy(list[idx+1:], list[idx:])
	list[idx] = l
	t.byOp[op] = list

	return l.id
}

func (t *listenerTable) detach(id ListenerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for op, list := range t.byOp {
		for i, l := range list {
			if l.id == id {
				t.byOp[op] = append(list[:i:i], list[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (t *listenerTable) count(op Operation) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byOp[op])
}

// chain composes the listeners of op around the no-op terminal step.
func (t *listenerTable) chain(op Operation) Handler {
	t.mu.RLock()
	list := append([]listener(nil), t.byOp[op]...)
	t.mu.RUnlock()

	h := Handler(terminal)
	for i := len(list) - 1; i >= 0; i-- {
		h = list[i].mw(h)
	}
	return h
}

func terminal(context.Context, *Event) error { return nil }
