package entityservice

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"entityservice/domain/repository"
	"entityservice/domain/shared"
	"entityservice/pkg/logger"
)

// AggregateState lifecycle of a TransactionAggregate.
type AggregateState int

const (
	StateIdle AggregateState = iota
	StateRunning
	StateCommitted
	StateRolledBack
)

func (s AggregateState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	}
	return fmt.Sprintf("AggregateState(%d)", int(s))
}

// ErrAggregateExecuted Execute was already called on the aggregate.
var ErrAggregateExecuted = errors.New("transaction aggregate already executed")

// CommandFunc deferred operation run inside the aggregate transaction.
type CommandFunc func(ctx context.Context, params ...any) error

// DefaultCommandPriority priority used by Add.
const DefaultCommandPriority = 1

type command struct {
	fn       CommandFunc
	params   []any
	priority int
}

// TransactionAggregate runs commands of several transaction aware
// participants as one all-or-nothing unit:
//
//	begin every participant -> run commands by priority -> commit every participant
//
// Any command error (or panic) rolls every participant back instead.
//
// There is no prepare phase: a commit failing after other participants have
// committed cannot be undone. Participants should share one physical
// transaction resource.
type TransactionAggregate struct {
	mu           sync.Mutex
	state        AggregateState
	commands     []command
	participants []repository.TransactionAware
	log          *zap.Logger
}

// NewTransactionAggregate creates an idle aggregate. A nil logger falls back
// to the global one.
func NewTransactionAggregate(l *zap.Logger) *TransactionAggregate {
	if l == nil {
		l = logger.With()
	}
	return &TransactionAggregate{log: l.With(zap.String("component", "transaction_aggregate"))}
}

// AddCommand queues fn for participant. Higher priorities run first, equal
// priorities in insertion order. participant must have transactions enabled.
func (a *TransactionAggregate) AddCommand(participant repository.TransactionAware, fn CommandFunc, params []any, priority int) error {
	if participant == nil || isNilValue(reflect.ValueOf(participant)) {
		return shared.NewValidationError("", "participant", "participant is not transaction aware")
	}
	if fn == nil {
		return shared.NewValidationError("", "command", "command must not be nil")
	}
	if !participant.IsTransactionEnabled() {
		return shared.NewValidationError("", "participant",
			fmt.Sprintf("transactions are not enabled for participant %T", participant))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle {
		return ErrAggregateExecuted
	}

	a.commands = append(a.commands, command{fn: fn, params: params, priority: priority})
	if !a.hasParticipant(participant) {
		a.participants = append(a.participants, participant)
	}
	return nil
}

// Add queues a parameterless command at DefaultCommandPriority.
func (a *TransactionAggregate) Add(participant repository.TransactionAware, fn func(ctx context.Context) error) error {
	if fn == nil {
		return shared.NewValidationError("", "command", "command must not be nil")
	}
	return a.AddCommand(participant, func(ctx context.Context, _ ...any) error { return fn(ctx) }, nil, DefaultCommandPriority)
}

// State current state.
func (a *TransactionAggregate) State() AggregateState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Execute runs the queued commands. It can be called once.
// Participants and commands see ctx with a unit of work, a new one unless ctx
// already carries one, so the transaction stays private to this caller.
func (a *TransactionAggregate) Execute(ctx context.Context) error {
	ctx = repository.EnsureUnitOfWork(ctx)

	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return ErrAggregateExecuted
	}
	a.state = StateRunning
	commands := append([]command(nil), a.commands...)
	participants := append([]repository.TransactionAware(nil), a.participants...)
	a.mu.Unlock()

	sort.SliceStable(commands, func(i, j int) bool { return commands[i].priority > commands[j].priority })

	a.log.Debug("transaction aggregate begin",
		zap.Int("participants", len(participants)),
		zap.Int("commands", len(commands)),
	)

	// 1. begin
	for i, p := range participants {
		if err := p.BeginTransaction(ctx); err != nil {
			rbErr := a.rollback(ctx, participants[:i])
			return a.fail("begin transaction failed", errors.Join(err, rbErr))
		}
	}

	// 2. run commands
	for i, cmd := range commands {
		if err := runCommand(ctx, cmd); err != nil {
			a.log.Warn("transaction aggregate command failed, rolling back",
				zap.Int("command", i),
				zap.Error(err),
			)
			rbErr := a.rollback(ctx, participants)
			return a.fail("transaction aggregate rolled back", errors.Join(err, rbErr))
		}
	}

	// 3. commit
	for i, p := range participants {
		if err := p.CommitTransaction(ctx); err != nil {
			rbErr := a.rollback(ctx, participants[i:])
			return a.fail("commit transaction failed", errors.Join(err, rbErr))
		}
	}

	a.setState(StateCommitted)
	a.log.Debug("transaction aggregate committed", zap.Int("participants", len(participants)))
	return nil
}

func (a *TransactionAggregate) rollback(ctx context.Context, participants []repository.TransactionAware) error {
	var errs []error
	for _, p := range participants {
		if err := p.RollbackTransaction(ctx); err != nil {
			a.log.Error("rollback failed", zap.String("participant", fmt.Sprintf("%T", p)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *TransactionAggregate) fail(message string, cause error) error {
	a.setState(StateRolledBack)
	return shared.NewTransactionError(message, cause)
}

func (a *TransactionAggregate) setState(s AggregateState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// hasParticipant compares by identity; values of non comparable types are
// never considered equal.
func (a *TransactionAggregate) hasParticipant(p repository.TransactionAware) bool {
	if !reflect.TypeOf(p).Comparable() {
		return false
	}
	for _, existing := range a.participants {
		if reflect.TypeOf(existing) == reflect.TypeOf(p) && existing == p {
			return true
		}
	}
	return false
}

func runCommand(ctx context.Context, cmd command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in command: %v", r)
		}
	}()
	return cmd.fn(ctx, cmd.params...)
}
