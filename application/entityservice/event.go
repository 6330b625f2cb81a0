package entityservice

import (
	"time"

	"github.com/google/uuid"

	"entityservice/domain/criteria"
	"entityservice/domain/shared"
)

// Params parameter bag of one dispatch. Only the fields relevant to the
// operation are set.
type Params struct {
	ID       string
	Criteria *criteria.Criteria
	Entity   shared.Entity
	Entities []shared.Entity

	// IsNew entity had no identity when persist was called
	IsNew bool

	// DeferFlush set on the persists issued by multiPersist, which flushes once at the end
	DeferFlush bool
}

// Event one dispatch, created per call and discarded when the call returns.
type Event struct {
	ID         string
	Operation  Operation
	EntityName string
	Target     *Service
	Params     Params

	// Result value produced by the chain:
	//   find, findOneBy        shared.Entity (nil when absent)
	//   findAll, findBy        *Result
	//   countBy                int64
	//   write operations       nil
	Result any

	StartedAt time.Time
}

func newEvent(s *Service, op Operation, params Params) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Operation:  op,
		EntityName: s.entityName,
		Target:     s,
		Params:     params,
		StartedAt:  time.Now(),
	}
}
