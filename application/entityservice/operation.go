/*
Package entityservice is the entity service facade.

Service exposes an entity agnostic CRUD surface on top of a repository that
implements any subset of the capability interfaces in domain/repository.

Every operation is routed through a priority ordered middleware chain:

	caller -> capability check -> [listener p>0 ...] -> default step (p=0) -> [listener p<0 ...] -> no-op

The default step calls the repository, stores the value on the Event and then
calls next, so lower priority listeners see the result. A listener
short-circuits by returning without calling next: with an error (typically a
*Problem) to fail the call, or with nil after setting Event.Result to answer it.
*/
package entityservice

import "fmt"

// Operation identifies one façade operation.
type Operation int

const (
	OpFind Operation = iota + 1
	OpFindAll
	OpFindBy
	OpFindOneBy
	OpCountBy
	OpPersist
	OpMultiPersist
	OpDelete
	OpDeleteBy
)

var operationNames = map[Operation]string{
	OpFind:         "find",
	OpFindAll:      "findAll",
	OpFindBy:       "findBy",
	OpFindOneBy:    "findOneBy",
	OpCountBy:      "countBy",
	OpPersist:      "persist",
	OpMultiPersist: "multiPersist",
	OpDelete:       "delete",
	OpDeleteBy:     "deleteBy",
}

// Operations lists every operation in declaration order.
func Operations() []Operation {
	return []Operation{
		OpFind, OpFindAll, OpFindBy, OpFindOneBy, OpCountBy,
		OpPersist, OpMultiPersist, OpDelete, OpDeleteBy,
	}
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// IsWrite reports whether o mutates the repository.
func (o Operation) IsWrite() bool {
	switch o {
	case OpPersist, OpMultiPersist, OpDelete, OpDeleteBy:
		return true
	}
	return false
}

// ParseOperation maps an operation name ("findBy", "persist", ...) back to its value.
func ParseOperation(name string) (Operation, bool) {
	for op, n := range operationNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}
