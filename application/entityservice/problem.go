package entityservice

import (
	"errors"

	"entityservice/domain/shared"
)

// Problem codes. DefaultProblemCode is used when a listener does not pick one.
const (
	DefaultProblemCode     = 1
	CodeInvalidInput       = 400
	CodeNotFound           = 404
	CodeConflict           = 409
	CodeTranslation        = 422
	CodeInvalidEntityType  = 460
	CodeRepositoryNotFound = 461
	CodeTransaction        = 500
	CodeCapability         = 501
)

// Problem reports that an operation did not produce a result.
//
// Listeners stop a dispatch with a failure by returning a *Problem; the
// façade hands it back to the caller unchanged. Problem is immutable.
type Problem struct {
	message string
	code    int
	cause   error
}

// NewProblem creates a problem; code <= 0 means DefaultProblemCode.
func NewProblem(message string, code int) *Problem {
	if code <= 0 {
		code = DefaultProblemCode
	}
	return &Problem{message: message, code: code}
}

// WithCause returns a copy of p carrying cause.
func (p *Problem) WithCause(cause error) *Problem {
	cp := *p
	cp.cause = cause
	return &cp
}

func (p *Problem) Message() string { return p.message }
func (p *Problem) Code() int       { return p.code }

// Error implements error
func (p *Problem) Error() string { return p.message }

// Unwrap exposes the cause, if any.
func (p *Problem) Unwrap() error { return p.cause }

// AsProblem converts err into a Problem.
// A Problem anywhere in the chain is returned as is; any other error is
// wrapped with a code derived from its sentinel. nil stays nil.
func AsProblem(err error) *Problem {
	if err == nil {
		return nil
	}
	var p *Problem
	if errors.As(err, &p) {
		return p
	}
	return NewProblem(err.Error(), codeOf(err)).WithCause(err)
}

func codeOf(err error) int {
	switch {
	case errors.Is(err, shared.ErrCapability):
		return CodeCapability
	case errors.Is(err, shared.ErrTranslation):
		return CodeTranslation
	case errors.Is(err, shared.ErrTransaction):
		return CodeTransaction
	case errors.Is(err, shared.ErrInvalidEntityType):
		return CodeInvalidEntityType
	case errors.Is(err, shared.ErrRepositoryNotFound):
		return CodeRepositoryNotFound
	case errors.Is(err, shared.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, shared.ErrConflict):
		return CodeConflict
	case errors.Is(err, shared.ErrInvalidInput):
		return CodeInvalidInput
	default:
		return DefaultProblemCode
	}
}
