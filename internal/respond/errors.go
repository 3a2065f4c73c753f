package respond

import "errors"

var (
	// ErrExecutionNotFound is returned for unknown execution ids.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrInvalidTransition is returned when an operation is not legal from
	// the execution's current state. The execution is left untouched.
	ErrInvalidTransition = errors.New("invalid execution state transition")

	// ErrRollbackUnsupported is returned when the originating action is not
	// reversible.
	ErrRollbackUnsupported = errors.New("rollback not supported for this action")
)
