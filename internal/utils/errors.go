package utils

import "fmt"

// OpError annotates an error with the failing operation and an optional
// human-facing message.
type OpError struct {
	Op  string
	Msg string
	Err error
}

func (e *OpError) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Op
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError constructs an OpError.
func NewOpError(op, msg string, err error) error {
	return &OpError{Op: op, Msg: msg, Err: err}
}
