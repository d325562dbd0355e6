package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFormat          = errors.New("bad time format")
	ErrClosed          = errors.New("scheduler closed")
)

// ArgumentError reports a schedule request that cannot be turned into a job.
type ArgumentError struct{ Msg string }

func (e *ArgumentError) Error() string { return e.Msg }

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

func invalidArg(msg string) error { return &ArgumentError{Msg: msg} }

// FormatError reports the unconsumed remainder of a duration string.
type FormatError struct{ Input string }

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: bad time format, expected number[dhms]", e.Input)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// CallbackError wraps a failure returned (or panicked) by a job callback.
type CallbackError struct {
	JobID string
	Err   error
}

func (e *CallbackError) Error() string { return fmt.Sprintf("job %s: %v", e.JobID, e.Err) }
func (e *CallbackError) Unwrap() error { return e.Err }
