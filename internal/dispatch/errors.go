package dispatch

import (
	"errors"
	"fmt"
)

// ErrFatal marks a sink failure that aborts the whole run.
var ErrFatal = errors.New("monitor sink error")

// FatalError wraps the sink failure that aborted the run.
type FatalError struct {
	Op   string
	Sink string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%v: %s %s sink: %v", ErrFatal, e.Op, e.Sink, e.Err)
}

func (e *FatalError) Unwrap() []error {
	return []error{ErrFatal, e.Err}
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
