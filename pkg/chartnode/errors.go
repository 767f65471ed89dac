package chartnode

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when an image is requested from a node that
	// has no drawn chart.
	ErrNotReady = errors.New("chart is not drawn")
	// ErrNilConfiguration is returned by DrawChart for a nil configuration.
	ErrNilConfiguration = errors.New("nil chart configuration")
	// ErrPanic wraps a panic raised while drawing.
	ErrPanic = errors.New("panic while drawing")
)

// Error records the node operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chartnode: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
