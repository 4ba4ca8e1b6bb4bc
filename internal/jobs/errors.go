package jobs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInput Kind = iota + 1
	KindResolver
	KindRetrieval
	KindSetup
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindResolver:
		return "resolver"
	case KindRetrieval:
		return "retrieval"
	case KindSetup:
		return "setup"
	default:
		return "unknown"
	}
}

// Error classifies a failure so the transport layer can pick a status code.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or 0 if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
