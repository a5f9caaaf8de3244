package prover

import (
	"errors"
	"fmt"
)

// Kind classifies prover failures. Only KindComputation and KindGuestProgram
// trigger a failure report.
type Kind int

const (
	KindOther Kind = iota
	KindMalformedTask
	KindParse
	KindComputation
	KindGuestProgram
)

func (k Kind) String() string {
	switch k {
	case KindMalformedTask:
		return "malformed_task"
	case KindParse:
		return "parse"
	case KindComputation:
		return "computation"
	case KindGuestProgram:
		return "guest_program"
	default:
		return "other"
	}
}

// Reportable reports whether failures of this kind are sent to the Reporter.
func (k Kind) Reportable() bool {
	return k == KindComputation || k == KindGuestProgram
}

// Error is the typed error returned by the prover and by engines.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	prefix := kindPrefix(e.Kind)
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrGuestProgram) works
// for any *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrMalformedTask = &Error{Kind: KindMalformedTask}
	ErrParse         = &Error{Kind: KindParse}
	ErrComputation   = &Error{Kind: KindComputation}
	ErrGuestProgram  = &Error{Kind: KindGuestProgram}

	ErrInvalidWorkerBudget = errors.New("worker budget must be at least 1")
)

func kindPrefix(k Kind) string {
	switch k {
	case KindMalformedTask:
		return "malformed task"
	case KindParse:
		return "invalid input"
	case KindComputation:
		return "proof computation failed"
	case KindGuestProgram:
		return "guest program failed"
	default:
		return "prover error"
	}
}

// NewError builds an *Error of kind k with a formatted message.
func NewError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error of kind k around err.
func WrapError(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindOther.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindOther
}
