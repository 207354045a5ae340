package monitor

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a check failed.
type ErrorKind int

const (
	// KindExecution: the probe could not run, wrote to stderr or produced no output.
	KindExecution ErrorKind = iota
	// KindTimeout: no reply before the deadline.
	KindTimeout
	// KindUnreachable: target not found, denied, or not serving.
	KindUnreachable
	// KindConfiguration: the monitor cannot be checked as configured.
	KindConfiguration
	// KindUnexpectedOutput: the probe output could not be understood.
	KindUnexpectedOutput
)

var (
	ErrExecution        = errors.New("execution error")
	ErrTimeout          = errors.New("timeout")
	ErrUnreachable      = errors.New("unreachable")
	ErrConfiguration    = errors.New("configuration error")
	ErrUnexpectedOutput = errors.New("unexpected output")
)

var kindSentinels = map[ErrorKind]error{
	KindExecution:        ErrExecution,
	KindTimeout:          ErrTimeout,
	KindUnreachable:      ErrUnreachable,
	KindConfiguration:    ErrConfiguration,
	KindUnexpectedOutput: ErrUnexpectedOutput,
}

func (k ErrorKind) String() string {
	switch k {
	case KindExecution:
		return "execution"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindConfiguration:
		return "configuration"
	case KindUnexpectedOutput:
		return "unexpected_output"
	default:
		return "unknown"
	}
}

// CheckError is the failure result of a check.
type CheckError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func newCheckError(kind ErrorKind, msg string, cause error) *CheckError {
	return &CheckError{Kind: kind, Msg: msg, Err: cause}
}

func (e *CheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTimeout) and friends match on the kind.
func (e *CheckError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of a check failure. Errors that do not carry a
// kind are execution errors, unless a deadline expired.
func KindOf(err error) ErrorKind {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindExecution
}
