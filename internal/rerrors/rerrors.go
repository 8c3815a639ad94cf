// Package rerrors defines the typed error kinds used across the repeater.
//
// Failures raised by the config, registry, validate, socket, poller, and
// dispatch packages are *Error values so callers can inspect Kind without
// needing one Go type per error kind; internal/daemon and cmd/repeaterd
// report their own setup failures as plain fmt errors. This is the
// same single-struct shape as a typical Operation/Err/Details network error.
package rerrors

import "fmt"

// Kind classifies a repeater error for policy decisions (fatal vs. log-and-continue).
type Kind int

const (
	// Configuration covers malformed or missing fields, bad ids, bad ports,
	// duplicate ids, and invalid IPv4 literals. Always fatal before the loop starts.
	Configuration Kind = iota
	// Validation covers dangling cross-references and unused entities.
	// Always fatal before the loop starts.
	Validation
	// Socket covers socket creation, binding, or option failures during setup.
	Socket
	// RecvRuntime covers a per-packet receive failure once the loop is running.
	// Logged and the datagram is dropped; never retried.
	RecvRuntime
	// SendRuntime covers a per-packet send failure once the loop is running.
	// Logged and the datagram is dropped; never retried.
	SendRuntime
	// Poll covers a fatal failure of the blocking multiplex wait.
	Poll
	// Exhaustion covers exceeding an implementation-defined resource limit.
	Exhaustion
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Validation:
		return "validation"
	case Socket:
		return "socket"
	case RecvRuntime:
		return "recv"
	case SendRuntime:
		return "send"
	case Poll:
		return "poll"
	case Exhaustion:
		return "exhaustion"
	default:
		return "unknown"
	}
}

// Error is the single typed-error shape used throughout the repeater.
type Error struct {
	Kind      Kind
	Operation string
	Details   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Operation, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Operation, e.Details)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether errors of this kind must stop the daemon before it
// starts serving, per the error-handling policy table.
func (k Kind) Fatal() bool {
	switch k {
	case RecvRuntime, SendRuntime:
		return false
	default:
		return true
	}
}

// New constructs a repeater error. err may be nil.
func New(kind Kind, operation, details string, err error) *Error {
	return &Error{Kind: kind, Operation: operation, Details: details, Err: err}
}
