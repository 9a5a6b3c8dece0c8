// Package errs defines the error kinds consumed and produced across the task
// runtime (spec.md §7): transport-unreachable, temporary hardware, critical
// hardware, and configuration errors. Kinds are distinguished with
// errors.Is-compatible sentinels wrapped by github.com/pkg/errors so callers
// keep a cause chain without hand-rolling one.
package errs

import (
	"github.com/pkg/errors"
)

// Sentinel kinds. Wrap one of these with errors.Wrap/Wrapf to attach context
// while keeping errors.Is(err, errs.Unreachable) working.
var (
	// Unreachable marks a transport error that the breaker should arbitrate
	// retries for (spec.md §4.1, §4.8).
	Unreachable = errors.New("errs: transport unreachable")
	// TemporaryHardware marks a no-op-this-tick condition raised by a
	// hardware-bound Source, e.g. a dequeue timeout (spec.md §4.3).
	TemporaryHardware = errors.New("errs: temporary hardware error")
	// CriticalHardware marks a fatal vendor error that stops the owning Task
	// without Manager auto-restart (spec.md §4.3, §7).
	CriticalHardware = errors.New("errs: critical hardware error")
	// Configuration marks a parse or cluster-resolution failure that
	// prevents a Task from being instantiated (spec.md §4.7, §7).
	Configuration = errors.New("errs: configuration error")
)

// IsUnreachable reports whether err (or any error it wraps) is a transport
// unreachable error.
func IsUnreachable(err error) bool { return errors.Is(err, Unreachable) }

// IsTemporaryHardware reports whether err is a temporary hardware error.
func IsTemporaryHardware(err error) bool { return errors.Is(err, TemporaryHardware) }

// IsCriticalHardware reports whether err is a critical hardware error.
func IsCriticalHardware(err error) bool { return errors.Is(err, CriticalHardware) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return errors.Is(err, Configuration) }

// Wrap annotates err with kind as its errors.Is-matchable cause and msg as
// human-readable context.
func Wrap(kind error, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(join(kind, err), msg)
}

// New builds a new error of the given kind carrying msg.
func New(kind error, msg string) error {
	return errors.WithMessage(kind, msg)
}

func join(kind, err error) error {
	return &kindedError{kind: kind, cause: err}
}

type kindedError struct {
	kind  error
	cause error
}

func (e *kindedError) Error() string { return e.cause.Error() }
func (e *kindedError) Unwrap() error { return e.cause }
func (e *kindedError) Is(target error) bool {
	return target == e.kind || errors.Is(e.cause, target)
}
