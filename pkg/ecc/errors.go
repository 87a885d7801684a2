package ecc

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so propagation policy is enforced by
// type. Transient failures are abandoned for the tick and retried on the
// next pass; Fatal failures stop the checker; Validation failures are
// recorded per item and never abort a batch.
type Kind int

const (
	KindTransient Kind = iota
	KindFatal
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps a remote failure that should be retried on a later tick.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Fatal wraps a failure that must stop the checker.
func Fatal(op string, err error) error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// Validation wraps a per-item failure (malformed model output, bad input)
// that is recorded and skipped.
func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors default to Transient, the safe retry-later policy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindFatal
}
