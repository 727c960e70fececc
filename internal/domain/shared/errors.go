package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Concrete error values below
// match these sentinels through errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrInvariantViolation     = errors.New("invariant violation")
)

// NotFoundError indicates that a ledger, profile, template or transaction id does not resolve.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Is implements the errors.Is interface for NotFoundError
func (e NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	t, ok := target.(NotFoundError)
	if !ok {
		return false
	}
	// Empty fields on the target act as wildcards
	return (t.Kind == "" || t.Kind == e.Kind) && (t.ID == "" || t.ID == e.ID)
}

// UnauthorizedError indicates a member-only mutation attempted by a non-member.
type UnauthorizedError struct {
	UID      string
	LedgerID string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("user %s is not a member of ledger %s", e.UID, e.LedgerID)
}

// Is implements the errors.Is interface for UnauthorizedError
func (e UnauthorizedError) Is(target error) bool {
	if target == ErrUnauthorized {
		return true
	}
	t, ok := target.(UnauthorizedError)
	if !ok {
		return false
	}
	return (t.UID == "" || t.UID == e.UID) && (t.LedgerID == "" || t.LedgerID == e.LedgerID)
}

// InvariantViolationError reports a programming error such as leaving a ledger
// the actor does not belong to. Callers must not swallow it.
type InvariantViolationError struct {
	Op     string
	Reason string
	Err    error
}

func (e InvariantViolationError) Error() string {
	msg := fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is implements the errors.Is interface for InvariantViolationError
func (e InvariantViolationError) Is(target error) bool {
	if target == ErrInvariantViolation {
		return true
	}
	t, ok := target.(InvariantViolationError)
	if !ok {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

func (e InvariantViolationError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a backing-store failure (network loss, driver error, timeout).
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence unavailable during %s: %v", e.Op, e.Err)
}

// Is implements the errors.Is interface for PersistenceError
func (e PersistenceError) Is(target error) bool {
	return target == ErrPersistenceUnavailable
}

func (e PersistenceError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a PersistenceError unless it already carries a
// domain classification.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistenceUnavailable) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvariantViolation) {
		return err
	}
	return PersistenceError{Op: op, Err: err}
}
