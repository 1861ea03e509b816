// Package errclass defines the stable, machine-readable error classes
// surfaced by clawguard.
package errclass

import "fmt"

// GuardError is a stable, machine-readable error class.
type GuardError struct {
	Code    string
	Message string
}

func (e *GuardError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GuardError) Is(target error) bool {
	t, ok := target.(*GuardError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new GuardError with the same Code but a specific message.
func (e *GuardError) WithMessage(msg string) *GuardError {
	return &GuardError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new GuardError with a formatted message.
func (e *GuardError) WithMessagef(format string, args ...any) *GuardError {
	return &GuardError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Stable error classes.
var (
	// ErrNotFound: a referenced skill, backup, snapshot or manifest entry does not exist.
	ErrNotFound = &GuardError{Code: "E_NOT_FOUND"}
	// ErrNotInitialized: the ledger or manifest has not been created yet.
	ErrNotInitialized = &GuardError{Code: "E_NOT_INITIALIZED"}
	// ErrIntegrityViolation: a composite or snapshot hash does not match its trusted value.
	ErrIntegrityViolation = &GuardError{Code: "E_INTEGRITY_VIOLATION"}
	// ErrChainBroken: a ledger chain (live or backup) failed verification.
	ErrChainBroken = &GuardError{Code: "E_CHAIN_BROKEN"}
	// ErrCorruptData: a ledger, manifest, state or evidence file cannot be parsed.
	ErrCorruptData = &GuardError{Code: "E_CORRUPT_DATA"}
	// ErrConflict: the operation would overwrite existing state.
	ErrConflict = &GuardError{Code: "E_CONFLICT"}

	ErrNameInvalid  = &GuardError{Code: "E_NAME_INVALID"}
	ErrPathEscape   = &GuardError{Code: "E_PATH_ESCAPE"}
	ErrLockConflict = &GuardError{Code: "E_LOCK_CONFLICT"}
	// ErrUsage: a flag or argument value is malformed.
	ErrUsage = &GuardError{Code: "E_USAGE"}
)
