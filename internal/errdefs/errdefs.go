// Package errdefs defines the error taxonomy shared by the phasegate engines.
//
// Every error a caller can act on falls into one of four categories:
// validation errors (bad input, recoverable with a corrected call), not-found
// errors (missing plan or state, recoverable by initializing first), gate
// failures (one or more deliverable checks failed, recoverable via the forced
// variants), and store errors (I/O surfaced as-is, never retried internally).
package errdefs

import (
	"fmt"
	"strings"
)

// ValidationError indicates malformed or out-of-order input: a branch name
// that does not parse, an unknown phase or cycle, a non-forward transition,
// or missing audit fields on a forced call.
type ValidationError struct {
	// Msg describes what was invalid.
	Msg string
	// Hint tells the caller how to fix the call.
	Hint string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (%s)", e.Msg, e.Hint)
	}
	return e.Msg
}

// NewValidationError creates a validation error with a remediation hint.
func NewValidationError(msg, hint string) *ValidationError {
	return &ValidationError{Msg: msg, Hint: hint}
}

// Validationf creates a validation error without a hint.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates a missing plan or branch state document.
type NotFoundError struct {
	// Resource names what was looked up ("project plan", "branch state").
	Resource string
	// Key is the lookup key (issue id or branch name).
	Key string
	// Hint tells the caller how to create the missing resource.
	Hint string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s not found for %q (%s)", e.Resource, e.Key, e.Hint)
	}
	return fmt.Sprintf("%s not found for %q", e.Resource, e.Key)
}

// NewNotFoundError creates a not-found error with a remediation hint.
func NewNotFoundError(resource, key, hint string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key, Hint: hint}
}

// GateItem is one failed deliverable check inside a GateFailure.
type GateItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// GateFailure indicates one or more deliverable checks failed and blocked a
// transition. It always carries the full per-item list, never a single opaque
// message, and names the forced override path in its message.
type GateFailure struct {
	// Gate identifies which gate failed, e.g. "exit:planning" or "cycle:2".
	Gate string
	// Items are the failing checks, in declaration order.
	Items []GateItem
	// Override names the forced call that bypasses this gate.
	Override string
}

// Error implements the error interface.
func (e *GateFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gate %s blocked by %d failing deliverable(s):", e.Gate, len(e.Items))
	for _, item := range e.Items {
		fmt.Fprintf(&b, "\n  - %s: %s", item.ID, item.Reason)
	}
	if e.Override != "" {
		fmt.Fprintf(&b, "\noverride: %s", e.Override)
	}
	return b.String()
}

// IDs returns the failing deliverable ids in order.
func (e *GateFailure) IDs() []string {
	ids := make([]string, len(e.Items))
	for i, item := range e.Items {
		ids[i] = item.ID
	}
	return ids
}

// StoreError wraps an I/O failure from one of the on-disk stores.
type StoreError struct {
	// Op is the failed operation ("load", "save", "lock").
	Op string
	// Path is the store file involved.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the operation and path that failed.
func NewStoreError(op, path string, err error) *StoreError {
	return &StoreError{Op: op, Path: path, Err: err}
}
