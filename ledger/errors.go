/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error categories in one place. The taxonomy:
  - ErrInvalidInput: malformed dates, empty batches, bad enum values.
    Rejected before any store access, never retried.
  - ErrNotFound: no bucket or entry matches a targeted lookup. A normal
    outcome for reads, returned with diagnostic context for annotation
    targeting (see EntryNotFoundError).
  - ErrConflict: optimistic-concurrency retries exhausted on one WeekKey.
    The whole request can be safely retried; every operation here is
    idempotent or convergent.
  - ErrStoreUnavailable: the backing store failed. Not retried here.

USAGE:
  Callers classify with errors.Is:

    if errors.Is(err, ledger.ErrNotFound) { ... 404 ... }

  and extract diagnostics with errors.As:

    var nf *ledger.EntryNotFoundError
    if errors.As(err, &nf) { log candidates: nf.Candidates }
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed requests before any store access.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when no bucket or entry matches a lookup.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when concurrent writers to the same WeekKey
	// exhausted the bounded retry budget.
	ErrConflict = errors.New("write conflict")

	// ErrStoreUnavailable wraps store-level failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry diagnostic context
// =============================================================================

// EntryNotFoundError reports a failed annotation targeting together with
// the candidate entries that were considered, for diagnosis.
type EntryNotFoundError struct {
	Key        WeekKey
	Shape      BucketShape
	Target     string   // the date or range the caller asked for
	Candidates []string // entry keys/ranges that were scanned
}

func (e *EntryNotFoundError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("%s entry %s not found for party %s", e.Shape, e.Target, e.Key.PartyID)
	}
	return fmt.Sprintf("%s entry %s not found for party %s (candidates: %s)",
		e.Shape, e.Target, e.Key.PartyID, strings.Join(e.Candidates, ", "))
}

func (e *EntryNotFoundError) Unwrap() error { return ErrNotFound }

// InvalidInputError carries a caller-facing reason for a rejected request.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Reason }

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

func invalidInputf(format string, args ...any) error {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the request might succeed if retried whole.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError reports whether a failure is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound)
}
