/*
errors.go - Centralized error types for the capacity engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch with errors.Is / errors.As; the HTTP layer maps them
  to status codes via IsClientError / IsNotFound / IsConflict.

ERROR CATEGORIES:
  1. Caller input errors - invalid window, unknown portfolio or role
  2. Defect flags - negative inputs, clamped rather than rejected
  3. Lifecycle errors - locked commitments, stale config versions

RETRIES:
  The engine never retries. Input errors are final; only
  ErrConcurrentModification is worth retrying by the caller.

SEE ALSO:
  - admission.go: Returns window, portfolio and role errors
  - store/sqlite/sqlite.go: Returns lifecycle errors
*/
package capacity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidWindow is returned when a planned end precedes its start.
	ErrInvalidWindow = errors.New("invalid window: end before start")

	// ErrInvalidPortfolio is returned for an unrecognized portfolio value.
	ErrInvalidPortfolio = errors.New("invalid portfolio")

	// ErrInvalidRole is returned for a role absent from the active role set.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidValue covers other malformed enum or date input.
	ErrInvalidValue = errors.New("invalid value")

	// ErrNegativeInput flags a negative FTE, team size, efficiency or quota.
	// The engine clamps such values to zero and reports them; it does not fail.
	ErrNegativeInput = errors.New("negative input")

	// ErrCapacityExceeded is returned when persisting a commitment that the
	// admission check rejected.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrCommitmentLocked is returned when editing FTE or dates of a locked commitment.
	ErrCommitmentLocked = errors.New("commitment is locked")

	// ErrCommitmentNotFound is returned when a referenced commitment doesn't exist.
	ErrCommitmentNotFound = errors.New("commitment not found")

	// ErrRoleNotFound is returned when a referenced catalog role doesn't exist.
	ErrRoleNotFound = errors.New("role not found")

	// ErrDuplicateRole is returned when a role abbreviation is already taken.
	ErrDuplicateRole = errors.New("duplicate role")

	// ErrConcurrentModification is returned when a compare-and-swap on the
	// governance config or a commitment version loses the race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrConfigMissing is returned when no governance config has been published.
	ErrConfigMissing = errors.New("governance config missing")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// WindowError reports the offending dates of an inverted window.
type WindowError struct {
	Start time.Time
	End   time.Time
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("invalid window: end %s before start %s",
		e.End.Format(DateLayout), e.Start.Format(DateLayout))
}

func (e *WindowError) Unwrap() error { return ErrInvalidWindow }

// InvalidValueError reports an unrecognized enum value.
type InvalidValueError struct {
	Kind  string // "portfolio", "role", "date", ...
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: %q", e.Err, e.Value)
}

func (e *InvalidValueError) Unwrap() error { return e.Err }

// NegativeInputError names the field that was clamped to zero.
type NegativeInputError struct {
	Field string // e.g. "role_fte.FE", "team_size.BE", "quota.client"
	Value float64
}

func (e *NegativeInputError) Error() string {
	return fmt.Sprintf("negative input: %s=%g clamped to 0", e.Field, e.Value)
}

func (e *NegativeInputError) Unwrap() error { return ErrNegativeInput }

// AdmissionError carries the rejected decision so callers can render it.
type AdmissionError struct {
	Result *ValidationResult
}

func (e *AdmissionError) Error() string {
	if e.Result == nil {
		return ErrCapacityExceeded.Error()
	}
	return fmt.Sprintf("capacity exceeded for %s: %s", joinRoles(e.Result.BreachRoles), e.Result.Reason)
}

func (e *AdmissionError) Unwrap() error { return ErrCapacityExceeded }

func joinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidPortfolio) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrInvalidValue)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCommitmentNotFound) ||
		errors.Is(err, ErrRoleNotFound) ||
		errors.Is(err, ErrConfigMissing)
}

// IsConflict returns true if the request collided with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrCommitmentLocked) ||
		errors.Is(err, ErrDuplicateRole)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
