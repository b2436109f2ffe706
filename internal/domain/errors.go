package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested trip, vehicle or staff member
// does not exist. Handlers map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails a business rule (malformed
// input, out-of-range price, override reason too short).
// Handlers map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrAuthorization is returned when the actor is in the wrong company, has
// the wrong role, or is not the individual allowed to perform the action.
var ErrAuthorization = errors.New("not authorized")

// ErrInvalidTransition is wrapped by InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrResourceConflict is wrapped by ConflictError. It is overridable.
var ErrResourceConflict = errors.New("resource conflict")

// ErrSafetyGateBlocked is wrapped by SafetyGateError. It is overridable.
var ErrSafetyGateBlocked = errors.New("safety gate blocked")

// ErrVersionConflict is returned when a compare-and-swap write finds that
// another writer changed the trip first.
var ErrVersionConflict = errors.New("modified by another user")

// ErrViewOnlyStatus is returned when a departed, completed or cancelled trip
// would be edited.
var ErrViewOnlyStatus = errors.New("trip is view-only")

// ErrHasPaidBookings is returned when a price change or delete targets a trip
// that already carries revenue.
var ErrHasPaidBookings = errors.New("trip has paid bookings")

// ErrTimeout is returned when a bounded transaction runs out of time and is
// rolled back.
var ErrTimeout = errors.New("operation timed out")

// ErrorCode is the machine-readable error kind reported to callers.
type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION"
	CodeAuthorization     ErrorCode = "AUTHORIZATION"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeResourceConflict  ErrorCode = "RESOURCE_CONFLICT"
	CodeSafetyGateBlocked ErrorCode = "SAFETY_GATE_BLOCKED"
	CodeVersionConflict   ErrorCode = "VERSION_CONFLICT"
	CodeViewOnlyStatus    ErrorCode = "VIEW_ONLY_STATUS"
	CodeHasPaidBookings   ErrorCode = "HAS_PAID_BOOKINGS"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeInternal          ErrorCode = "INTERNAL"
)

var codeBySentinel = []struct {
	err  error
	code ErrorCode
}{
	{ErrValidation, CodeValidation},
	{ErrAuthorization, CodeAuthorization},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrResourceConflict, CodeResourceConflict},
	{ErrSafetyGateBlocked, CodeSafetyGateBlocked},
	{ErrVersionConflict, CodeVersionConflict},
	{ErrViewOnlyStatus, CodeViewOnlyStatus},
	{ErrHasPaidBookings, CodeHasPaidBookings},
	{ErrTimeout, CodeTimeout},
}

// Code classifies err by the sentinel it wraps. Unknown errors are INTERNAL.
func Code(err error) ErrorCode {
	for _, c := range codeBySentinel {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// PublicMessage returns err's message with internal call-site prefixes
// stripped, starting at the sentinel it wraps. Unknown errors get a generic
// message.
func PublicMessage(err error) string {
	for _, c := range codeBySentinel {
		if !errors.Is(err, c.err) {
			continue
		}
		msg := err.Error()
		if i := strings.Index(msg, c.err.Error()); i >= 0 {
			return msg[i:]
		}
		return c.err.Error()
	}
	return "internal error"
}

// Overridable reports whether err is an advisory block the caller may bypass
// by resubmitting with an explicit override.
func Overridable(err error) bool {
	var o interface{ Overridable() bool }
	return errors.As(err, &o) && o.Overridable()
}

// InvalidTransitionError reports an illegal status change together with the
// legal targets so callers can render valid choices.
type InvalidTransitionError struct {
	From    TripStatus
	To      TripStatus
	Allowed []TripStatus
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("%s: %s → %s (%s is terminal)", ErrInvalidTransition, e.From, e.To, e.From)
	}
	return fmt.Sprintf("%s: %s → %s (allowed: %s)", ErrInvalidTransition, e.From, e.To, strings.Join(allowed, ", "))
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NewInvalidTransition builds the error for from → to using the transition table.
func NewInvalidTransition(from, to TripStatus) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to, Allowed: NextStatuses(from)}
}

// ConflictError carries the scheduling conflicts that blocked a write and
// which override each needs.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	kinds := make([]string, 0, len(e.Conflicts))
	seen := map[ResourceKind]bool{}
	for _, c := range e.Conflicts {
		if !seen[c.ResourceKind] {
			seen[c.ResourceKind] = true
			kinds = append(kinds, string(c.ResourceKind))
		}
	}
	return fmt.Sprintf("%s: %d overlapping trip(s) for %s", ErrResourceConflict, len(e.Conflicts), strings.Join(kinds, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrResourceConflict }

// Overridable is always true: scheduling conflicts are advisory.
func (e *ConflictError) Overridable() bool { return true }

// SafetyGateError reports a departure blocked by the pre-trip inspection rule.
type SafetyGateError struct {
	VehicleID uuid.UUID
	RiskScore int
	Reason    string
}

func (e *SafetyGateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSafetyGateBlocked, e.Reason)
}

func (e *SafetyGateError) Unwrap() error { return ErrSafetyGateBlocked }

// Overridable is always true: a reasoned skip flag bypasses the gate.
func (e *SafetyGateError) Overridable() bool { return true }

// MinOverrideReasonLen is the minimum length of the free-text reason attached
// to a vehicle-conflict or safety-gate override.
const MinOverrideReasonLen = 10

// ValidateOverrideReason checks a free-text override reason.
func ValidateOverrideReason(reason string) error {
	if len([]rune(strings.TrimSpace(reason))) < MinOverrideReasonLen {
		return fmt.Errorf("%w: override reason must be at least %d characters", ErrValidation, MinOverrideReasonLen)
	}
	return nil
}

// ItemError is a per-trip failure inside a bulk call.
type ItemError struct {
	TripID  uuid.UUID `json:"trip_id"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewItemError classifies err for a bulk result.
func NewItemError(tripID uuid.UUID, err error) ItemError {
	return ItemError{TripID: tripID, Code: Code(err), Message: PublicMessage(err)}
}
