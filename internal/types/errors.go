package types

import (
	"errors"
	"fmt"
	"strings"
)

// Ledger contract errors. These indicate a bug in the caller or a race, not
// an expected business outcome, and are logged at error severity.
var (
	ErrNotFound          = errors.New("order not found")
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrFillRegression    = errors.New("filled quantity may not decrease")
)

// ErrNoVenue is returned by venue selection when no registered venue
// currently qualifies for an order. It is a routing outcome, not a fault.
var ErrNoVenue = errors.New("no venue available for order")

// FailureKind classifies a placement or cancel failure for the caller.
type FailureKind string

const (
	FailureInvalidOrder          FailureKind = "INVALID_ORDER"
	FailureExposureUnavailable   FailureKind = "EXPOSURE_UNAVAILABLE"
	FailureRiskLimitExceeded     FailureKind = "RISK_LIMIT_EXCEEDED"
	FailureNoVenueAvailable      FailureKind = "NO_VENUE_AVAILABLE"
	FailureVenueSubmissionFailed FailureKind = "VENUE_SUBMISSION_FAILED"
	FailureVenueRejected         FailureKind = "VENUE_REJECTED"
	FailureNotCancellable        FailureKind = "NOT_CANCELLABLE"
)

// PlacementError is the typed failure returned by the execution router.
// Kind drives the caller's handling; Fields carries per-field validation
// reasons and Violations the structured risk breaches, when applicable.
type PlacementError struct {
	Kind       FailureKind
	Message    string
	Fields     []string
	Violations []Violation
	Err        error
}

func (e *PlacementError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if len(e.Fields) > 0 {
		msg += " (" + strings.Join(e.Fields, "; ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlacementError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the same request later.
// Validation, risk failures and venue business rejections are final for the
// attempted request.
func (e *PlacementError) Retryable() bool {
	switch e.Kind {
	case FailureExposureUnavailable, FailureNoVenueAvailable, FailureVenueSubmissionFailed:
		return true
	}
	return false
}

// TransientError marks a network-level failure on an outbound venue call.
// Only transient failures are subject to the router's bounded retry; a
// venue-reported rejection is never wrapped as transient.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient transport failure: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a transient transport failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
