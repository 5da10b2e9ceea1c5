package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason classifies a client-side validation failure.
type Reason string

const (
	ReasonInvalidQuantity      Reason = "invalid_quantity"
	ReasonInvalidPrice         Reason = "invalid_price"
	ReasonPriceUnavailable     Reason = "price_unavailable"
	ReasonInsufficientCash     Reason = "insufficient_cash"
	ReasonInsufficientHoldings Reason = "insufficient_holdings"
	ReasonMissingSymbol        Reason = "missing_symbol"
	ReasonMissingPortfolio     Reason = "missing_portfolio"
	ReasonInvalidAmount        Reason = "invalid_amount"
	ReasonInvalidOrder         Reason = "invalid_order"
	ReasonDuplicateSubmission  Reason = "duplicate_submission"
	ReasonInvalidFilter        Reason = "invalid_filter"
)

var (
	// ErrUnauthorized means the session is missing, expired, or was rejected
	// by the execution service. The session has already been cleared.
	ErrUnauthorized = errors.New("unauthorized: session cleared")

	// ErrPriceUnavailable means no usable live quote could be obtained.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrTransport wraps failures to reach the execution service at all.
	ErrTransport = errors.New("execution service unreachable")
)

// ValidationError is raised before any network call and is never retried.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func Invalid(reason Reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ServiceError is a response from the execution service that was not a
// success: a non-2xx status or an envelope with success=false.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("execution service: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("execution service: %s (status %d)", e.Message, e.Status)
}

// Temporary reports whether retrying the same request may succeed.
func (e *ServiceError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func AsService(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsTransient reports whether err is worth retrying: transport failures and
// temporary service errors. Validation and session errors never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return false
	}
	if _, ok := AsValidation(err); ok {
		return false
	}
	if se, ok := AsService(err); ok {
		return se.Temporary()
	}
	return errors.Is(err, ErrTransport)
}
