package crm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Sentinel errors used to classify failures across the engine. Callers use
// errors.Is to decide whether a failure is worth retrying.
var (
	// ErrValidation marks a bad or missing required field. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks network resets, timeouts, 5xx, 408 and 429.
	ErrTransient = errors.New("transient network error")
	// ErrPermanent marks 4xx responses other than 408 and 429.
	ErrPermanent = errors.New("permanent api error")
	// ErrConfiguration marks a disabled integration or missing credentials.
	ErrConfiguration = errors.New("configuration error")
	// ErrRequestTimeout is returned when a request exceeds its deadline.
	ErrRequestTimeout = fmt.Errorf("%w: request timeout", ErrTransient)
	// ErrQueueExhausted is informational: it is logged and published when a
	// queued lead runs out of attempts, never returned to callers.
	ErrQueueExhausted = errors.New("retry attempts exhausted")
)

// WrapTransient annotates an error so callers can detect transient failures.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// WrapPermanent annotates an error as permanent.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}

// WrapValidation annotates an error as a validation failure.
func WrapValidation(err error) error {
	if err == nil {
		return ErrValidation
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// WrapConfiguration annotates an error as a configuration failure.
func WrapConfiguration(err error) error {
	if err == nil {
		return ErrConfiguration
	}
	return fmt.Errorf("%w: %v", ErrConfiguration, err)
}

// FieldError is a validation error reported by the CRM.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// APIError wraps a non-2xx CRM response.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []FieldError
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("c2s api error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("c2s api error: status=%d message=%s", e.StatusCode, e.Message)
}

// Unwrap classifies the response status as transient or permanent.
func (e *APIError) Unwrap() error {
	if RetryableStatus(e.StatusCode) {
		return ErrTransient
	}
	return ErrPermanent
}

// Details flattens the CRM validation errors into human readable strings.
func (e *APIError) Details() []string {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		switch {
		case fe.Field != "" && fe.Message != "":
			out = append(out, fe.Field+": "+fe.Message)
		case fe.Message != "":
			out = append(out, fe.Message)
		case fe.Code != "":
			out = append(out, fe.Code)
		}
	}
	return out
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a transient condition: an explicitly
// transient error, a retryable API status, a deadline, or a network reset.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "connection reset") || strings.Contains(lower, "eof")
}

// Classify returns the sentinel describing err, or nil when err is nil.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrConfiguration):
		return ErrConfiguration
	case IsRetryable(err):
		return ErrTransient
	default:
		return ErrPermanent
	}
}
