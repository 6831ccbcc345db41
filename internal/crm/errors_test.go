package crm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"testing"
)

func TestWrapHelpers(t *testing.T) {
	base := errors.New("boom")

	cases := []struct {
		name     string
		wrapped  error
		sentinel error
	}{
		{"transient", WrapTransient(base), ErrTransient},
		{"permanent", WrapPermanent(base), ErrPermanent},
		{"validation", WrapValidation(base), ErrValidation},
		{"configuration", WrapConfiguration(base), ErrConfiguration},
	}
	for _, tc := range cases {
		if !errors.Is(tc.wrapped, tc.sentinel) {
			t.Fatalf("%s: expected sentinel match for %v", tc.name, tc.wrapped)
		}
		if !strings.Contains(tc.wrapped.Error(), "boom") {
			t.Fatalf("%s: expected original message in %q", tc.name, tc.wrapped.Error())
		}
	}
}

func TestWrapNil(t *testing.T) {
	if !errors.Is(WrapTransient(nil), ErrTransient) {
		t.Fatalf("expected nil transient wrap to fall back to ErrTransient")
	}
	if !errors.Is(WrapPermanent(nil), ErrPermanent) {
		t.Fatalf("expected nil permanent wrap to fall back to ErrPermanent")
	}
	if !errors.Is(WrapValidation(nil), ErrValidation) {
		t.Fatalf("expected nil validation wrap to fall back to ErrValidation")
	}
	if !errors.Is(WrapConfiguration(nil), ErrConfiguration) {
		t.Fatalf("expected nil configuration wrap to fall back to ErrConfiguration")
	}
}

func TestRequestTimeoutIsTransient(t *testing.T) {
	if !errors.Is(ErrRequestTimeout, ErrTransient) {
		t.Fatalf("expected request timeout to be transient")
	}
}

func TestAPIErrorClassification(t *testing.T) {
	cases := map[int]error{
		http.StatusInternalServerError: ErrTransient,
		http.StatusServiceUnavailable:  ErrTransient,
		http.StatusTooManyRequests:     ErrTransient,
		http.StatusRequestTimeout:      ErrTransient,
		http.StatusBadRequest:          ErrPermanent,
		http.StatusUnauthorized:        ErrPermanent,
		http.StatusUnprocessableEntity: ErrPermanent,
	}
	for status, want := range cases {
		err := fmt.Errorf("create lead: %w", &APIError{StatusCode: status})
		if !errors.Is(err, want) {
			t.Fatalf("status %d: expected %v", status, want)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != status {
			t.Fatalf("status %d: expected APIError to be extractable", status)
		}
	}
}

func TestAPIErrorDetails(t *testing.T) {
	apiErr := &APIError{
		StatusCode: 422,
		Message:    "invalid lead",
		Errors: []FieldError{
			{Field: "phone", Message: "is invalid"},
			{Message: "name is required"},
			{Code: "duplicated"},
		},
	}
	got := apiErr.Details()
	want := []string{"phone: is invalid", "name is required", "duplicated"}
	if len(got) != len(want) {
		t.Fatalf("expected %d details, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("detail %d = %q, want %q", i, got[i], want[i])
		}
	}
	if !strings.Contains(apiErr.Error(), "invalid lead") {
		t.Fatalf("expected message in error string: %q", apiErr.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []error{
		ErrRequestTimeout,
		context.DeadlineExceeded,
		fmt.Errorf("dial: %w", syscall.ECONNRESET),
		io.ErrUnexpectedEOF,
		&APIError{StatusCode: 503},
	}
	for _, err := range retryable {
		if !IsRetryable(err) {
			t.Fatalf("expected %v to be retryable", err)
		}
	}

	notRetryable := []error{
		nil,
		context.Canceled,
		WrapValidation(errors.New("name")),
		WrapConfiguration(errors.New("disabled")),
		&APIError{StatusCode: 404},
		errors.New("json: cannot unmarshal"),
	}
	for _, err := range notRetryable {
		if IsRetryable(err) {
			t.Fatalf("expected %v not to be retryable", err)
		}
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("expected nil classification for nil error")
	}
	if Classify(WrapValidation(nil)) != ErrValidation {
		t.Fatalf("expected validation classification")
	}
	if Classify(&APIError{StatusCode: 502}) != ErrTransient {
		t.Fatalf("expected transient classification")
	}
	if Classify(&APIError{StatusCode: 400}) != ErrPermanent {
		t.Fatalf("expected permanent classification")
	}
}

func TestLeadResultRetryable(t *testing.T) {
	if (LeadResult{Success: true}).Retryable() {
		t.Fatalf("successful result must not be retryable")
	}
	if !(LeadResult{Err: &APIError{StatusCode: 503}}).Retryable() {
		t.Fatalf("expected 503 failure to be retryable")
	}
	if (LeadResult{Err: WrapValidation(nil)}).Retryable() {
		t.Fatalf("validation failures must not be retryable")
	}
}
