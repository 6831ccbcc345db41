package util

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL indicates that a URL failed validation.
var ErrInvalidURL = errors.New("invalid url")

// ValidateHTTPURL checks that value is an absolute http(s) URL without
// embedded credentials and returns it trimmed, without a trailing slash.
func ValidateHTTPURL(value string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(value), "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	case u.Host == "":
		return "", fmt.Errorf("%w: host is required", ErrInvalidURL)
	case u.User != nil:
		return "", fmt.Errorf("%w: credentials must not be embedded", ErrInvalidURL)
	}
	return trimmed, nil
}
