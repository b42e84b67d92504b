package analyzer

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// TransientError indicates a retryable provider failure (network errors,
// timeouts, rate limits). RetryAfter is zero unless the provider supplied a
// Retry-After hint.
type TransientError struct {
	Provider   string
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s transient failure (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s transient failure: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a TransientError with an optional retry-after hint.
func NewTransientError(provider string, err error, retryAfterSecs int) *TransientError {
	return &TransientError{
		Provider:   provider,
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
	}
}

// PermanentError indicates a non-retryable provider failure (malformed
// request, unsupported model). Retrying cannot help.
type PermanentError struct {
	Provider string
	Err      error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s permanent failure: %v", e.Provider, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError creates a PermanentError.
func NewPermanentError(provider string, err error) *PermanentError {
	return &PermanentError{Provider: provider, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}
