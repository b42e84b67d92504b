package analyzer

import (
	"context"
	"errors"
	"log"
	"time"

	"reclaim/internal/domain"
	"reclaim/internal/port"
)

// Retrying wraps an Analyzer with bounded retries and exponential backoff.
// Transient errors are retried up to MaxRetries times; permanent errors and
// context cancellation stop immediately. A provider-supplied Retry-After
// hint overrides the computed backoff for that attempt.
type Retrying struct {
	inner      port.Analyzer
	maxRetries int
	backoff    time.Duration
}

// NewRetrying wraps inner with the given retry policy. A zero backoff
// defaults to 500ms.
func NewRetrying(inner port.Analyzer, maxRetries int, backoff time.Duration) *Retrying {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Retrying{inner: inner, maxRetries: maxRetries, backoff: backoff}
}

func (r *Retrying) Source() string { return r.inner.Source() }

func (r *Retrying) Analyze(ctx context.Context, input port.AnalyzeInput) ([]domain.CandidateIssue, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		issues, err := r.inner.Analyze(ctx, input)
		if err == nil {
			return issues, nil
		}
		lastErr = err

		var te *TransientError
		if !errors.As(err, &te) {
			return nil, err
		}
		if attempt >= r.maxRetries {
			return nil, lastErr
		}

		wait := r.backoff << attempt
		if te.RetryAfter > 0 {
			wait = te.RetryAfter
		}
		log.Printf("analyzer.Retrying: %s attempt %d failed (%v), retrying in %s",
			r.inner.Source(), attempt+1, err, wait)

		select {
		case <-ctx.Done():
			return nil, NewTransientError(r.inner.Source(), ctx.Err(), 0)
		case <-time.After(wait):
		}
	}
}
