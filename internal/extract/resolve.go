package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	xlog "github.com/vicentereig/notegrab/internal/log"
	"github.com/vicentereig/notegrab/internal/types"
)

// RetryPolicy bounds the fetch-and-parse loop of Resolve.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy is five attempts three seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Delay: 3 * time.Second}
}

// FetchFunc returns fresh markup for one attempt.
type FetchFunc func(ctx context.Context) (string, error)

// Resolve fetches and extracts a page, re-fetching and re-parsing on every
// attempt. Extraction failures and temporary fetch failures are retried
// after policy.Delay; any other fetch failure is returned as is. When the
// budget runs out the result is an *ExtractionError of kind
// RetriesExhausted wrapping the last failure.
func (e *Extractor) Resolve(ctx context.Context, policy RetryPolicy, url string, fetch FetchFunc) (types.MediaItem, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	logger := e.logger.With().Str(xlog.FieldURL, url).Logger()

	retryIf := func(err error) bool {
		return ctx.Err() == nil && isRetryable(err)
	}

	attempts := 0
	item, err := retry.DoWithData(
		func() (types.MediaItem, error) {
			attempts++
			markup, err := fetch(ctx)
			if err != nil {
				return types.MediaItem{}, err
			}
			return e.Extract(markup)
		},
		retry.Context(ctx),
		retry.Attempts(uint(policy.MaxAttempts)),
		retry.Delay(policy.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryIf),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).
				Int(xlog.FieldAttempt, int(n)+1).
				Int(xlog.FieldMaxAttempts, policy.MaxAttempts).
				Msg("page attempt failed")
		}),
	)
	if err == nil {
		return item, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.MediaItem{}, fmt.Errorf("resolve %s: %w", url, ctxErr)
	}
	if !isRetryable(err) {
		return types.MediaItem{}, err
	}
	return types.MediaItem{}, &ExtractionError{Kind: RetriesExhausted, Attempts: attempts, Err: err}
}

// isRetryable defers to Temporary() when the error provides it and retries
// everything else.
func isRetryable(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}
