package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds a single stage execution: up to MaxAttempts calls
// with exponential backoff between them. Validator errors from one attempt
// are handed to the next so the stage can fold them into its prompt.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// sleep is swapped in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the backend defaults: three attempts, one
// second base, capped at thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
	}
}

// backoff returns the delay before attempt n+1 (attempts counted from 1):
// BackoffBase * 2^(n-1), capped at BackoffMax.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BackoffBase << uint(attempt-1)
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// execute runs fn up to MaxAttempts times. fn receives the feedback string
// derived from the previous attempt's error (empty on the first attempt).
// A cancelled or timed-out call counts as a failed attempt, never a silent
// no-op. When the budget runs out the last error is wrapped in
// *StageExhaustedError; non-retryable errors surface immediately.
func (p RetryPolicy) execute(ctx context.Context, stage Stage, log *zap.Logger, fn func(ctx context.Context, feedback string) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attempts = attempt
		err := fn(ctx, promptFeedback(lastErr))
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		log.Warn("stage attempt failed",
			zap.Stringer("stage", stage),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Error(err))

		if attempt == p.MaxAttempts {
			break
		}
		if serr := sleep(ctx, p.backoff(attempt)); serr != nil {
			// Caller gave up while we were backing off.
			break
		}
	}
	return &StageExhaustedError{Stage: stage, Attempts: attempts, Last: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
