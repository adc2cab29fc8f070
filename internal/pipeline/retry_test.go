package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
}

func TestRetryFirstAttemptSucceeds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Second, sleep: noSleep(nil)}
	calls := 0
	err := p.execute(context.Background(), StageAsset, zap.NewNop(), func(_ context.Context, feedback string) error {
		calls++
		assert.Empty(t, feedback)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryFeedsValidationErrorBack(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Second, sleep: noSleep(nil)}
	var feedbacks []string
	calls := 0
	err := p.execute(context.Background(), StageCriteria, zap.NewNop(), func(_ context.Context, feedback string) error {
		calls++
		feedbacks = append(feedbacks, feedback)
		if calls < 3 {
			return &ValidationError{Field: "checks", Reason: "9 checks returned, need at least 10"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Empty(t, feedbacks[0])
	assert.Contains(t, feedbacks[1], "need at least 10")
	assert.Contains(t, feedbacks[2], "need at least 10")
}

func TestRetryExhaustion(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Second, sleep: noSleep(nil)}
	last := &ValidationError{Field: "confidence", Reason: "out of range"}
	err := p.execute(context.Background(), StageAsset, zap.NewNop(), func(_ context.Context, _ string) error {
		return last
	})

	var ex *StageExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, StageAsset, ex.Stage)
	assert.Equal(t, 3, ex.Attempts)
	assert.ErrorIs(t, err, error(last))
}

func TestRetryInvariantViolationIsFatal(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BackoffBase: time.Second, sleep: noSleep(nil)}
	calls := 0
	fatal := &InvariantViolationError{Kind: InvariantCheckIDSetMismatch, Detail: "missing=[N-01] extra=[]"}
	err := p.execute(context.Background(), StageAssessment, zap.NewNop(), func(_ context.Context, _ string) error {
		calls++
		return fatal
	})

	assert.Equal(t, 1, calls)
	var ex *StageExhaustedError
	assert.False(t, errors.As(err, &ex), "fatal errors must not be wrapped in exhaustion")
	var iv *InvariantViolationError
	assert.ErrorAs(t, err, &iv)
}

func TestRetryBackoffDoubles(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{MaxAttempts: 4, BackoffBase: time.Second, BackoffMax: 30 * time.Second, sleep: noSleep(&delays)}
	_ = p.execute(context.Background(), StageAsset, zap.NewNop(), func(_ context.Context, _ string) error {
		return &ValidationError{Reason: "nope"}
	})
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestRetryBackoffCapped(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{MaxAttempts: 4, BackoffBase: 10 * time.Second, BackoffMax: 15 * time.Second, sleep: noSleep(&delays)}
	_ = p.execute(context.Background(), StageAsset, zap.NewNop(), func(_ context.Context, _ string) error {
		return &ValidationError{Reason: "nope"}
	})
	assert.Equal(t, []time.Duration{10 * time.Second, 15 * time.Second, 15 * time.Second}, delays)
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{
		MaxAttempts: 5,
		BackoffBase: time.Second,
		sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	calls := 0
	err := p.execute(ctx, StageCriteria, zap.NewNop(), func(_ context.Context, _ string) error {
		calls++
		return &ValidationError{Reason: "nope"}
	})

	assert.Equal(t, 1, calls)
	var ex *StageExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 1, ex.Attempts)
}

func TestRetryNoBackoffAfterLastAttempt(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{MaxAttempts: 2, BackoffBase: time.Second, sleep: noSleep(&delays)}
	_ = p.execute(context.Background(), StageAsset, zap.NewNop(), func(_ context.Context, _ string) error {
		return &ValidationError{Reason: "nope"}
	})
	assert.Len(t, delays, 1)
}

func TestPromptFeedback(t *testing.T) {
	assert.Contains(t, promptFeedback(&ValidationError{Field: "status", Reason: "bad"}), "status")
	assert.Contains(t, promptFeedback(&VendorMismatchError{Declared: "Juniper", Found: "cisco"}), "cisco")
	assert.Empty(t, promptFeedback(errors.New("backend: service unavailable")), "transport errors carry no model-actionable feedback")
	assert.Empty(t, promptFeedback(nil))
}
