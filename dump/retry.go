package dump

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2000 * time.Millisecond
)

// RetryPolicy configures Retry. The zero value makes 3 attempts with no
// delay between them; DefaultRetryPolicy adds the 2s delay.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// IsRetryable decides whether a failed attempt is tried again. Nil
	// retries every error, including auth failures.
	// TODO: classify 401/403 from pkg/httpapi as non-retryable once both
	// vendors have been checked for transient 401s during token rotation.
	IsRetryable func(err error) bool

	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error)

	// Sleep waits between attempts; nil means ContextSleep.
	Sleep SleepFunc
}

// DefaultRetryPolicy returns the policy used for vendor calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultRetryDelay}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.IsRetryable == nil {
		p.IsRetryable = func(error) bool { return true }
	}
	if p.Sleep == nil {
		p.Sleep = ContextSleep
	}
	return p
}

// Retry runs op up to policy.MaxAttempts times with a fixed delay between
// attempts. The last error is returned unchanged, together with the number of
// attempts made. There is no delay after the final attempt.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, int, error) {
	policy = policy.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, attempt, nil
		}
		if attempt >= policy.MaxAttempts || !policy.IsRetryable(err) {
			return zero, attempt, err
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}
		if sleepErr := policy.Sleep(ctx, policy.Delay); sleepErr != nil {
			return zero, attempt, sleepErr
		}
	}
}
