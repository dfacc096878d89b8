package shared

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrRetryExhausted is returned when every attempt failed.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// Retry is a bounded retry policy with jittered backoff, shared by components
// that race on conditional updates. One Retry value serves concurrent callers;
// jitter comes from the goroutine-safe top-level math/rand source. The zero
// value is unusable; use NewRetry.
type Retry struct {
	Attempts  int
	BaseDelay time.Duration
	MaxJitter time.Duration

	sleep func(context.Context, time.Duration) error
}

// NewRetry builds a policy. Attempts below 1 are clamped to 1.
func NewRetry(attempts int, baseDelay, maxJitter time.Duration) Retry {
	if attempts < 1 {
		attempts = 1
	}
	return Retry{
		Attempts:  attempts,
		BaseDelay: baseDelay,
		MaxJitter: maxJitter,
		sleep:     sleepCtx,
	}
}

// Do runs fn up to Attempts times. fn returns (done, err): done stops the
// loop regardless of err; a non-done nil err means "lost the race, try again".
// Between attempts the policy sleeps BaseDelay plus random jitter to spread
// out contending callers.
func (r Retry) Do(ctx context.Context, fn func(attempt int) (bool, error)) error {
	var lastErr error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		done, err := fn(attempt)
		if done {
			return err
		}
		lastErr = err
		if attempt == r.Attempts {
			break
		}
		if err := r.wait(ctx); err != nil {
			return err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrRetryExhausted
}

func (r Retry) wait(ctx context.Context) error {
	delay := r.BaseDelay
	if r.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(r.MaxJitter)))
	}
	if delay <= 0 {
		return ctx.Err()
	}
	return r.sleep(ctx, delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
