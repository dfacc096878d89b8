package shared

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterLostRaces(t *testing.T) {
	r := NewRetry(5, 0, 0)
	calls := 0
	err := r.Do(context.Background(), func(attempt int) (bool, error) {
		calls++
		return attempt == 3, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	r := NewRetry(4, 0, 0)
	calls := 0
	err := r.Do(context.Background(), func(int) (bool, error) {
		calls++
		return false, nil
	})
	require.ErrorIs(t, err, ErrRetryExhausted)
	require.Equal(t, 4, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	r := NewRetry(3, 0, 0)
	boom := errors.New("boom")
	err := r.Do(context.Background(), func(int) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestRetryDoneStopsImmediately(t *testing.T) {
	r := NewRetry(5, 0, 0)
	boom := errors.New("boom")
	calls := 0
	err := r.Do(context.Background(), func(int) (bool, error) {
		calls++
		return true, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestRetryHonoursContextCancellation(t *testing.T) {
	r := NewRetry(5, 50*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := r.Do(ctx, func(int) (bool, error) {
		calls++
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestRetryClampsAttempts(t *testing.T) {
	r := NewRetry(0, 0, 0)
	require.Equal(t, 1, r.Attempts)
}

func TestRetryConcurrentJitteredWaits(t *testing.T) {
	// One policy value is shared by all callers; concurrent jittered waits
	// must not trip the race detector.
	r := NewRetry(5, time.Millisecond, 2*time.Millisecond)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Do(context.Background(), func(attempt int) (bool, error) {
				return attempt == 3, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
