package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy(retries int) Policy {
	return Policy{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestDo_RetriesUpToLimit(t *testing.T) {
	calls := 0
	var retried []int
	errBoom := errors.New("boom")

	err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) error {
		calls++
		return errBoom
	}, func(attempt int, err error, _ time.Duration) {
		retried = append(retried, attempt)
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_FatalStopsImmediately(t *testing.T) {
	calls := 0
	errGone := errors.New("gone")

	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return NewFatalError(errGone)
	}, nil)

	assert.Equal(t, 1, calls)
	assert.Same(t, errGone, err)
	assert.False(t, IsFatal(err))
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return NewRetryableError(errors.New("flaky"))
		}
		return nil
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ZeroRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(0), func(ctx context.Context) error {
		calls++
		return errors.New("once")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, Policy{MaxRetries: 10, InitialInterval: 50 * time.Millisecond, Multiplier: 1}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
