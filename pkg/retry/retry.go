package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string     { return e.err.Error() }
func (e *retryableError) IsRetryable() bool { return true }
func (e *retryableError) Unwrap() error     { return e.err }

func NewRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

type FatalError interface {
	error
	IsFatal() bool
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) IsFatal() bool { return true }
func (e *fatalError) Unwrap() error { return e.err }

func NewFatalError(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Policy bounds a retry loop. MaxRetries counts retries after the first attempt,
// so MaxRetries=2 allows up to three calls.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

// OnRetry is invoked before sleeping ahead of the next attempt. attempt is 1-based
// and refers to the attempt that just failed.
type OnRetry func(attempt int, err error, nextDelay time.Duration)

// Do calls fn until it succeeds, returns a FatalError, the policy is exhausted or
// ctx is done. The returned error is the last one fn produced, unwrapped from any
// retry markers.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error, onRetry OnRetry) error {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	var b backoff.BackOff
	if policy.MaxElapsedTime > 0 {
		b = ExponentialBackoffWithMaxElapsed(policy.InitialInterval, policy.MaxInterval, policy.MaxElapsedTime, policy.Multiplier)
	} else {
		b = ExponentialBackoff(policy.InitialInterval, policy.MaxInterval, policy.Multiplier)
	}
	b = backoff.WithContext(b, ctx)
	b = backoff.WithMaxRetries(b, uint64(policy.MaxRetries))

	var lastErr error
	operation := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var fatalErr FatalError
		if errors.As(err, &fatalErr) {
			return backoff.Permanent(err)
		}
		return err
	}

	attempt := 0
	notify := func(err error, next time.Duration) {
		attempt++
		if onRetry != nil {
			onRetry(attempt, err, next)
		}
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if lastErr != nil {
			return unwrapMarkers(lastErr)
		}
		return err
	}
	return nil
}

func unwrapMarkers(err error) error {
	for {
		switch e := err.(type) {
		case *fatalError:
			err = e.err
		case *retryableError:
			err = e.err
		default:
			return err
		}
	}
}

func IsFatal(err error) bool {
	var fatalErr FatalError
	return errors.As(err, &fatalErr) && fatalErr.IsFatal()
}
