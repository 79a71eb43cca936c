package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/config"
)

func TestExecute_PassesResult(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-pass"))

	got, err := Execute(context.Background(), w, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestExecute_OpensAfterFailures(t *testing.T) {
	cfg := DefaultConfig("test-open")
	cfg.MinRequests = 2
	cfg.Timeout = time.Minute
	w := NewWrapper(cfg)

	errBackend := errors.New("backend down")
	for i := 0; i < 2; i++ {
		_, err := Execute(context.Background(), w, func(ctx context.Context) (string, error) {
			return "", errBackend
		})
		assert.ErrorIs(t, err, errBackend)
	}

	assert.Equal(t, gobreaker.StateOpen, w.State())

	called := false
	_, err := Execute(context.Background(), w, func(ctx context.Context) (string, error) {
		called = true
		return "", nil
	})
	assert.False(t, called)
	assert.True(t, IsOpenError(err))
}

func TestExecute_CancelledContextSkipsCall(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-cancel"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, w, func(ctx context.Context) (int, error) {
		t.Fatal("must not be called")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsSuccessful_ExcludesErrors(t *testing.T) {
	errIgnored := errors.New("not a backend fault")
	cfg := DefaultConfig("test-successful")
	cfg.MinRequests = 1
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errIgnored) }
	w := NewWrapper(cfg)

	_, err := Execute(context.Background(), w, func(ctx context.Context) (int, error) {
		return 0, errIgnored
	})
	assert.ErrorIs(t, err, errIgnored)
	assert.Equal(t, gobreaker.StateClosed, w.State())
}

func TestFromSettings_OverlaysNonZeroValues(t *testing.T) {
	cfg := FromSettings("analyzer-text", config.CircuitBreakerConfig{
		MaxRequests: 1,
		Timeout:     5 * time.Second,
	})

	assert.Equal(t, "analyzer-text", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultConfig("x").Interval, cfg.Interval)
	assert.Equal(t, DefaultConfig("x").FailureRatio, cfg.FailureRatio)
	assert.Equal(t, DefaultConfig("x").MinRequests, cfg.MinRequests)
}
