package deduplication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veritas/internal/config"
	"veritas/pkg/circuitbreaker"
)

// CircuitBreakerRepository fails fast once the underlying store keeps erroring,
// so admission falls back to the on_store_error policy without waiting on timeouts.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) Repository {
	if !cfg.Enabled {
		return repo
	}

	cbConfig := circuitbreaker.FromSettings("dedup-"+repo.Name(), cfg)
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (r *CircuitBreakerRepository) CreateIfAbsent(ctx context.Context, key string, now time.Time, retention time.Duration) (bool, error) {
	created, err := circuitbreaker.Execute(ctx, r.cb, func(ctx context.Context) (bool, error) {
		return r.repo.CreateIfAbsent(ctx, key, now, retention)
	})
	return created, r.wrap(err)
}

func (r *CircuitBreakerRepository) MarkCompleted(ctx context.Context, key string) error {
	_, err := circuitbreaker.Execute(ctx, r.cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.repo.MarkCompleted(ctx, key)
	})
	return r.wrap(err)
}

func (r *CircuitBreakerRepository) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := circuitbreaker.Execute(ctx, r.cb, func(ctx context.Context) (int, error) {
		return r.repo.Sweep(ctx, cutoff)
	})
	return n, r.wrap(err)
}

func (r *CircuitBreakerRepository) Name() string { return r.repo.Name() }

func (r *CircuitBreakerRepository) State() string { return r.cb.State().String() }

func (r *CircuitBreakerRepository) wrap(err error) error {
	if err != nil && circuitbreaker.IsOpenError(err) {
		return fmt.Errorf("circuit breaker is open for %s: %w", r.cb.Name(), err)
	}
	return err
}
