package analyzer

import (
	"context"
	"errors"
	"fmt"

	"veritas/internal/config"
	"veritas/pkg/circuitbreaker"
	"veritas/pkg/models"
)

type CircuitBreakerBackend struct {
	backend Backend
	cb      *circuitbreaker.Wrapper
}

// NewCircuitBreakerBackend returns backend unchanged when breaking is disabled.
func NewCircuitBreakerBackend(name string, backend Backend, cfg config.CircuitBreakerConfig) Backend {
	if !cfg.Enabled {
		return backend
	}

	cbConfig := circuitbreaker.FromSettings("analyzer-"+name, cfg)
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}

	return &CircuitBreakerBackend{
		backend: backend,
		cb:      circuitbreaker.NewWrapper(cbConfig),
	}
}

func (b *CircuitBreakerBackend) Analyze(ctx context.Context, in Input) (models.Verdict, error) {
	v, err := circuitbreaker.Execute(ctx, b.cb, func(ctx context.Context) (models.Verdict, error) {
		return b.backend.Analyze(ctx, in)
	})
	if err != nil && circuitbreaker.IsOpenError(err) {
		return models.Verdict{}, fmt.Errorf("circuit breaker is open for %s: %w", b.cb.Name(), err)
	}
	return v, err
}

func (b *CircuitBreakerBackend) State() string {
	return b.cb.State().String()
}
