package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/config"
	"veritas/internal/logger"
	"veritas/pkg/models"
)

func TestAdapter_PassesBackendVerdict(t *testing.T) {
	backend := BackendFunc(func(_ context.Context, in Input) (models.Verdict, error) {
		assert.Equal(t, "hello world", in.Text)
		return models.Verdict{Category: models.CategoryLikelyTrue, Confidence: 0.91, Explanation: "ok"}, nil
	})

	v := NewTextAdapter(backend, time.Second, logger.NopLogger()).Analyze(context.Background(), Input{Text: "hello world"})
	assert.Equal(t, models.Verdict{Category: models.CategoryLikelyTrue, Confidence: 0.91, Explanation: "ok"}, v)
}

func TestAdapter_FoldsFailuresIntoAnalysisFailed(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
		want    string
	}{
		{
			name: "backend error",
			backend: BackendFunc(func(context.Context, Input) (models.Verdict, error) {
				return models.Verdict{}, errors.New("model loading")
			}),
			want: "analysis error",
		},
		{
			name: "panic",
			backend: BackendFunc(func(context.Context, Input) (models.Verdict, error) {
				panic("nil map")
			}),
			want: "analysis error",
		},
		{
			name: "unknown category",
			backend: BackendFunc(func(context.Context, Input) (models.Verdict, error) {
				return models.Verdict{Category: "MAYBE"}, nil
			}),
			want: "analysis error",
		},
		{
			name:    "nil backend",
			backend: nil,
			want:    "analysis error",
		},
		{
			name: "deadline from backend",
			backend: BackendFunc(func(ctx context.Context, _ Input) (models.Verdict, error) {
				<-ctx.Done()
				return models.Verdict{}, ctx.Err()
			}),
			want: "analysis timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter("text", tt.backend, 20*time.Millisecond, logger.NopLogger())
			v := a.Analyze(context.Background(), Input{Text: "some text here"})
			assert.Equal(t, models.CategoryAnalysisFailed, v.Category)
			assert.Equal(t, tt.want, v.Explanation)
		})
	}
}

func TestAdapter_ReturnsOnTimeoutWhenBackendIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	backend := BackendFunc(func(context.Context, Input) (models.Verdict, error) {
		<-release
		return models.Verdict{Category: models.CategoryLikelyTrue, Confidence: 1}, nil
	})

	timeout := 30 * time.Millisecond
	a := NewMediaAdapter(backend, timeout, logger.NopLogger())

	start := time.Now()
	v := a.Analyze(context.Background(), Input{Media: []byte{1}})
	elapsed := time.Since(start)

	assert.Equal(t, models.FailedVerdict("analysis timed out"), v)
	assert.Less(t, elapsed, timeout+200*time.Millisecond)
}

func TestAdapter_ClampsConfidenceAndKeepsFailedExplanation(t *testing.T) {
	high := BackendFunc(func(context.Context, Input) (models.Verdict, error) {
		return models.Verdict{Category: models.CategoryLikelyFalse, Confidence: 1.7}, nil
	})
	v := NewTextAdapter(high, time.Second, logger.NopLogger()).Analyze(context.Background(), Input{})
	assert.Equal(t, 1.0, v.Confidence)

	failed := BackendFunc(func(context.Context, Input) (models.Verdict, error) {
		return models.FailedVerdict("no analyzer for audio"), nil
	})
	v = NewMediaAdapter(failed, time.Second, logger.NopLogger()).Analyze(context.Background(), Input{})
	assert.Equal(t, models.FailedVerdict("no analyzer for audio"), v)
}

func TestAdapter_DefaultTimeouts(t *testing.T) {
	assert.Equal(t, 10*time.Second, NewTextAdapter(nil, 0, logger.NopLogger()).Timeout())
	assert.Equal(t, 30*time.Second, NewMediaAdapter(nil, 0, logger.NopLogger()).Timeout())
}

func TestCircuitBreakerBackend_OpensAfterFailures(t *testing.T) {
	var calls int
	inner := BackendFunc(func(context.Context, Input) (models.Verdict, error) {
		calls++
		return models.Verdict{}, errors.New("503")
	})

	b := NewCircuitBreakerBackend("image", inner, config.CircuitBreakerConfig{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	})

	for i := 0; i < 4; i++ {
		_, err := b.Analyze(context.Background(), Input{})
		require.Error(t, err)
	}
	assert.Equal(t, 2, calls)

	_, err := b.Analyze(context.Background(), Input{})
	assert.Contains(t, err.Error(), "circuit breaker is open for analyzer-image")
	assert.Equal(t, "open", b.(*CircuitBreakerBackend).State())
}

func TestCircuitBreakerBackend_DisabledReturnsInner(t *testing.T) {
	inner := BackendFunc(func(context.Context, Input) (models.Verdict, error) { return models.Verdict{}, nil })
	b := NewCircuitBreakerBackend("text", inner, config.CircuitBreakerConfig{})
	_, wrapped := b.(*CircuitBreakerBackend)
	assert.False(t, wrapped)
}

func TestNewSet_UnconfiguredBackends(t *testing.T) {
	set := NewSet(config.AnalyzersConfig{}, config.CircuitBreakerConfig{}, nil, logger.NopLogger())

	v := set.Text.Analyze(context.Background(), Input{Text: "a long enough message"})
	assert.Equal(t, models.FailedVerdict("no analyzer for text"), v)

	v = set.Media.Analyze(context.Background(), Input{Media: []byte{1}, Kind: models.MediaKindVideo})
	assert.Equal(t, models.FailedVerdict("no analyzer for video"), v)
}
