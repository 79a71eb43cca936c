package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veritas/internal/logger"
	pkgerrors "veritas/pkg/errors"
	"veritas/pkg/metrics"
	"veritas/pkg/models"
	"veritas/pkg/tracing"
)

// Input is the content handed to an analyzer. Text is set for text analysis,
// Media, MIME and Kind for attachments.
type Input struct {
	Text  string
	Media []byte
	MIME  string
	Kind  models.MediaKind
}

// Analyzer never fails: every error is folded into an ANALYSIS_FAILED verdict.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) models.Verdict
}

// Backend is the pluggable scoring procedure behind an Analyzer.
type Backend interface {
	Analyze(ctx context.Context, in Input) (models.Verdict, error)
}

type BackendFunc func(ctx context.Context, in Input) (models.Verdict, error)

func (f BackendFunc) Analyze(ctx context.Context, in Input) (models.Verdict, error) {
	return f(ctx, in)
}

var (
	ErrAnalysisTimeout  = errors.New("analysis timed out")
	ErrAnalysisInternal = errors.New("analysis internal error")
)

const (
	explanationTimeout = "analysis timed out"
	explanationError   = "analysis error"
)

type result struct {
	verdict models.Verdict
	err     error
}

// Adapter bounds a Backend with a timeout. Analyze returns within the timeout
// even when the backend ignores ctx; the abandoned call finishes in the background.
type Adapter struct {
	name    string
	backend Backend
	timeout time.Duration
	logger  logger.Logger
}

func NewAdapter(name string, backend Backend, timeout time.Duration, log logger.Logger) *Adapter {
	return &Adapter{name: name, backend: backend, timeout: timeout, logger: log}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Timeout() time.Duration { return a.timeout }

func (a *Adapter) Analyze(ctx context.Context, in Input) models.Verdict {
	start := time.Now()
	ctx, span := tracing.StartStage(ctx, "analyze_"+a.name, "")

	verdict, err := a.run(ctx, in)
	if err != nil {
		level := a.logger.WarnwCtx
		if errors.Is(err, ErrAnalysisInternal) {
			level = a.logger.ErrorwCtx
		}
		level(ctx, "Analysis failed",
			"analyzer", a.name,
			"error", err,
			"duration", time.Since(start),
		)
		verdict = models.FailedVerdict(explanationError)
		if errors.Is(err, ErrAnalysisTimeout) {
			verdict = models.FailedVerdict(explanationTimeout)
		}
	}

	metrics.ObserveAnalysis(a.name, string(verdict.Category), time.Since(start))
	tracing.EndStage(span, err)
	return verdict
}

func (a *Adapter) run(ctx context.Context, in Input) (models.Verdict, error) {
	if a.backend == nil {
		return models.Verdict{}, fmt.Errorf("%w: no backend configured", ErrAnalysisInternal)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrAnalysisInternal, pkgerrors.RecoverPanic(r))}
			}
		}()
		v, err := a.backend.Analyze(ctx, in)
		done <- result{verdict: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
				return models.Verdict{}, fmt.Errorf("%w after %s", ErrAnalysisTimeout, a.timeout)
			}
			return models.Verdict{}, fmt.Errorf("%w: %v", ErrAnalysisInternal, r.err)
		}
		return validate(r.verdict)
	case <-ctx.Done():
		return models.Verdict{}, fmt.Errorf("%w after %s", ErrAnalysisTimeout, a.timeout)
	}
}

func validate(v models.Verdict) (models.Verdict, error) {
	switch v.Category {
	case models.CategoryLikelyTrue, models.CategoryLikelyFalse, models.CategoryUncertain:
		return v.Clamp(), nil
	case models.CategoryAnalysisFailed:
		if v.Explanation == "" {
			v.Explanation = explanationError
		}
		return v, nil
	default:
		return models.Verdict{}, fmt.Errorf("%w: backend returned category %q", ErrAnalysisInternal, v.Category)
	}
}
