package analyzer

import (
	"context"
	"net/http"
	"time"

	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/internal/logger"
	"veritas/pkg/models"
)

func NewTextAdapter(backend Backend, timeout time.Duration, log logger.Logger) *Adapter {
	if timeout <= 0 {
		timeout = constants.DefaultTextAnalyzeTimeout
	}
	return NewAdapter("text", backend, timeout, log)
}

func NewMediaAdapter(backend Backend, timeout time.Duration, log logger.Logger) *Adapter {
	if timeout <= 0 {
		timeout = constants.DefaultMediaAnalyzeTimeout
	}
	return NewAdapter("media", backend, timeout, log)
}

// Set holds the two adapters the router dispatches to.
type Set struct {
	Text  *Adapter
	Media *Adapter
}

// NewSet wires the configured classifier backends. A disabled text backend or a
// media kind without a backend still yields an adapter that answers ANALYSIS_FAILED.
func NewSet(cfg config.AnalyzersConfig, cb config.CircuitBreakerConfig, client *http.Client, log logger.Logger) Set {
	var text Backend = BackendFunc(func(ctx context.Context, in Input) (models.Verdict, error) {
		return models.FailedVerdict("no analyzer for text"), nil
	})
	if cfg.Text.Backend.Enabled {
		text = NewCircuitBreakerBackend("text", NewTextBackend(cfg.Text, client), cb)
	}

	media := NewMediaRouter()
	for kind, backend := range map[models.MediaKind]config.BackendConfig{
		models.MediaKindImage: cfg.Media.Image,
		models.MediaKindVideo: cfg.Media.Video,
		models.MediaKindAudio: cfg.Media.Audio,
	} {
		if !backend.Enabled {
			continue
		}
		media.Register(kind, NewCircuitBreakerBackend(string(kind), NewMediaBackend(backend, cfg.Media.Threshold, client), cb))
	}

	log.Infow("Analyzers configured",
		"text_enabled", cfg.Text.Backend.Enabled,
		"media_kinds", media.Kinds(),
		"text_timeout", cfg.Text.Timeout,
		"media_timeout", cfg.Media.Timeout,
	)

	return Set{
		Text:  NewTextAdapter(text, cfg.Text.Timeout, log),
		Media: NewMediaAdapter(media, cfg.Media.Timeout, log),
	}
}
