package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"veritas/internal/analyzer"
	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/internal/deduplication"
	"veritas/internal/fetcher"
	"veritas/internal/logger"
	"veritas/internal/reply"
	"veritas/internal/sender"
	pkgerrors "veritas/pkg/errors"
	"veritas/pkg/logging"
	"veritas/pkg/metrics"
	"veritas/pkg/models"
	"veritas/pkg/tracing"
)

var ErrShuttingDown = errors.New("router is shutting down")

const (
	explanationEmpty       = "empty input"
	explanationUnsupported = "unsupported message type"
	explanationBudget      = "analysis timed out"
)

type Deduplicator interface {
	Admit(ctx context.Context, eventID string) (deduplication.Admission, error)
	Complete(ctx context.Context, eventID string) error
}

// TimedAnalyzer is an analyzer with a known upper bound on Analyze.
type TimedAnalyzer interface {
	analyzer.Analyzer
	Timeout() time.Duration
}

type Options struct {
	MaxInFlight     int
	FetchTimeout    time.Duration
	SendTimeout     time.Duration
	CommandsEnabled bool
	MarkRead        bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxInFlight:     cfg.Router.MaxInFlight,
		FetchTimeout:    cfg.Fetch.Timeout,
		SendTimeout:     cfg.Reply.SendTimeout,
		CommandsEnabled: cfg.Reply.CommandsEnabled,
		MarkRead:        cfg.WhatsApp.MarkRead,
	}
}

type Deps struct {
	Dedup     Deduplicator
	Fetcher   fetcher.Fetcher
	Text      TimedAnalyzer
	Media     TimedAnalyzer
	Formatter *reply.Formatter
	Sender    sender.Sender
	Logger    logger.Logger
	Observer  StateObserver
}

// Router admits inbound events and runs one pipeline goroutine per admitted
// event. Pipelines run detached from the submitting request and every admitted
// event gets exactly one reply handed to the sender.
type Router struct {
	opts Options
	deps Deps
	sem  *semaphore.Weighted

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func New(opts Options, deps Deps) *Router {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 64
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = constants.DefaultFetchTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = constants.DefaultSendTimeout
	}
	if deps.Observer == nil {
		deps.Observer = func(string, State) {}
	}

	return &Router{
		opts: opts,
		deps: deps,
		sem:  semaphore.NewWeighted(int64(opts.MaxInFlight)),
	}
}

// Submit runs admission synchronously and starts the pipeline for an admitted
// event. It returns the admission outcome; the store error policy decides
// whether a dedup failure surfaces here.
func (r *Router) Submit(ctx context.Context, ev models.InboundEvent) (deduplication.Admission, error) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return 0, ErrShuttingDown
	}
	r.wg.Add(1)
	r.mu.Unlock()

	ctx = logging.WithEventID(ctx, ev.EventID)
	ctx = logging.WithSenderID(ctx, ev.SenderID)

	r.deps.Observer(ev.EventID, StateReceived)
	r.deps.Observer(ev.EventID, StateDedupCheck)

	admission, err := r.deps.Dedup.Admit(ctx, ev.EventID)
	if err != nil {
		r.wg.Done()
		return 0, err
	}
	if admission == deduplication.Duplicate {
		r.deps.Observer(ev.EventID, StateDropped)
		r.deps.Logger.DebugwCtx(ctx, "Duplicate event dropped")
		r.wg.Done()
		return admission, nil
	}

	go r.run(context.WithoutCancel(ctx), ev)
	return admission, nil
}

// Shutdown refuses new submissions and waits for in-flight pipelines to reach DONE.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain interrupted: %w", ctx.Err())
	}
}

func (r *Router) run(ctx context.Context, ev models.InboundEvent) {
	defer r.wg.Done()

	// Acquire only fails on a cancelled context; ctx is detached so it never is.
	_ = r.sem.Acquire(ctx, 1)
	defer r.sem.Release(1)

	metrics.InFlightEvents.Inc()
	defer metrics.InFlightEvents.Dec()

	start := time.Now()
	ctx, span := tracing.StartStage(ctx, "pipeline", ev.EventID)
	if traceID := tracing.TraceID(ctx); traceID != "" && logging.GetTraceID(ctx) == "" {
		ctx = logging.WithTraceID(ctx, traceID)
	}

	category := string(models.CategoryAnalysisFailed)
	sendAttempted := false
	defer func() {
		if rec := recover(); rec != nil {
			err := pkgerrors.RecoverPanic(rec)
			r.deps.Logger.ErrorwCtx(ctx, "Pipeline panicked", "error", err)
			if !sendAttempted {
				r.sendFallback(ctx, ev)
			}
			tracing.EndStage(span, err)
		} else {
			tracing.EndStage(span, nil)
		}
		if err := r.deps.Dedup.Complete(ctx, ev.EventID); err != nil {
			r.deps.Logger.ErrorwCtx(ctx, "Failed to complete dedup record", "error", err)
		}
		r.deps.Observer(ev.EventID, StateDone)
		metrics.ObservePipeline(payloadType(ev), category, time.Since(start))
	}()

	r.markRead(ctx, ev)

	r.deps.Observer(ev.EventID, StateClassifying)
	text, verdict := r.respond(ctx, ev)
	if verdict != nil {
		category = string(verdict.Category)
	} else {
		category = "command"
	}

	sendAttempted = true
	r.send(ctx, ev, text)
}

// sendFallback replies with the generic failure text after a pipeline panic.
func (r *Router) sendFallback(ctx context.Context, ev models.InboundEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.deps.Logger.ErrorwCtx(ctx, "Fallback reply panicked", "error", pkgerrors.RecoverPanic(rec))
		}
	}()
	r.send(ctx, ev, reply.FallbackText)
}

// respond produces the reply text. verdict is nil when the event was a command.
func (r *Router) respond(ctx context.Context, ev models.InboundEvent) (string, *models.Verdict) {
	if p, ok := ev.Payload.(models.TextPayload); ok && r.opts.CommandsEnabled {
		if cmd, ok := reply.ParseCommand(p.Body); ok {
			r.deps.Observer(ev.EventID, StateFormatting)
			r.deps.Logger.InfowCtx(ctx, "Answering command", "command", string(cmd))
			return r.deps.Formatter.Command(cmd), nil
		}
	}

	verdict := r.analyze(ctx, ev)
	r.deps.Observer(ev.EventID, StateFormatting)
	r.deps.Logger.InfowCtx(ctx, "Event analyzed",
		"category", verdict.Category,
		"confidence", verdict.Confidence,
		"explanation", verdict.Explanation,
	)
	return r.deps.Formatter.Format(verdict), &verdict
}

func (r *Router) analyze(ctx context.Context, ev models.InboundEvent) models.Verdict {
	switch p := ev.Payload.(type) {
	case models.TextPayload:
		if strings.TrimSpace(p.Body) == "" {
			return models.FailedVerdict(explanationEmpty)
		}
		return r.withinBudget(ctx, r.deps.Text.Timeout(), func(ctx context.Context) models.Verdict {
			r.deps.Observer(ev.EventID, StateAnalyzing)
			return r.deps.Text.Analyze(ctx, analyzer.Input{Text: p.Body})
		})

	case models.MediaPayload:
		if p.DeclaredMIME != "" && models.MediaKindFromMIME(p.DeclaredMIME) == models.MediaKindUnknown {
			return models.FailedVerdict(explanationUnsupported)
		}
		budget := r.opts.FetchTimeout + r.deps.Media.Timeout()
		return r.withinBudget(ctx, budget, func(ctx context.Context) models.Verdict {
			return r.analyzeMedia(ctx, ev.EventID, p)
		})

	default:
		return models.FailedVerdict(explanationUnsupported)
	}
}

func (r *Router) analyzeMedia(ctx context.Context, eventID string, p models.MediaPayload) models.Verdict {
	r.deps.Observer(eventID, StateFetchingMedia)
	media, err := r.deps.Fetcher.Fetch(ctx, p.MediaRef)
	if err != nil {
		kind := fetcher.KindTransport
		var fe *fetcher.FetchError
		if errors.As(err, &fe) {
			kind = fe.Kind
		}
		r.deps.Logger.WarnwCtx(ctx, "Media fetch failed",
			"media_ref", p.MediaRef,
			"kind", kind,
			"error", err,
		)
		return models.FailedVerdict("fetch failed: " + string(kind))
	}

	kind := models.MediaKindFromMIME(p.DeclaredMIME)
	mimeType := p.DeclaredMIME
	if kind == models.MediaKindUnknown {
		kind, mimeType = media.Kind, media.MIME
	}
	if kind == models.MediaKindUnknown {
		return models.FailedVerdict(explanationUnsupported)
	}

	r.deps.Observer(eventID, StateAnalyzing)
	return r.deps.Media.Analyze(ctx, analyzer.Input{Media: media.Data, MIME: mimeType, Kind: kind})
}

// withinBudget forces ANALYSIS_FAILED once the pipeline wall clock budget runs out.
func (r *Router) withinBudget(ctx context.Context, budget time.Duration, fn func(ctx context.Context) models.Verdict) models.Verdict {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan models.Verdict, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.deps.Logger.ErrorwCtx(ctx, "Analysis stage panicked", "error", pkgerrors.RecoverPanic(rec))
				done <- models.FailedVerdict("analysis error")
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case v := <-done:
		return v
	case <-ctx.Done():
		r.deps.Logger.WarnwCtx(ctx, "Pipeline budget exceeded", "budget", budget)
		return models.FailedVerdict(explanationBudget)
	}
}

func (r *Router) send(ctx context.Context, ev models.InboundEvent, text string) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
	defer cancel()

	out := models.OutboundReply{RecipientID: ev.SenderID, Text: text, InReplyTo: ev.EventID}
	err := r.deps.Sender.Send(ctx, out)
	r.deps.Observer(ev.EventID, StateReplied)

	if err != nil {
		metrics.RepliesTotal.WithLabelValues(r.deps.Sender.Name(), "error").Inc()
		r.deps.Logger.ErrorwCtx(ctx, "Failed to send reply", "sender", r.deps.Sender.Name(), "error", err)
		return
	}
	metrics.RepliesTotal.WithLabelValues(r.deps.Sender.Name(), "ok").Inc()
}

func (r *Router) markRead(ctx context.Context, ev models.InboundEvent) {
	if !r.opts.MarkRead {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.deps.Logger.WarnwCtx(ctx, "Mark read panicked", "error", pkgerrors.RecoverPanic(rec))
		}
	}()
	marker, ok := r.deps.Sender.(sender.ReadMarker)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
	defer cancel()
	if err := marker.MarkRead(ctx, ev.EventID); err != nil {
		r.deps.Logger.WarnwCtx(ctx, "Failed to mark message as read", "error", err)
	}
}

func payloadType(ev models.InboundEvent) string {
	if ev.Payload == nil {
		return string(models.PayloadTypeUnsupported)
	}
	return string(ev.Payload.Type())
}
