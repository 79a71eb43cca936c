package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/analyzer"
	"veritas/internal/config"
	"veritas/internal/deduplication"
	"veritas/internal/fetcher"
	"veritas/internal/logger"
	"veritas/internal/reply"
	"veritas/internal/sender"
	"veritas/pkg/models"
)

type recordingSender struct {
	mu      sync.Mutex
	replies []models.OutboundReply
	read    []string
	err     error
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(_ context.Context, r models.OutboundReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
	return s.err
}

func (s *recordingSender) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read = append(s.read, id)
	return nil
}

func (s *recordingSender) Replies() []models.OutboundReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OutboundReply(nil), s.replies...)
}

type fetchFunc func(ctx context.Context, ref string) (fetcher.Media, error)

func (f fetchFunc) Fetch(ctx context.Context, ref string) (fetcher.Media, error) { return f(ctx, ref) }

type stateLog struct {
	mu     sync.Mutex
	states map[string][]State
}

func (l *stateLog) observe(id string, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[id] = append(l.states[id], s)
}

func (l *stateLog) For(id string) []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states[id]...)
}

type harness struct {
	router     *Router
	repo       *deduplication.MemoryRepository
	sender     *recordingSender
	states     *stateLog
	textCalls  atomic.Int32
	mediaCalls atomic.Int32
	fetchCalls atomic.Int32
}

type harnessConfig struct {
	text      analyzer.BackendFunc
	media     analyzer.BackendFunc
	fetch     fetchFunc
	timeout   time.Duration
	opts      Options
	dedupRepo deduplication.Repository
	sender    func(*recordingSender) sender.Sender
	observe   StateObserver
}

func newHarness(t *testing.T, hc harnessConfig) *harness {
	t.Helper()
	h := &harness{
		repo:   deduplication.NewMemoryRepository(),
		sender: &recordingSender{},
		states: &stateLog{states: make(map[string][]State)},
	}

	if hc.text == nil {
		hc.text = func(context.Context, analyzer.Input) (models.Verdict, error) {
			return models.Verdict{Category: models.CategoryUncertain, Confidence: 0.5}, nil
		}
	}
	if hc.media == nil {
		hc.media = func(context.Context, analyzer.Input) (models.Verdict, error) {
			return models.Verdict{Category: models.CategoryLikelyTrue, Confidence: 0.9}, nil
		}
	}
	if hc.fetch == nil {
		hc.fetch = func(context.Context, string) (fetcher.Media, error) {
			return fetcher.Media{Data: []byte{1, 2, 3}, MIME: "image/png", Kind: models.MediaKindImage}, nil
		}
	}
	if hc.timeout == 0 {
		hc.timeout = time.Second
	}
	var repo deduplication.Repository = h.repo
	if hc.dedupRepo != nil {
		repo = hc.dedupRepo
	}

	var out sender.Sender = h.sender
	if hc.sender != nil {
		out = hc.sender(h.sender)
	}
	observe := h.states.observe
	if hc.observe != nil {
		observe = func(id string, s State) {
			h.states.observe(id, s)
			hc.observe(id, s)
		}
	}

	text, media, fetch := hc.text, hc.media, hc.fetch
	log := logger.NopLogger()

	formatter, err := reply.NewFormatter(config.ReplyConfig{HighConfidence: 0.8})
	require.NoError(t, err)

	h.router = New(hc.opts, Deps{
		Dedup: deduplication.NewService(repo, config.DeduplicationConfig{OnStoreError: "deny"}, log),
		Fetcher: fetchFunc(func(ctx context.Context, ref string) (fetcher.Media, error) {
			h.fetchCalls.Add(1)
			return fetch(ctx, ref)
		}),
		Text: analyzer.NewTextAdapter(analyzer.BackendFunc(func(ctx context.Context, in analyzer.Input) (models.Verdict, error) {
			h.textCalls.Add(1)
			return text(ctx, in)
		}), hc.timeout, log),
		Media: analyzer.NewMediaAdapter(analyzer.BackendFunc(func(ctx context.Context, in analyzer.Input) (models.Verdict, error) {
			h.mediaCalls.Add(1)
			return media(ctx, in)
		}), hc.timeout, log),
		Formatter: formatter,
		Sender:    out,
		Logger:    log,
		Observer:  observe,
	})
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.router.Shutdown(ctx))
}

func textEvent(id, body string) models.InboundEvent {
	return models.InboundEvent{EventID: id, SenderID: "33600000001", ReceivedAt: time.Now(), Payload: models.TextPayload{Body: body}}
}

func mediaEvent(id, mime string) models.InboundEvent {
	return models.InboundEvent{EventID: id, SenderID: "33600000002", ReceivedAt: time.Now(), Payload: models.MediaPayload{MediaRef: "media-" + id, DeclaredMIME: mime}}
}

func formatted(t *testing.T, v models.Verdict) string {
	t.Helper()
	f, err := reply.NewFormatter(config.ReplyConfig{HighConfidence: 0.8})
	require.NoError(t, err)
	return f.Format(v)
}

func TestRouter_TextLikelyFalseHighConfidence(t *testing.T) {
	h := newHarness(t, harnessConfig{
		text: func(_ context.Context, in analyzer.Input) (models.Verdict, error) {
			assert.Equal(t, "Vaccines cause magnetism", in.Text)
			return models.Verdict{Category: models.CategoryLikelyFalse, Confidence: 0.92}, nil
		},
	})

	admission, err := h.router.Submit(context.Background(), textEvent("wamid.1", "Vaccines cause magnetism"))
	require.NoError(t, err)
	assert.Equal(t, deduplication.Admitted, admission)
	h.drain(t)

	replies := h.sender.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, formatted(t, models.Verdict{Category: models.CategoryLikelyFalse, Confidence: 0.92}), replies[0].Text)
	assert.Contains(t, replies[0].Text, "92%")
	assert.Equal(t, "33600000001", replies[0].RecipientID)
	assert.Equal(t, "wamid.1", replies[0].InReplyTo)

	assert.Equal(t, []State{
		StateReceived, StateDedupCheck, StateClassifying, StateAnalyzing, StateFormatting, StateReplied, StateDone,
	}, h.states.For("wamid.1"))

	rec, ok := h.repo.Get("wamid.1")
	require.True(t, ok)
	assert.Equal(t, deduplication.StatusCompleted, rec.Status)
}

func TestRouter_FetchTooLargeSkipsAnalyzer(t *testing.T) {
	h := newHarness(t, harnessConfig{
		fetch: func(context.Context, string) (fetcher.Media, error) {
			return fetcher.Media{}, &fetcher.FetchError{Kind: fetcher.KindTooLarge, Err: errors.New("too big")}
		},
	})

	_, err := h.router.Submit(context.Background(), mediaEvent("wamid.2", "image/jpeg"))
	require.NoError(t, err)
	h.drain(t)

	assert.Equal(t, int32(0), h.mediaCalls.Load())
	replies := h.sender.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, reply.FallbackText, replies[0].Text)
	assert.Equal(t, []State{
		StateReceived, StateDedupCheck, StateClassifying, StateFetchingMedia, StateFormatting, StateReplied, StateDone,
	}, h.states.For("wamid.2"))
}

func TestRouter_EmptyAndUnsupportedBypassAnalyzers(t *testing.T) {
	events := []models.InboundEvent{
		textEvent("empty", ""),
		textEvent("blank", "   \n\t"),
		{EventID: "sticker", SenderID: "1", Payload: models.UnsupportedPayload{Kind: "sticker"}},
		{EventID: "nil", SenderID: "1"},
		mediaEvent("document", "application/pdf"),
	}

	h := newHarness(t, harnessConfig{})
	for _, ev := range events {
		_, err := h.router.Submit(context.Background(), ev)
		require.NoError(t, err)
	}
	h.drain(t)

	assert.Equal(t, int32(0), h.textCalls.Load())
	assert.Equal(t, int32(0), h.mediaCalls.Load())
	assert.Equal(t, int32(0), h.fetchCalls.Load())
	replies := h.sender.Replies()
	require.Len(t, replies, len(events))
	for _, r := range replies {
		assert.Equal(t, reply.FallbackText, r.Text)
	}
}

func TestRouter_AnalyzeVerdictExplanations(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	r := h.router

	assert.Equal(t, models.FailedVerdict("empty input"), r.analyze(context.Background(), textEvent("a", " ")))
	assert.Equal(t, models.FailedVerdict("unsupported message type"), r.analyze(context.Background(), models.InboundEvent{Payload: models.UnsupportedPayload{Kind: "location"}}))
	assert.Equal(t, models.FailedVerdict("unsupported message type"), r.analyze(context.Background(), mediaEvent("b", "application/zip")))

	r.deps.Fetcher = fetchFunc(func(context.Context, string) (fetcher.Media, error) {
		return fetcher.Media{}, &fetcher.FetchError{Kind: fetcher.KindNotFound}
	})
	assert.Equal(t, models.FailedVerdict("fetch failed: NOT_FOUND"), r.analyze(context.Background(), mediaEvent("c", "image/png")))

	r.deps.Fetcher = fetchFunc(func(context.Context, string) (fetcher.Media, error) {
		return fetcher.Media{Data: []byte("%PDF"), MIME: "application/pdf", Kind: models.MediaKindUnknown}, nil
	})
	assert.Equal(t, models.FailedVerdict("unsupported message type"), r.analyze(context.Background(), mediaEvent("d", "")))
}

func TestRouter_MediaKindFromFetchedContent(t *testing.T) {
	var got analyzer.Input
	h := newHarness(t, harnessConfig{
		fetch: func(context.Context, string) (fetcher.Media, error) {
			return fetcher.Media{Data: []byte("ogg"), MIME: "audio/ogg", Kind: models.MediaKindAudio}, nil
		},
		media: func(_ context.Context, in analyzer.Input) (models.Verdict, error) {
			got = in
			return models.Verdict{Category: models.CategoryLikelyTrue, Confidence: 0.7}, nil
		},
	})

	_, err := h.router.Submit(context.Background(), mediaEvent("voice", ""))
	require.NoError(t, err)
	h.drain(t)

	assert.Equal(t, models.MediaKindAudio, got.Kind)
	assert.Equal(t, "audio/ogg", got.MIME)
	assert.Equal(t, []byte("ogg"), got.Media)
}

func TestRouter_DuplicateDeliveryProducesNoSecondReply(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	first, err := h.router.Submit(context.Background(), textEvent("wamid.dup", "The moon is made of cheese"))
	require.NoError(t, err)
	second, err := h.router.Submit(context.Background(), textEvent("wamid.dup", "The moon is made of cheese"))
	require.NoError(t, err)
	h.drain(t)

	assert.Equal(t, deduplication.Admitted, first)
	assert.Equal(t, deduplication.Duplicate, second)
	assert.Len(t, h.sender.Replies(), 1)
	assert.Equal(t, int32(1), h.textCalls.Load())
	assert.Contains(t, h.states.For("wamid.dup"), StateDropped)
}

func TestRouter_ConcurrentRedeliveriesYieldOneReply(t *testing.T) {
	h := newHarness(t, harnessConfig{opts: Options{MaxInFlight: 4}})

	const ids, deliveries = 20, 8
	var wg sync.WaitGroup
	var admitted atomic.Int32
	for i := 0; i < ids; i++ {
		for j := 0; j < deliveries; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				a, err := h.router.Submit(context.Background(), textEvent(id, "some claim to check"))
				assert.NoError(t, err)
				if a == deduplication.Admitted {
					admitted.Add(1)
				}
			}(fmt.Sprintf("wamid.%d", i))
		}
	}
	wg.Wait()
	h.drain(t)

	assert.Equal(t, int32(ids), admitted.Load())
	assert.Len(t, h.sender.Replies(), ids)
	assert.Equal(t, int32(ids), h.textCalls.Load())
}

func TestRouter_SlowAnalyzerStillReplies(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	timeout := 40 * time.Millisecond
	h := newHarness(t, harnessConfig{
		timeout: timeout,
		text: func(context.Context, analyzer.Input) (models.Verdict, error) {
			<-release
			return models.Verdict{Category: models.CategoryLikelyTrue, Confidence: 1}, nil
		},
	})

	start := time.Now()
	_, err := h.router.Submit(context.Background(), textEvent("slow", "a sufficiently long claim"))
	require.NoError(t, err)
	h.drain(t)

	assert.Less(t, time.Since(start), timeout+500*time.Millisecond)
	replies := h.sender.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, reply.FallbackText, replies[0].Text)
}

func TestRouter_BudgetBoundsSlowFetch(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	h := newHarness(t, harnessConfig{
		timeout: 20 * time.Millisecond,
		opts:    Options{FetchTimeout: 20 * time.Millisecond},
		fetch: func(context.Context, string) (fetcher.Media, error) {
			<-release
			return fetcher.Media{}, nil
		},
	})

	v := h.router.analyze(context.Background(), mediaEvent("stuck", "video/mp4"))
	assert.Equal(t, models.FailedVerdict("analysis timed out"), v)
}

func TestRouter_SendErrorStillCompletes(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.sender.err = &sender.SendError{Sender: "recording", Status: 500, Err: errors.New("boom")}

	_, err := h.router.Submit(context.Background(), textEvent("wamid.err", "a sufficiently long claim"))
	require.NoError(t, err)
	h.drain(t)

	assert.Len(t, h.sender.Replies(), 1)
	rec, ok := h.repo.Get("wamid.err")
	require.True(t, ok)
	assert.Equal(t, deduplication.StatusCompleted, rec.Status)
	assert.Equal(t, StateDone, h.states.For("wamid.err")[len(h.states.For("wamid.err"))-1])
}

func TestRouter_CommandsBypassAnalysis(t *testing.T) {
	h := newHarness(t, harnessConfig{opts: Options{CommandsEnabled: true, MarkRead: true}})

	_, err := h.router.Submit(context.Background(), textEvent("wamid.cmd", "Help"))
	require.NoError(t, err)
	h.drain(t)

	assert.Equal(t, int32(0), h.textCalls.Load())
	replies := h.sender.Replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "How to use Veritas")
	assert.Equal(t, []string{"wamid.cmd"}, h.sender.read)
}

// brokenMarker panics on MarkRead: seen is never allocated.
type brokenMarker struct {
	*recordingSender
	seen map[string]bool
}

func (m *brokenMarker) MarkRead(_ context.Context, id string) error {
	m.seen[id] = true
	return nil
}

func TestRouter_MarkReadPanicStillReplies(t *testing.T) {
	h := newHarness(t, harnessConfig{
		opts: Options{MarkRead: true},
		sender: func(rs *recordingSender) sender.Sender {
			return &brokenMarker{recordingSender: rs}
		},
	})

	_, err := h.router.Submit(context.Background(), textEvent("wamid.mark", "a sufficiently long claim"))
	require.NoError(t, err)
	h.drain(t)

	replies := h.sender.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, formatted(t, models.Verdict{Category: models.CategoryUncertain, Confidence: 0.5}), replies[0].Text)
	assert.Equal(t, int32(1), h.textCalls.Load())
}

func TestRouter_PipelinePanicSendsFallbackReply(t *testing.T) {
	h := newHarness(t, harnessConfig{
		observe: func(_ string, s State) {
			if s == StateFormatting {
				panic("formatter exploded")
			}
		},
	})

	_, err := h.router.Submit(context.Background(), textEvent("wamid.panic", "a sufficiently long claim"))
	require.NoError(t, err)
	h.drain(t)

	replies := h.sender.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, reply.FallbackText, replies[0].Text)
	assert.Equal(t, "33600000001", replies[0].RecipientID)

	rec, ok := h.repo.Get("wamid.panic")
	require.True(t, ok)
	assert.Equal(t, deduplication.StatusCompleted, rec.Status)
	states := h.states.For("wamid.panic")
	assert.Equal(t, StateDone, states[len(states)-1])
}

func TestRouter_SendPanicIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, harnessConfig{
		sender: func(*recordingSender) sender.Sender {
			return panickingSender{calls: &calls}
		},
	})

	_, err := h.router.Submit(context.Background(), textEvent("wamid.sendpanic", "a sufficiently long claim"))
	require.NoError(t, err)
	h.drain(t)

	assert.Equal(t, int32(1), calls.Load())
	rec, ok := h.repo.Get("wamid.sendpanic")
	require.True(t, ok)
	assert.Equal(t, deduplication.StatusCompleted, rec.Status)
}

type panickingSender struct {
	calls *atomic.Int32
}

func (s panickingSender) Name() string { return "panicking" }

func (s panickingSender) Send(context.Context, models.OutboundReply) error {
	s.calls.Add(1)
	panic("transport exploded")
}

func TestRouter_ShutdownRefusesNewSubmissions(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.drain(t)

	_, err := h.router.Submit(context.Background(), textEvent("late", "a sufficiently long claim"))
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.Empty(t, h.sender.Replies())
}

func TestRouter_ShutdownWaitsForInFlight(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, harnessConfig{
		timeout: 5 * time.Second,
		text: func(context.Context, analyzer.Input) (models.Verdict, error) {
			<-release
			return models.Verdict{Category: models.CategoryLikelyTrue, Confidence: 0.9}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := h.router.Submit(ctx, textEvent("inflight", "a sufficiently long claim"))
	require.NoError(t, err)
	cancel()

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, h.router.Shutdown(short), context.DeadlineExceeded)

	close(release)
	h.drain(t)
	replies := h.sender.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, formatted(t, models.Verdict{Category: models.CategoryLikelyTrue, Confidence: 0.9}), replies[0].Text)
}

type failingRepo struct{ deduplication.Repository }

func (failingRepo) CreateIfAbsent(context.Context, string, time.Time, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingRepo) Name() string { return "failing" }

func TestRouter_DedupStoreFailureUnderDeny(t *testing.T) {
	h := newHarness(t, harnessConfig{dedupRepo: failingRepo{}})

	_, err := h.router.Submit(context.Background(), textEvent("wamid.x", "a sufficiently long claim"))
	assert.ErrorIs(t, err, deduplication.ErrStoreUnavailable)
	h.drain(t)
	assert.Empty(t, h.sender.Replies())
}
