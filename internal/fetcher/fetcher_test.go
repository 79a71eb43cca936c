package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/config"
	"veritas/internal/logger"
	"veritas/pkg/models"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type graphStub struct {
	server    *httptest.Server
	infoCalls atomic.Int32
	fileCalls atomic.Int32
}

func newGraphStub(t *testing.T, info func(w http.ResponseWriter, r *http.Request), file func(w http.ResponseWriter, r *http.Request)) *graphStub {
	t.Helper()
	s := &graphStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/", func(w http.ResponseWriter, r *http.Request) {
		s.infoCalls.Add(1)
		info(w, r)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		s.fileCalls.Add(1)
		file(w, r)
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *graphStub) infoHandler(mimeType string, size int64) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"url":       s.server.URL + "/files/1",
			"mime_type": mimeType,
			"file_size": size,
			"id":        "1",
		})
	}
}

func newTestFetcher(baseURL string, mutate func(*config.FetchConfig)) *HTTPFetcher {
	cfg := config.FetchConfig{
		MaxBytes:        1024,
		MaxRetries:      2,
		AttemptTimeout:  200 * time.Millisecond,
		Timeout:         2 * time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	wa := config.WhatsAppConfig{AccessToken: "secret", GraphBaseURL: baseURL, APIVersion: "v21.0"}
	return New(cfg, wa, nil, logger.NopLogger())
}

func requireKind(t *testing.T, err error, kind Kind) *FetchError {
	t.Helper()
	var fe *FetchError
	require.True(t, errors.As(err, &fe), "expected *FetchError, got %T: %v", err, err)
	assert.Equal(t, kind, fe.Kind)
	return fe
}

func TestFetch_ResolvesGraphMediaID(t *testing.T) {
	var stub *graphStub
	stub = newGraphStub(t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.Equal(t, "/v21.0/1234", r.URL.Path)
			stub.infoHandler("image/jpeg", 4)(w, r)
		},
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte("jpeg"))
		},
	)

	media, err := newTestFetcher(stub.server.URL, nil).Fetch(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), media.Data)
	assert.Equal(t, "image/jpeg", media.MIME)
	assert.Equal(t, models.MediaKindImage, media.Kind)
}

func TestFetch_SniffsGenericContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	media, err := newTestFetcher(srv.URL, nil).Fetch(context.Background(), srv.URL+"/photo")
	require.NoError(t, err)
	assert.Equal(t, "image/png", media.MIME)
	assert.Equal(t, models.MediaKindImage, media.Kind)
}

func TestFetch_StripsMIMEParameters(t *testing.T) {
	var stub *graphStub
	stub = newGraphStub(t,
		func(w http.ResponseWriter, r *http.Request) { stub.infoHandler("audio/ogg; codecs=opus", 2)(w, r) },
		func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) },
	)

	media, err := newTestFetcher(stub.server.URL, nil).Fetch(context.Background(), "voice")
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", media.MIME)
	assert.Equal(t, models.MediaKindAudio, media.Kind)
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	stub := newGraphStub(t,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("download must not be attempted") },
	)

	_, err := newTestFetcher(stub.server.URL, nil).Fetch(context.Background(), "missing")
	fe := requireKind(t, err, KindNotFound)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Equal(t, int32(1), stub.infoCalls.Load())
}

func TestFetch_TooLarge(t *testing.T) {
	tests := []struct {
		name      string
		declared  int64
		file      func(w http.ResponseWriter, r *http.Request)
		downloads int32
	}{
		{
			name:     "declared file size",
			declared: 4096,
			file:     func(w http.ResponseWriter, r *http.Request) { t.Fatal("download must not be attempted") },
		},
		{
			name:     "content length",
			declared: 10,
			file: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(bytes.Repeat([]byte("a"), 2048))
			},
			downloads: 1,
		},
		{
			name:     "streamed body",
			declared: 10,
			file: func(w http.ResponseWriter, r *http.Request) {
				flusher := w.(http.Flusher)
				for i := 0; i < 8; i++ {
					_, _ = w.Write(bytes.Repeat([]byte("a"), 256))
					flusher.Flush()
				}
			},
			downloads: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stub *graphStub
			stub = newGraphStub(t,
				func(w http.ResponseWriter, r *http.Request) { stub.infoHandler("video/mp4", tt.declared)(w, r) },
				tt.file,
			)

			_, err := newTestFetcher(stub.server.URL, nil).Fetch(context.Background(), "big")
			requireKind(t, err, KindTooLarge)
			assert.Equal(t, int32(1), stub.infoCalls.Load())
			assert.Equal(t, tt.downloads, stub.fileCalls.Load())
		})
	}
}

func TestFetch_RetriesTransportFailures(t *testing.T) {
	var stub *graphStub
	stub = newGraphStub(t,
		func(w http.ResponseWriter, r *http.Request) {
			if stub.infoCalls.Load() < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			stub.infoHandler("image/png", 2)(w, r)
		},
		func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) },
	)

	media, err := newTestFetcher(stub.server.URL, nil).Fetch(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), media.Data)
	assert.Equal(t, int32(3), stub.infoCalls.Load())
}

func TestFetch_GivesUpAfterMaxRetries(t *testing.T) {
	stub := newGraphStub(t,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
		func(w http.ResponseWriter, r *http.Request) {},
	)

	_, err := newTestFetcher(stub.server.URL, nil).Fetch(context.Background(), "down")
	requireKind(t, err, KindTransport)
	assert.Equal(t, int32(3), stub.infoCalls.Load())
}

func TestFetch_AuthFailureIsNotRetried(t *testing.T) {
	stub := newGraphStub(t,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
		func(w http.ResponseWriter, r *http.Request) {},
	)

	_, err := newTestFetcher(stub.server.URL, nil).Fetch(context.Background(), "token-expired")
	requireKind(t, err, KindTransport)
	assert.Equal(t, int32(1), stub.infoCalls.Load())
}

func TestFetch_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	stub := newGraphStub(t,
		func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	f := newTestFetcher(stub.server.URL, func(c *config.FetchConfig) {
		c.AttemptTimeout = 20 * time.Millisecond
		c.MaxRetries = 1
	})

	start := time.Now()
	_, err := f.Fetch(context.Background(), "slow")
	requireKind(t, err, KindTimeout)
	assert.Equal(t, int32(2), stub.infoCalls.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetch_TotalTimeoutBoundsRetries(t *testing.T) {
	stub := newGraphStub(t,
		func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	f := newTestFetcher(stub.server.URL, func(c *config.FetchConfig) {
		c.AttemptTimeout = time.Second
		c.Timeout = 50 * time.Millisecond
		c.MaxRetries = 5
	})

	start := time.Now()
	_, err := f.Fetch(context.Background(), "slow")
	requireKind(t, err, KindTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFetchError_Retryable(t *testing.T) {
	tests := []struct {
		err  *FetchError
		want bool
	}{
		{&FetchError{Kind: KindTimeout}, true},
		{&FetchError{Kind: KindTransport}, true},
		{&FetchError{Kind: KindTransport, Status: 503}, true},
		{&FetchError{Kind: KindTransport, Status: 429}, true},
		{&FetchError{Kind: KindTransport, Status: 403}, false},
		{&FetchError{Kind: KindNotFound}, false},
		{&FetchError{Kind: KindTooLarge}, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
		})
	}
}
