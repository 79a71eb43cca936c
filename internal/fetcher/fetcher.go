package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/internal/logger"
	"veritas/pkg/metrics"
	"veritas/pkg/models"
	"veritas/pkg/retry"
	"veritas/pkg/tracing"
)

// Media is a fully buffered attachment.
type Media struct {
	Data []byte
	MIME string
	Kind models.MediaKind
}

type Fetcher interface {
	Fetch(ctx context.Context, mediaRef string) (Media, error)
}

// HTTPFetcher downloads attachments referenced either by a Graph API media id
// or by an absolute http(s) URL.
type HTTPFetcher struct {
	client *http.Client
	cfg    config.FetchConfig
	graph  string
	token  string
	logger logger.Logger
}

func New(cfg config.FetchConfig, wa config.WhatsAppConfig, client *http.Client, log logger.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = constants.DefaultMaxMediaBytes
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = constants.DefaultFetchAttemptTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultFetchTimeout
	}

	base := strings.TrimRight(wa.GraphBaseURL, "/")
	if base == "" {
		base = constants.DefaultGraphBaseURL
	}
	version := wa.APIVersion
	if version == "" {
		version = constants.DefaultGraphVersion
	}

	return &HTTPFetcher{
		client: client,
		cfg:    cfg,
		graph:  base + "/" + version,
		token:  wa.AccessToken,
		logger: log,
	}
}

// Fetch resolves and downloads mediaRef. Transport failures and timeouts are
// retried up to max_retries times; NOT_FOUND and TOO_LARGE are returned at once.
func (f *HTTPFetcher) Fetch(ctx context.Context, mediaRef string) (Media, error) {
	start := time.Now()
	ctx, span := tracing.StartStage(ctx, "fetch_media", mediaRef)

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	policy := retry.Policy{
		MaxRetries:      f.cfg.MaxRetries,
		InitialInterval: f.cfg.InitialInterval,
		MaxInterval:     f.cfg.MaxInterval,
		Multiplier:      2.0,
	}

	var media Media
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		m, err := f.attempt(ctx, mediaRef)
		if err != nil {
			if !err.Retryable() {
				return retry.NewFatalError(err)
			}
			return err
		}
		media = m
		return nil
	}, func(attempt int, err error, next time.Duration) {
		metrics.IncRetryAttempt("fetcher", "fetch")
		f.logger.WarnwCtx(ctx, "Retrying media fetch",
			"attempt", attempt,
			"max_retries", f.cfg.MaxRetries,
			"next_delay", next,
			"error", err,
		)
	})

	if err != nil {
		fe := transportError(mediaRef, err)
		if ctx.Err() != nil && fe.Kind == KindTransport {
			fe = &FetchError{Kind: KindTimeout, Ref: mediaRef, Err: ctx.Err()}
		}
		metrics.ObserveFetch(string(fe.Kind), time.Since(start), 0)
		tracing.EndStage(span, fe)
		return Media{}, fe
	}

	metrics.ObserveFetch("ok", time.Since(start), len(media.Data))
	tracing.EndStage(span, nil)
	return media, nil
}

func (f *HTTPFetcher) attempt(ctx context.Context, ref string) (Media, *FetchError) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
	defer cancel()

	if isURL(ref) {
		return f.download(ctx, ref, ref, "", false)
	}

	info, fe := f.resolve(ctx, ref)
	if fe != nil {
		return Media{}, fe
	}
	if info.FileSize > f.cfg.MaxBytes {
		return Media{}, &FetchError{Kind: KindTooLarge, Ref: ref, Err: fmt.Errorf("declared size %d exceeds %d", info.FileSize, f.cfg.MaxBytes)}
	}
	if info.URL == "" {
		return Media{}, &FetchError{Kind: KindNotFound, Ref: ref, Err: fmt.Errorf("media has no download url")}
	}

	return f.download(ctx, ref, info.URL, info.MIMEType, true)
}

type mediaInfo struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

func (f *HTTPFetcher) resolve(ctx context.Context, id string) (mediaInfo, *FetchError) {
	var info mediaInfo

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.graph+"/"+url.PathEscape(id), nil)
	if err != nil {
		return info, &FetchError{Kind: KindNotFound, Ref: id, Err: err}
	}
	f.authorize(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return info, transportError(id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return info, statusError(id, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		return info, transportError(id, fmt.Errorf("decode media info: %w", err))
	}
	return info, nil
}

func (f *HTTPFetcher) download(ctx context.Context, ref, target, declaredMIME string, withToken bool) (Media, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Media{}, &FetchError{Kind: KindNotFound, Ref: ref, Err: err}
	}
	if withToken {
		f.authorize(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Media{}, transportError(ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return Media{}, statusError(ref, resp.StatusCode)
	}

	if resp.ContentLength > f.cfg.MaxBytes {
		return Media{}, &FetchError{Kind: KindTooLarge, Ref: ref, Err: fmt.Errorf("content length %d exceeds %d", resp.ContentLength, f.cfg.MaxBytes)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return Media{}, transportError(ref, fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return Media{}, &FetchError{Kind: KindTooLarge, Ref: ref, Err: fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBytes)}
	}

	mimeType := detectMIME(data, declaredMIME, resp.Header.Get("Content-Type"))
	return Media{
		Data: data,
		MIME: mimeType,
		Kind: models.MediaKindFromMIME(mimeType),
	}, nil
}

func (f *HTTPFetcher) authorize(req *http.Request) {
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
}

// detectMIME prefers the first specific type among the candidates and falls back
// to sniffing the content.
func detectMIME(data []byte, candidates ...string) string {
	for _, c := range candidates {
		mediaType, _, err := mime.ParseMediaType(c)
		if err != nil || mediaType == "" || isGeneric(mediaType) {
			continue
		}
		return mediaType
	}

	mediaType, _, _ := mime.ParseMediaType(mimetype.Detect(data).String())
	return mediaType
}

func isGeneric(mediaType string) bool {
	switch mediaType {
	case "application/octet-stream", "binary/octet-stream", "application/unknown":
		return true
	}
	return false
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
