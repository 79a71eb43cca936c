package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/pkg/models"
)

type side int

const (
	sideUnknown side = iota
	sideTrue
	sideFalse
)

var labelSides = map[string]side{
	"FAKE":        sideFalse,
	"LABEL_1":     sideFalse,
	"1":           sideFalse,
	"UNRELIABLE":  sideFalse,
	"DEEPFAKE":    sideFalse,
	"ARTIFICIAL":  sideFalse,
	"MANIPULATED": sideFalse,
	"REAL":        sideTrue,
	"LABEL_0":     sideTrue,
	"0":           sideTrue,
	"RELIABLE":    sideTrue,
	"REALISM":     sideTrue,
	"AUTHENTIC":   sideTrue,
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// classify turns classifier output into a verdict. The top-scoring label decides
// the side; a score below threshold or an unknown label is UNCERTAIN.
func classify(scores []labelScore, threshold float64) models.Verdict {
	if len(scores) == 0 {
		return models.Verdict{Category: models.CategoryUncertain, Explanation: "classifier returned no prediction"}
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	top := scores[0]
	label := strings.ToUpper(strings.TrimSpace(top.Label))

	v := models.Verdict{
		Category:    models.CategoryUncertain,
		Confidence:  top.Score,
		Explanation: fmt.Sprintf("classifier label %s (score %.2f)", label, top.Score),
	}
	if top.Score < threshold {
		return v.Clamp()
	}

	switch labelSides[label] {
	case sideTrue:
		v.Category = models.CategoryLikelyTrue
	case sideFalse:
		v.Category = models.CategoryLikelyFalse
	}
	return v.Clamp()
}

// decodeScores accepts both the flat [{label,score}] shape and the nested
// [[{label,score}]] shape the inference API returns for batched pipelines.
func decodeScores(body []byte) ([]labelScore, error) {
	var flat []labelScore
	if err := json.Unmarshal(body, &flat); err == nil {
		return flat, nil
	}

	var nested [][]labelScore
	if err := json.Unmarshal(body, &nested); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	if len(nested) == 0 {
		return nil, nil
	}
	return nested[0], nil
}

type hfClient struct {
	client *http.Client
	url    string
	token  string
}

func (c hfClient) post(ctx context.Context, contentType string, body []byte) ([]labelScore, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier response: %w", err)
	}

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return nil, fmt.Errorf("classifier returned status: %d", resp.StatusCode)
	}

	return decodeScores(raw)
}

type TextBackend struct {
	api       hfClient
	threshold float64
	minLength int
	maxLength int
}

func NewTextBackend(cfg config.TextAnalyzerConfig, client *http.Client) *TextBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &TextBackend{
		api:       hfClient{client: client, url: cfg.Backend.URL, token: cfg.Backend.Token},
		threshold: cfg.Threshold,
		minLength: cfg.MinLength,
		maxLength: cfg.MaxLength,
	}
}

func (b *TextBackend) Analyze(ctx context.Context, in Input) (models.Verdict, error) {
	text := strings.TrimSpace(in.Text)
	if utf8.RuneCountInString(text) < b.minLength {
		return models.Verdict{
			Category:    models.CategoryUncertain,
			Explanation: "text too short to analyze",
		}, nil
	}
	text = truncateRunes(text, b.maxLength)

	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return models.Verdict{}, err
	}

	scores, err := b.api.post(ctx, "application/json", body)
	if err != nil {
		return models.Verdict{}, err
	}
	return classify(scores, b.threshold), nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// MediaBackend posts the raw attachment bytes to an image/video/audio classifier.
type MediaBackend struct {
	api       hfClient
	threshold float64
}

func NewMediaBackend(cfg config.BackendConfig, threshold float64, client *http.Client) *MediaBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &MediaBackend{
		api:       hfClient{client: client, url: cfg.URL, token: cfg.Token},
		threshold: threshold,
	}
}

func (b *MediaBackend) Analyze(ctx context.Context, in Input) (models.Verdict, error) {
	if len(in.Media) == 0 {
		return models.FailedVerdict("empty input"), nil
	}

	contentType := in.MIME
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	scores, err := b.api.post(ctx, contentType, in.Media)
	if err != nil {
		return models.Verdict{}, err
	}
	return classify(scores, b.threshold), nil
}

// MediaRouter dispatches to the backend registered for the input's media kind.
type MediaRouter struct {
	backends map[models.MediaKind]Backend
}

func NewMediaRouter() *MediaRouter {
	return &MediaRouter{backends: make(map[models.MediaKind]Backend)}
}

func (r *MediaRouter) Register(kind models.MediaKind, backend Backend) *MediaRouter {
	r.backends[kind] = backend
	return r
}

func (r *MediaRouter) Kinds() []models.MediaKind {
	kinds := make([]models.MediaKind, 0, len(r.backends))
	for k := range r.backends {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (r *MediaRouter) Analyze(ctx context.Context, in Input) (models.Verdict, error) {
	backend, ok := r.backends[in.Kind]
	if !ok {
		return models.FailedVerdict(fmt.Sprintf("no analyzer for %s", in.Kind)), nil
	}
	return backend.Analyze(ctx, in)
}
