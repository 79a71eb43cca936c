package reply

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"text/template"

	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/pkg/models"
)

type templateData struct {
	Category    string
	Confidence  float64
	Percent     int
	Explanation string
}

// Formatter renders verdicts and command answers into reply text.
type Formatter struct {
	high      float64
	templates map[string]*template.Template
	defaults  map[string]*template.Template
}

// NewFormatter parses the built-in templates and the reply.templates overrides.
// An override for an unknown key or one that fails to parse is an error.
func NewFormatter(cfg config.ReplyConfig) (*Formatter, error) {
	high := cfg.HighConfidence
	if high <= 0 || high > 1 {
		high = constants.DefaultHighConfidence
	}

	f := &Formatter{
		high:      high,
		templates: make(map[string]*template.Template, len(defaultTemplates)),
		defaults:  make(map[string]*template.Template, len(defaultTemplates)),
	}

	for key, text := range defaultTemplates {
		tmpl, err := template.New(key).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse default template %s: %w", key, err)
		}
		f.defaults[key] = tmpl
		f.templates[key] = tmpl
	}

	for key, text := range cfg.Templates {
		key = strings.ToLower(strings.TrimSpace(key))
		if _, ok := defaultTemplates[key]; !ok {
			return nil, fmt.Errorf("unknown reply template %q", key)
		}
		tmpl, err := template.New(key).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse reply template %s: %w", key, err)
		}
		f.templates[key] = tmpl
	}

	return f, nil
}

// TemplateKey selects the template for v. Confidence at or above the high band
// picks the *_high variant for LIKELY_TRUE and LIKELY_FALSE.
func (f *Formatter) TemplateKey(v models.Verdict) string {
	high := v.Confidence >= f.high
	switch v.Category {
	case models.CategoryLikelyTrue:
		if high {
			return KeyLikelyTrueHigh
		}
		return KeyLikelyTrueModerate
	case models.CategoryLikelyFalse:
		if high {
			return KeyLikelyFalseHigh
		}
		return KeyLikelyFalseModerate
	case models.CategoryUncertain:
		return KeyUncertain
	default:
		return KeyAnalysisFailed
	}
}

// Format never returns an empty string.
func (f *Formatter) Format(v models.Verdict) string {
	v = v.Clamp()
	data := templateData{
		Category:    string(v.Category),
		Confidence:  v.Confidence,
		Percent:     int(math.Round(v.Confidence * 100)),
		Explanation: v.Explanation,
	}
	return f.render(f.TemplateKey(v), data)
}

// Command renders the answer to one of the built-in commands.
func (f *Formatter) Command(cmd Command) string {
	return f.render(string(cmd), templateData{})
}

func (f *Formatter) render(key string, data templateData) string {
	for _, tmpl := range []*template.Template{f.templates[key], f.defaults[key]} {
		if tmpl == nil {
			continue
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			continue
		}
		if text := strings.TrimSpace(buf.String()); text != "" {
			return text
		}
	}
	return FallbackText
}
