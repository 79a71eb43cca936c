package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/pkg/models"
)

func textEvent(body string) models.InboundEvent {
	return models.InboundEvent{
		EventID:    "wamid.1",
		SenderID:   "33600000000",
		ReceivedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:    models.TextPayload{Body: body},
	}
}

func TestCompileFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{"equality", `event.sender_id == "123"`, false},
		{"string function", `event.text.startsWith("/")`, false},
		{"logic", `event.type == "media" && event.media_kind == "audio"`, false},
		{"syntax", `event.type ==`, true},
		{"undefined variable", `payload.status == "active"`, true},
		{"non-bool", `"text"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval.CompileFilter(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluateFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	media := models.InboundEvent{
		EventID:  "wamid.2",
		SenderID: "44700000000",
		Payload:  models.MediaPayload{MediaRef: "1234", DeclaredMIME: "audio/ogg"},
	}

	tests := []struct {
		name  string
		expr  string
		event models.InboundEvent
		want  bool
	}{
		{"sender match", `event.sender_id == "33600000000"`, textEvent("hello"), true},
		{"sender mismatch", `event.sender_id == "1"`, textEvent("hello"), false},
		{"text prefix", `event.text.startsWith("#skip")`, textEvent("#skip this"), true},
		{"media kind", `event.type == "media" && event.media_kind == "audio"`, media, true},
		{"text field on media is empty", `event.text == ""`, media, true},
		{"sender list", `event.sender_id in ["44700000000", "1"]`, media, true},
		{"received_at", `event.received_at < timestamp("2027-01-01T00:00:00Z")`, textEvent("x"), true},
		{"unsupported", `event.unsupported_kind == "sticker"`, models.InboundEvent{Payload: models.UnsupportedPayload{Kind: "sticker"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, err := eval.CompileFilter(tt.expr)
			require.NoError(t, err)

			got, err := eval.EvaluateFilter(context.Background(), program, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventVars_NilPayload(t *testing.T) {
	vars := EventVars(models.InboundEvent{EventID: "e"})
	assert.Equal(t, "e", vars["id"])
	assert.Equal(t, "", vars["type"])
}
