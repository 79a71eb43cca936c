package sender

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/config"
	"veritas/internal/logger"
	"veritas/pkg/models"
)

func newWhatsAppSender(t *testing.T, handler http.HandlerFunc) *WhatsAppSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWhatsAppSender(config.WhatsAppConfig{
		AccessToken:   "token",
		PhoneNumberID: "1055",
		GraphBaseURL:  srv.URL,
		APIVersion:    "v21.0",
	}, srv.Client(), logger.NopLogger())
}

func TestWhatsAppSender_Send(t *testing.T) {
	s := newWhatsAppSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/1055/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var msg textMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "whatsapp", msg.MessagingProduct)
		assert.Equal(t, "33600000000", msg.To)
		assert.Equal(t, "text", msg.Type)
		assert.Equal(t, "verdict", msg.Text.Body)
		require.NotNil(t, msg.Context)
		assert.Equal(t, "wamid.1", msg.Context.MessageID)

		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	})

	err := s.Send(context.Background(), models.OutboundReply{RecipientID: "33600000000", Text: "verdict", InReplyTo: "wamid.1"})
	require.NoError(t, err)
}

func TestWhatsAppSender_GraphError(t *testing.T) {
	s := newWhatsAppSender(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Recipient phone number not in allowed list","type":"OAuthException","code":131030}}`))
	})

	err := s.Send(context.Background(), models.OutboundReply{RecipientID: "1", Text: "x"})
	var se *SendError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "whatsapp", se.Sender)
	assert.Contains(t, se.Error(), "131030")
}

func TestWhatsAppSender_TransportError(t *testing.T) {
	s := NewWhatsAppSender(config.WhatsAppConfig{GraphBaseURL: "http://127.0.0.1:1"}, nil, logger.NopLogger())
	err := s.Send(context.Background(), models.OutboundReply{RecipientID: "1", Text: "x"})
	var se *SendError
	require.True(t, errors.As(err, &se))
	assert.Zero(t, se.Status)
}

func TestWhatsAppSender_MarkRead(t *testing.T) {
	s := newWhatsAppSender(t, func(w http.ResponseWriter, r *http.Request) {
		var receipt readReceipt
		require.NoError(t, json.NewDecoder(r.Body).Decode(&receipt))
		assert.Equal(t, readReceipt{MessagingProduct: "whatsapp", Status: "read", MessageID: "wamid.9"}, receipt)
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	var marker ReadMarker = s
	require.NoError(t, marker.MarkRead(context.Background(), "wamid.9"))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("ü", maxBodyRunes+10)
	out := truncate(long, maxBodyRunes)
	assert.Equal(t, maxBodyRunes, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.Equal(t, "short", truncate("short", maxBodyRunes))
}

type recordingProducer struct {
	topic string
	env   models.Envelope
	err   error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, env models.Envelope) error {
	p.topic, p.env = topic, env
	return p.err
}

func (p *recordingProducer) Close() error { return nil }

func TestKafkaSender_PublishesReplyEnvelope(t *testing.T) {
	p := &recordingProducer{}
	s := NewKafkaSender(p, "replies")

	reply := models.OutboundReply{RecipientID: "42", Text: "hello", InReplyTo: "wamid.2"}
	require.NoError(t, s.Send(context.Background(), reply))

	assert.Equal(t, "replies", p.topic)
	assert.Equal(t, models.EnvelopeTypeOutboundReply, p.env.Type)
	assert.NotEmpty(t, p.env.ID)

	var decoded models.OutboundReply
	require.NoError(t, p.env.DecodeBody(&decoded))
	assert.Equal(t, reply, decoded)
}

func TestKafkaSender_PublishFailure(t *testing.T) {
	s := NewKafkaSender(&recordingProducer{err: errors.New("no leader")}, "")
	err := s.Send(context.Background(), models.OutboundReply{RecipientID: "42", Text: "x"})
	var se *SendError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "kafka", se.Sender)
}

func TestNew(t *testing.T) {
	tests := []struct {
		sender   string
		producer bool
		want     string
		wantErr  bool
	}{
		{sender: "whatsapp", want: "whatsapp"},
		{sender: "log", want: "log"},
		{sender: "kafka", producer: true, want: "kafka"},
		{sender: "kafka", wantErr: true},
		{sender: "sms", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			cfg := &config.Config{Reply: config.ReplyConfig{Sender: tt.sender}}
			var p *recordingProducer
			if tt.producer {
				p = &recordingProducer{}
			}

			var s Sender
			var err error
			if p != nil {
				s, err = New(cfg, p, nil, logger.NopLogger())
			} else {
				s, err = New(cfg, nil, nil, logger.NopLogger())
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Name())
		})
	}
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(logger.NopLogger())
	assert.NoError(t, s.Send(context.Background(), models.OutboundReply{RecipientID: "1", Text: "x"}))
	assert.Equal(t, "log", s.Name())
}
