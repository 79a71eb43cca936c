package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/internal/logger"
	"veritas/pkg/models"
)

// maxBodyRunes is the Cloud API limit for a text message body.
const maxBodyRunes = 4096

type textMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             textBody        `json:"text"`
	Context          *messageContext `json:"context,omitempty"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type messageContext struct {
	MessageID string `json:"message_id"`
}

type readReceipt struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// WhatsAppSender posts replies to the Cloud API messages endpoint.
type WhatsAppSender struct {
	client   *http.Client
	endpoint string
	token    string
	logger   logger.Logger
}

func NewWhatsAppSender(cfg config.WhatsAppConfig, client *http.Client, log logger.Logger) *WhatsAppSender {
	if client == nil {
		client = &http.Client{Timeout: constants.DefaultSendTimeout}
	}
	base := strings.TrimRight(cfg.GraphBaseURL, "/")
	if base == "" {
		base = constants.DefaultGraphBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = constants.DefaultGraphVersion
	}

	return &WhatsAppSender{
		client:   client,
		endpoint: fmt.Sprintf("%s/%s/%s/messages", base, version, cfg.PhoneNumberID),
		token:    cfg.AccessToken,
		logger:   log,
	}
}

func (s *WhatsAppSender) Name() string { return constants.SenderTypeWhatsApp }

func (s *WhatsAppSender) Send(ctx context.Context, reply models.OutboundReply) error {
	msg := textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               reply.RecipientID,
		Type:             "text",
		Text:             textBody{Body: truncate(reply.Text, maxBodyRunes)},
	}
	if reply.InReplyTo != "" {
		msg.Context = &messageContext{MessageID: reply.InReplyTo}
	}
	return s.post(ctx, msg)
}

func (s *WhatsAppSender) MarkRead(ctx context.Context, messageID string) error {
	return s.post(ctx, readReceipt{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	})
}

func (s *WhatsAppSender) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &SendError{Sender: s.Name(), Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return &SendError{Sender: s.Name(), Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return &SendError{Sender: s.Name(), Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= constants.HTTPStatusOKMin && resp.StatusCode < constants.HTTPStatusOKMax {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var ge graphError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	reason := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &ge) == nil && ge.Error.Message != "" {
		reason = fmt.Sprintf("%s (code %d)", ge.Error.Message, ge.Error.Code)
	}
	return &SendError{Sender: s.Name(), Status: resp.StatusCode, Err: fmt.Errorf("graph api: %s", reason)}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
