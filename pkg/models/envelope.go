package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EnvelopeTypeInboundEvent  = "inbound_event"
	EnvelopeTypeOutboundReply = "outbound_reply"
)

// Envelope is the broker wire format for events and replies.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	TraceID   string          `json:"trace_id,omitempty"`
	Body      json.RawMessage `json:"body"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

type inboundEventWire struct {
	EventID    string              `json:"event_id"`
	SenderID   string              `json:"sender_id"`
	ReceivedAt time.Time           `json:"received_at"`
	Type       string              `json:"type"`
	Text       *TextPayload        `json:"text,omitempty"`
	Media      *MediaPayload       `json:"media,omitempty"`
	Unknown    *UnsupportedPayload `json:"unsupported,omitempty"`
}

func (e InboundEvent) MarshalJSON() ([]byte, error) {
	w := inboundEventWire{
		EventID:    e.EventID,
		SenderID:   e.SenderID,
		ReceivedAt: e.ReceivedAt,
	}
	switch p := e.Payload.(type) {
	case TextPayload:
		w.Type, w.Text = string(PayloadTypeText), &p
	case MediaPayload:
		w.Type, w.Media = string(PayloadTypeMedia), &p
	case UnsupportedPayload:
		w.Type, w.Unknown = string(PayloadTypeUnsupported), &p
	case nil:
		w.Type = string(PayloadTypeUnsupported)
	default:
		return nil, fmt.Errorf("unknown payload type %T", p)
	}
	return json.Marshal(w)
}

func (e *InboundEvent) UnmarshalJSON(data []byte) error {
	var w inboundEventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.EventID = w.EventID
	e.SenderID = w.SenderID
	e.ReceivedAt = w.ReceivedAt
	switch {
	case w.Text != nil:
		e.Payload = *w.Text
	case w.Media != nil:
		e.Payload = *w.Media
	case w.Unknown != nil:
		e.Payload = *w.Unknown
	default:
		e.Payload = UnsupportedPayload{Kind: w.Type}
	}
	return nil
}

// DecodeBody unmarshals the envelope body into v.
func (e Envelope) DecodeBody(v any) error {
	if len(e.Body) == 0 {
		return fmt.Errorf("envelope %s has empty body", e.ID)
	}
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("failed to decode %s envelope body: %w", e.Type, err)
	}
	return nil
}
