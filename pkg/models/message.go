package models

import (
	"strings"
	"time"
)

// InboundEvent is one message notification delivered by the messaging platform.
// It is immutable once received.
type InboundEvent struct {
	EventID    string    `json:"event_id"`
	SenderID   string    `json:"sender_id"`
	ReceivedAt time.Time `json:"received_at"`
	Payload    Payload   `json:"-"`
}

type PayloadType string

const (
	PayloadTypeText        PayloadType = "text"
	PayloadTypeMedia       PayloadType = "media"
	PayloadTypeUnsupported PayloadType = "unsupported"
)

// Payload is implemented by TextPayload, MediaPayload and UnsupportedPayload only.
type Payload interface {
	Type() PayloadType
	isPayload()
}

type TextPayload struct {
	Body string `json:"body"`
}

func (TextPayload) Type() PayloadType { return PayloadTypeText }
func (TextPayload) isPayload()        {}

// MediaPayload references an attachment by platform media id or URL.
type MediaPayload struct {
	MediaRef     string `json:"media_ref"`
	DeclaredMIME string `json:"declared_mime"`
}

func (MediaPayload) Type() PayloadType { return PayloadTypeMedia }
func (MediaPayload) isPayload()        {}

// UnsupportedPayload carries the platform message type the webhook could not map.
type UnsupportedPayload struct {
	Kind string `json:"kind"`
}

func (UnsupportedPayload) Type() PayloadType { return PayloadTypeUnsupported }
func (UnsupportedPayload) isPayload()        {}

type MediaKind string

const (
	MediaKindImage   MediaKind = "image"
	MediaKindVideo   MediaKind = "video"
	MediaKindAudio   MediaKind = "audio"
	MediaKindUnknown MediaKind = "unknown"
)

// MediaKindFromMIME maps a MIME type to the media kind the analyzers understand.
func MediaKindFromMIME(mime string) MediaKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaKindImage
	case strings.HasPrefix(mime, "video/"):
		return MediaKindVideo
	case strings.HasPrefix(mime, "audio/"):
		return MediaKindAudio
	default:
		return MediaKindUnknown
	}
}

// OutboundReply is handed to the sender; the pipeline does not retain it afterwards.
type OutboundReply struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
	InReplyTo   string `json:"in_reply_to,omitempty"`
}
