package webhook

import (
	"strconv"
	"time"

	"veritas/pkg/models"
)

// Notification is the body Meta posts to the webhook.
type Notification struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

type Message struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	Timestamp string      `json:"timestamp"`
	Type      string      `json:"type"`
	Text      *TextBody   `json:"text,omitempty"`
	Image     *MediaBlock `json:"image,omitempty"`
	Video     *MediaBlock `json:"video,omitempty"`
	Audio     *MediaBlock `json:"audio,omitempty"`
	Document  *MediaBlock `json:"document,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type MediaBlock struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Link     string `json:"link,omitempty"`
}

type Status struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	RecipientID string        `json:"recipient_id"`
	Timestamp   string        `json:"timestamp"`
	Errors      []StatusError `json:"errors,omitempty"`
}

type StatusError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Events flattens every message of the notification into inbound events.
func (n Notification) Events(now time.Time) []models.InboundEvent {
	var events []models.InboundEvent
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				events = append(events, msg.Event(now))
			}
		}
	}
	return events
}

func (n Notification) Statuses() []Status {
	var statuses []Status
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			statuses = append(statuses, change.Value.Statuses...)
		}
	}
	return statuses
}

// Event maps a platform message onto the closed payload set. Types other than
// text, image, video, audio and document become UnsupportedPayload.
func (m Message) Event(now time.Time) models.InboundEvent {
	ev := models.InboundEvent{
		EventID:    m.ID,
		SenderID:   m.From,
		ReceivedAt: parseTimestamp(m.Timestamp, now),
	}

	var media *MediaBlock
	switch m.Type {
	case "text":
		if m.Text != nil {
			ev.Payload = models.TextPayload{Body: m.Text.Body}
			return ev
		}
		ev.Payload = models.TextPayload{}
		return ev
	case "image":
		media = m.Image
	case "video":
		media = m.Video
	case "audio":
		media = m.Audio
	case "document":
		media = m.Document
	}

	if media == nil {
		ev.Payload = models.UnsupportedPayload{Kind: m.Type}
		return ev
	}

	ref := media.ID
	if ref == "" {
		ref = media.Link
	}
	ev.Payload = models.MediaPayload{MediaRef: ref, DeclaredMIME: media.MIMEType}
	return ev
}

func parseTimestamp(raw string, fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Unix(secs, 0).UTC()
}
