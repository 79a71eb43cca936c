package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EnvelopeBuilder struct {
	envelope *Envelope
	body     any
}

func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{
		envelope: &Envelope{
			Metadata: make(map[string]any),
		},
	}
}

func (b *EnvelopeBuilder) WithID(id string) *EnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *EnvelopeBuilder) WithType(envelopeType string) *EnvelopeBuilder {
	b.envelope.Type = envelopeType
	return b
}

func (b *EnvelopeBuilder) WithTraceID(traceID string) *EnvelopeBuilder {
	b.envelope.TraceID = traceID
	return b
}

func (b *EnvelopeBuilder) WithBody(body any) *EnvelopeBuilder {
	b.body = body
	return b
}

func (b *EnvelopeBuilder) WithMetadata(key string, value any) *EnvelopeBuilder {
	b.envelope.Metadata[key] = value
	return b
}

func (b *EnvelopeBuilder) Build() (*Envelope, error) {
	if b.envelope.ID == "" {
		b.envelope.ID = uuid.NewString()
	}
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now()
	}
	if b.envelope.Type == "" {
		return nil, fmt.Errorf("envelope type is required")
	}
	raw, err := json.Marshal(b.body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope body: %w", err)
	}
	b.envelope.Body = raw
	return b.envelope, nil
}
