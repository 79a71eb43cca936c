package broker

import (
	"context"

	"veritas/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, env models.Envelope) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc processes one envelope. Returning an error wrapped with
// retry.NewFatalError skips the remaining attempts and goes straight to the DLQ.
type HandlerFunc func(ctx context.Context, env models.Envelope) error
