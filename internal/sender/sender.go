package sender

import (
	"context"
	"fmt"

	"veritas/pkg/models"
)

type Sender interface {
	Send(ctx context.Context, reply models.OutboundReply) error
	Name() string
}

// ReadMarker is implemented by senders that can acknowledge the inbound message.
type ReadMarker interface {
	MarkRead(ctx context.Context, messageID string) error
}

// SendError reports a reply that did not reach the platform. Callers log it and
// move on; replies are never retried.
type SendError struct {
	Sender string
	Status int
	Err    error
}

func (e *SendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s sender: status %d: %v", e.Sender, e.Status, e.Err)
	}
	return fmt.Sprintf("%s sender: %v", e.Sender, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
