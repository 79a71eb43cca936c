package sender

import (
	"context"

	"veritas/internal/broker"
	"veritas/internal/constants"
	"veritas/pkg/logging"
	"veritas/pkg/models"
)

// KafkaSender publishes replies as outbound_reply envelopes for a downstream
// delivery service.
type KafkaSender struct {
	producer broker.Producer
	topic    string
}

func NewKafkaSender(producer broker.Producer, topic string) *KafkaSender {
	if topic == "" {
		topic = constants.DefaultReplyTopic
	}
	return &KafkaSender{producer: producer, topic: topic}
}

func (s *KafkaSender) Name() string { return constants.SenderTypeKafka }

func (s *KafkaSender) Send(ctx context.Context, reply models.OutboundReply) error {
	env, err := models.NewEnvelopeBuilder().
		WithType(models.EnvelopeTypeOutboundReply).
		WithTraceID(logging.GetTraceID(ctx)).
		WithMetadata("recipient_id", reply.RecipientID).
		WithBody(reply).
		Build()
	if err != nil {
		return &SendError{Sender: s.Name(), Err: err}
	}

	if err := s.producer.Publish(ctx, s.topic, *env); err != nil {
		return &SendError{Sender: s.Name(), Err: err}
	}
	return nil
}
