package sender

import (
	"context"

	"veritas/internal/constants"
	"veritas/internal/logger"
	"veritas/pkg/models"
)

// LogSender writes replies to the log instead of delivering them.
type LogSender struct {
	logger logger.Logger
}

func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Name() string { return constants.SenderTypeLog }

func (s *LogSender) Send(ctx context.Context, reply models.OutboundReply) error {
	s.logger.InfowCtx(ctx, "Reply (dry run)",
		"recipient_id", reply.RecipientID,
		"in_reply_to", reply.InReplyTo,
		"text", reply.Text,
	)
	return nil
}
