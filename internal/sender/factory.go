package sender

import (
	"fmt"
	"net/http"

	"veritas/internal/broker"
	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/internal/logger"
)

// New builds the sender named by reply.sender. producer is only used for the
// kafka sender and may be nil otherwise.
func New(cfg *config.Config, producer broker.Producer, client *http.Client, log logger.Logger) (Sender, error) {
	switch cfg.Reply.Sender {
	case constants.SenderTypeWhatsApp, "":
		return NewWhatsAppSender(cfg.WhatsApp, client, log), nil
	case constants.SenderTypeLog:
		return NewLogSender(log), nil
	case constants.SenderTypeKafka:
		if producer == nil {
			return nil, fmt.Errorf("kafka sender requires a broker producer")
		}
		return NewKafkaSender(producer, cfg.Broker.Kafka.OutputTopic), nil
	default:
		return nil, fmt.Errorf("unknown reply sender: %q", cfg.Reply.Sender)
	}
}
