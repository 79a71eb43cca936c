package broker

import (
	"errors"
	"fmt"

	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/internal/logger"
)

// ErrBrokerDisabled is returned when broker.type is empty.
var ErrBrokerDisabled = errors.New("message broker is disabled")

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case constants.BrokerTypeKafka:
		return NewKafkaProducer(cfg.Kafka, log), nil
	case "":
		return nil, ErrBrokerDisabled
	default:
		return nil, fmt.Errorf("unknown broker type: %q", cfg.Type)
	}
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case constants.BrokerTypeKafka:
		return NewKafkaConsumer(cfg.Kafka, log), nil
	case "":
		return nil, ErrBrokerDisabled
	default:
		return nil, fmt.Errorf("unknown broker type: %q", cfg.Type)
	}
}
