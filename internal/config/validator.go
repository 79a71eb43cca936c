package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"veritas/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks the loaded configuration and returns every problem found,
// joined. Each element is a *ValidationError.
func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func(*Config) error{
		validateServer,
		validateLogging,
		validateWebhook,
		validateDeduplication,
		validateFetch,
		validateAnalyzers,
		validateReply,
		validateRouter,
		validateBroker,
		validateFiltering,
		validateRateLimit,
	}
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return invalid(field, "port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validatePositive(field string, d time.Duration) error {
	if d <= 0 {
		return invalid(field, "must be positive, got %s", d)
	}
	return nil
}

func validateServer(cfg *Config) error {
	if err := validatePort("server.port", cfg.Server.Port); err != nil {
		return err
	}
	if err := validatePositive("server.read_timeout", cfg.Server.ReadTimeout); err != nil {
		return err
	}
	return validatePositive("server.write_timeout", cfg.Server.WriteTimeout)
}

func validateLogging(cfg *Config) error {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", "invalid level: %s (valid: debug, info, warn, error)", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "", "json", "console":
		return nil
	default:
		return invalid("logging.format", "invalid format: %s (valid: json, console)", cfg.Logging.Format)
	}
}

func validateWebhook(cfg *Config) error {
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return invalid("webhook.path", "path must start with '/', got %q", cfg.Webhook.Path)
	}
	if cfg.Webhook.MaxBodyBytes <= 0 {
		return invalid("webhook.max_body_bytes", "must be positive")
	}
	return nil
}

func validateDeduplication(cfg *Config) error {
	d := cfg.Deduplication

	if err := validatePositive("deduplication.retention", d.Retention); err != nil {
		return err
	}
	if err := validatePositive("deduplication.sweep_interval", d.SweepInterval); err != nil {
		return err
	}

	switch strings.ToLower(d.OnStoreError) {
	case constants.FallbackAllow, constants.FallbackDeny:
	default:
		return invalid("deduplication.on_store_error", "invalid value: %s (valid: allow, deny)", d.OnStoreError)
	}

	switch strings.ToLower(d.HashAlgorithm) {
	case "", "none", "sha256", "md5":
	default:
		return invalid("deduplication.hash_algorithm", "invalid hash algorithm: %s (valid: none, sha256, md5)", d.HashAlgorithm)
	}

	switch d.Store {
	case constants.StoreTypeMemory:
		return nil
	case constants.StoreTypeRedis:
		return validateRedis(cfg.Database.Redis)
	case constants.StoreTypePostgres:
		return validatePostgres(cfg.Database.Postgres)
	case constants.StoreTypeMongoDB:
		return validateMongoDB(cfg.Database.MongoDB)
	default:
		return invalid("deduplication.store", "unknown store: %s (supported: memory, redis, postgres, mongodb)", d.Store)
	}
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return invalid("database.postgres.host", "PostgreSQL host is required")
	}
	if err := validatePort("database.postgres.port", cfg.Port); err != nil {
		return err
	}
	if cfg.User == "" {
		return invalid("database.postgres.user", "PostgreSQL user is required")
	}
	if cfg.DBName == "" {
		return invalid("database.postgres.dbname", "PostgreSQL database name is required")
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return invalid("database.postgres.sslmode", "invalid SSL mode: %s", cfg.SSLMode)
	}
	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return invalid("database.redis.host", "Redis host is required")
	}
	return validatePort("database.redis.port", cfg.Port)
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return invalid("database.mongodb.uri", "MongoDB URI must start with mongodb:// or mongodb+srv://")
	}
	if cfg.Database == "" {
		return invalid("database.mongodb.database", "MongoDB database name is required")
	}
	if cfg.Collection == "" {
		return invalid("database.mongodb.collection", "MongoDB collection name is required")
	}
	return nil
}

func validateFetch(cfg *Config) error {
	f := cfg.Fetch
	if f.MaxBytes <= 0 {
		return invalid("fetch.max_bytes", "must be positive, got %d", f.MaxBytes)
	}
	if f.MaxRetries < 0 {
		return invalid("fetch.max_retries", "must be non-negative, got %d", f.MaxRetries)
	}
	if err := validatePositive("fetch.attempt_timeout", f.AttemptTimeout); err != nil {
		return err
	}
	if err := validatePositive("fetch.timeout", f.Timeout); err != nil {
		return err
	}
	if f.Timeout < f.AttemptTimeout {
		return invalid("fetch.timeout", "total timeout %s is shorter than attempt timeout %s", f.Timeout, f.AttemptTimeout)
	}
	if f.MaxInterval > 0 && f.InitialInterval > f.MaxInterval {
		return invalid("fetch.max_interval", "must be greater than or equal to initial_interval")
	}
	return nil
}

func validateThreshold(field string, v float64) error {
	if v <= 0 || v > 1 {
		return invalid(field, "must be in (0, 1], got %v", v)
	}
	return nil
}

func validateAnalyzers(cfg *Config) error {
	t := cfg.Analyzers.Text
	if err := validatePositive("analyzers.text.timeout", t.Timeout); err != nil {
		return err
	}
	if err := validateThreshold("analyzers.text.threshold", t.Threshold); err != nil {
		return err
	}
	if t.MinLength < 0 {
		return invalid("analyzers.text.min_length", "must be non-negative")
	}
	if t.MaxLength > 0 && t.MaxLength < t.MinLength {
		return invalid("analyzers.text.max_length", "must be greater than or equal to min_length")
	}
	if t.Backend.Enabled && t.Backend.URL == "" {
		return invalid("analyzers.text.backend.url", "url is required when the backend is enabled")
	}

	m := cfg.Analyzers.Media
	if err := validatePositive("analyzers.media.timeout", m.Timeout); err != nil {
		return err
	}
	if err := validateThreshold("analyzers.media.threshold", m.Threshold); err != nil {
		return err
	}
	for kind, b := range map[string]BackendConfig{"image": m.Image, "video": m.Video, "audio": m.Audio} {
		if b.Enabled && b.URL == "" {
			return invalid("analyzers.media."+kind+".url", "url is required when the backend is enabled")
		}
	}
	return nil
}

func validateReply(cfg *Config) error {
	r := cfg.Reply
	if err := validateThreshold("reply.high_confidence", r.HighConfidence); err != nil {
		return err
	}
	if err := validatePositive("reply.send_timeout", r.SendTimeout); err != nil {
		return err
	}

	switch r.Sender {
	case constants.SenderTypeLog:
		return nil
	case constants.SenderTypeWhatsApp:
		if cfg.WhatsApp.AccessToken == "" {
			return invalid("whatsapp.access_token", "access token is required for the whatsapp sender")
		}
		if cfg.WhatsApp.PhoneNumberID == "" {
			return invalid("whatsapp.phone_number_id", "phone number id is required for the whatsapp sender")
		}
		return nil
	case constants.SenderTypeKafka:
		if cfg.Broker.Type != constants.BrokerTypeKafka {
			return invalid("reply.sender", "kafka sender requires broker.type=kafka")
		}
		return nil
	default:
		return invalid("reply.sender", "unknown sender: %s (supported: whatsapp, log, kafka)", r.Sender)
	}
}

func validateRouter(cfg *Config) error {
	if cfg.Router.MaxInFlight <= 0 {
		return invalid("router.max_in_flight", "must be positive, got %d", cfg.Router.MaxInFlight)
	}
	return validatePositive("router.drain_timeout", cfg.Router.DrainTimeout)
}

func validateBroker(cfg *Config) error {
	switch cfg.Broker.Type {
	case "":
		return nil
	case constants.BrokerTypeKafka:
		return validateKafka(cfg.Broker.Kafka)
	default:
		return invalid("broker.type", "unknown broker type: %s (supported: kafka)", cfg.Broker.Type)
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return invalid("broker.kafka.brokers", "at least one Kafka broker is required")
	}
	for i, broker := range cfg.Brokers {
		if broker == "" {
			return invalid(fmt.Sprintf("broker.kafka.brokers[%d]", i), "broker address cannot be empty")
		}
	}
	if cfg.GroupID == "" {
		return invalid("broker.kafka.group_id", "Kafka consumer group ID is required")
	}
	if cfg.Retry.MaxRetries < 0 {
		return invalid("broker.kafka.retry.max_retries", "max_retries must be non-negative")
	}
	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > cfg.Retry.MaxInterval {
		return invalid("broker.kafka.retry.max_interval", "max_interval must be greater than or equal to initial_interval")
	}
	if cfg.Retry.Multiplier <= 0 {
		return invalid("broker.kafka.retry.multiplier", "multiplier must be positive")
	}
	return nil
}

func validateFiltering(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Filtering.IgnoreRules))
	for i, rule := range cfg.Filtering.IgnoreRules {
		field := fmt.Sprintf("filtering.ignore_rules[%d]", i)
		if rule.Name == "" {
			return invalid(field+".name", "rule name is required")
		}
		if seen[rule.Name] {
			return invalid(field+".name", "duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = true
		if strings.TrimSpace(rule.Expression) == "" {
			return invalid(field+".expression", "expression is required")
		}
	}
	return nil
}

func validateRateLimit(cfg *Config) error {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if cfg.RateLimit.RPS <= 0 {
		return invalid("rate_limit.rps", "must be positive")
	}
	if cfg.RateLimit.Burst <= 0 {
		return invalid("rate_limit.burst", "must be positive")
	}
	return nil
}
