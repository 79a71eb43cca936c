package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"veritas/internal/constants"
)

// LoadConfig reads configFile (optional) and layers environment overrides on top.
// Every key can be overridden as SECTION_KEY, e.g. FETCH_MAX_BYTES.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	ApplyDefaults(viper.GetViper())
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults registers the default value of every option on v.
func ApplyDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", constants.ShutdownTimeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("whatsapp.graph_base_url", constants.DefaultGraphBaseURL)
	v.SetDefault("whatsapp.api_version", constants.DefaultGraphVersion)
	v.SetDefault("whatsapp.mark_read", false)

	v.SetDefault("webhook.path", "/webhook")
	v.SetDefault("webhook.max_body_bytes", 1<<20)

	v.SetDefault("deduplication.store", constants.StoreTypeMemory)
	v.SetDefault("deduplication.retention", constants.DefaultDedupRetention)
	v.SetDefault("deduplication.sweep_interval", constants.DefaultDedupSweepInterval)
	v.SetDefault("deduplication.on_store_error", constants.FallbackDeny)
	v.SetDefault("deduplication.hash_algorithm", "none")

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)
	v.SetDefault("database.mongodb.collection", constants.DefaultDedupCollection)
	v.SetDefault("database.run_migrations", true)

	v.SetDefault("fetch.max_bytes", constants.DefaultMaxMediaBytes)
	v.SetDefault("fetch.max_retries", constants.DefaultFetchRetries)
	v.SetDefault("fetch.attempt_timeout", constants.DefaultFetchAttemptTimeout)
	v.SetDefault("fetch.timeout", constants.DefaultFetchTimeout)
	v.SetDefault("fetch.initial_interval", "250ms")
	v.SetDefault("fetch.max_interval", "2s")

	v.SetDefault("analyzers.text.timeout", constants.DefaultTextAnalyzeTimeout)
	v.SetDefault("analyzers.text.threshold", constants.DefaultTextThreshold)
	v.SetDefault("analyzers.text.min_length", constants.DefaultMinTextLength)
	v.SetDefault("analyzers.text.max_length", constants.DefaultMaxTextLength)
	v.SetDefault("analyzers.media.timeout", constants.DefaultMediaAnalyzeTimeout)
	v.SetDefault("analyzers.media.threshold", constants.DefaultMediaThreshold)

	v.SetDefault("reply.sender", constants.SenderTypeWhatsApp)
	v.SetDefault("reply.high_confidence", constants.DefaultHighConfidence)
	v.SetDefault("reply.send_timeout", constants.DefaultSendTimeout)
	v.SetDefault("reply.commands_enabled", true)

	v.SetDefault("router.max_in_flight", 64)
	v.SetDefault("router.drain_timeout", constants.DrainTimeout)

	v.SetDefault("broker.kafka.group_id", constants.ServiceName)
	v.SetDefault("broker.kafka.input_topic", constants.DefaultInboundTopic)
	v.SetDefault("broker.kafka.output_topic", constants.DefaultReplyTopic)
	v.SetDefault("broker.kafka.retry.max_retries", 2)
	v.SetDefault("broker.kafka.retry.initial_interval", "1s")
	v.SetDefault("broker.kafka.retry.max_interval", "30s")
	v.SetDefault("broker.kafka.retry.multiplier", 2.0)

	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.max_requests", 3)
	v.SetDefault("circuit_breaker.interval", "60s")
	v.SetDefault("circuit_breaker.timeout", "30s")
	v.SetDefault("circuit_breaker.failure_ratio", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 5)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("rate_limit.cleanup_interval", "5m")
	v.SetDefault("rate_limit.max_age", "10m")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampler.type", "parentbased_always_on")
}

func bindEnvVariables() {
	viper.BindEnv("whatsapp.access_token", "WHATSAPP_ACCESS_TOKEN", "WHATSAPP_TOKEN")
	viper.BindEnv("whatsapp.phone_number_id", "WHATSAPP_PHONE_NUMBER_ID")
	viper.BindEnv("whatsapp.verify_token", "WHATSAPP_VERIFY_TOKEN")
	viper.BindEnv("whatsapp.app_secret", "WHATSAPP_APP_SECRET")

	viper.BindEnv("analyzers.text.backend.token", "ANALYZERS_TEXT_BACKEND_TOKEN", "HUGGINGFACE_API_TOKEN")
	viper.BindEnv("analyzers.media.image.token", "ANALYZERS_MEDIA_IMAGE_TOKEN", "HUGGINGFACE_API_TOKEN")
	viper.BindEnv("analyzers.media.video.token", "ANALYZERS_MEDIA_VIDEO_TOKEN", "HUGGINGFACE_API_TOKEN")
	viper.BindEnv("analyzers.media.audio.token", "ANALYZERS_MEDIA_AUDIO_TOKEN", "HUGGINGFACE_API_TOKEN")

	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	cfg.Deduplication.Store = strings.ToLower(cfg.Deduplication.Store)
	cfg.Deduplication.OnStoreError = strings.ToLower(cfg.Deduplication.OnStoreError)
	cfg.Reply.Sender = strings.ToLower(cfg.Reply.Sender)
}
