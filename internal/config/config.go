package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	WhatsApp       WhatsAppConfig       `mapstructure:"whatsapp"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Deduplication  DeduplicationConfig  `mapstructure:"deduplication"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Fetch          FetchConfig          `mapstructure:"fetch"`
	Analyzers      AnalyzersConfig      `mapstructure:"analyzers"`
	Reply          ReplyConfig          `mapstructure:"reply"`
	Router         RouterConfig         `mapstructure:"router"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Filtering      FilteringConfig      `mapstructure:"filtering"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WhatsAppConfig struct {
	AccessToken   string `mapstructure:"access_token"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	VerifyToken   string `mapstructure:"verify_token"`
	AppSecret     string `mapstructure:"app_secret"`
	GraphBaseURL  string `mapstructure:"graph_base_url"`
	APIVersion    string `mapstructure:"api_version"`
	MarkRead      bool   `mapstructure:"mark_read"`
}

type WebhookConfig struct {
	Path         string `mapstructure:"path"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type DeduplicationConfig struct {
	Store         string        `mapstructure:"store"` // memory, redis, postgres, mongodb
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	OnStoreError  string        `mapstructure:"on_store_error"` // allow, deny
	HashAlgorithm string        `mapstructure:"hash_algorithm"` // none, sha256, md5
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type FetchConfig struct {
	MaxBytes        int64         `mapstructure:"max_bytes"`
	MaxRetries      int           `mapstructure:"max_retries"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	Timeout         time.Duration `mapstructure:"timeout"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type AnalyzersConfig struct {
	Text  TextAnalyzerConfig  `mapstructure:"text"`
	Media MediaAnalyzerConfig `mapstructure:"media"`
}

type BackendConfig struct {
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Enabled bool   `mapstructure:"enabled"`
}

type TextAnalyzerConfig struct {
	Backend   BackendConfig `mapstructure:"backend"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Threshold float64       `mapstructure:"threshold"`
	MinLength int           `mapstructure:"min_length"`
	MaxLength int           `mapstructure:"max_length"`
}

type MediaAnalyzerConfig struct {
	Image     BackendConfig `mapstructure:"image"`
	Video     BackendConfig `mapstructure:"video"`
	Audio     BackendConfig `mapstructure:"audio"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Threshold float64       `mapstructure:"threshold"`
}

type ReplyConfig struct {
	Sender          string            `mapstructure:"sender"` // whatsapp, log, kafka
	HighConfidence  float64           `mapstructure:"high_confidence"`
	SendTimeout     time.Duration     `mapstructure:"send_timeout"`
	Templates       map[string]string `mapstructure:"templates"`
	CommandsEnabled bool              `mapstructure:"commands_enabled"`
}

type RouterConfig struct {
	MaxInFlight  int           `mapstructure:"max_in_flight"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"` // "" disables Kafka, "kafka"
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers     []string    `mapstructure:"brokers"`
	GroupID     string      `mapstructure:"group_id"`
	InputTopic  string      `mapstructure:"input_topic"`
	OutputTopic string      `mapstructure:"output_topic"`
	DLQTopic    string      `mapstructure:"dlq_topic"`
	Retry       RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type FilteringConfig struct {
	IgnoreRules []IgnoreRule `mapstructure:"ignore_rules"`
}

// IgnoreRule drops inbound events whose CEL expression evaluates to true.
type IgnoreRule struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
