package constants

import "time"

const (
	ServiceName = "relay-service"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	DefaultSendTimeout = 15 * time.Second
)

const (
	CacheKeyPrefixDedup = "dedup:"
)

const (
	DefaultInboundTopic = "inbound_events"
	DefaultReplyTopic   = "outbound_replies"
)

const (
	DefaultMongoDBName         = "veritas"
	DefaultDedupCollection     = "dedup_records"
	DefaultDedupRetention      = 24 * time.Hour
	DefaultDedupSweepInterval  = 10 * time.Minute
	DefaultMaxMediaBytes       = 16 << 20
	DefaultFetchRetries        = 2
	DefaultFetchAttemptTimeout = 10 * time.Second
	DefaultFetchTimeout        = 30 * time.Second
	DefaultTextAnalyzeTimeout  = 10 * time.Second
	DefaultMediaAnalyzeTimeout = 30 * time.Second
	DefaultHighConfidence      = 0.8
	DefaultTextThreshold       = 0.6
	DefaultMediaThreshold      = 0.7
	DefaultMinTextLength       = 10
	DefaultMaxTextLength       = 5000
)

const (
	ShutdownTimeout = 5 * time.Second
	DrainTimeout    = 60 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	StoreTypeMemory   = "memory"
	StoreTypeRedis    = "redis"
	StoreTypePostgres = "postgres"
	StoreTypeMongoDB  = "mongodb"
)

const (
	SenderTypeWhatsApp = "whatsapp"
	SenderTypeLog      = "log"
	SenderTypeKafka    = "kafka"
)

const (
	BrokerTypeKafka = "kafka"
)

const (
	IngestTypeWebhook = "webhook"
	IngestTypeKafka   = "kafka"
)

const (
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultGraphVersion = "v21.0"
	DefaultHFBaseURL    = "https://api-inference.huggingface.co/models"
)
