package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Total number of inbound events accepted by an ingress (count)",
		},
		[]string{"source", "payload_type"},
	)

	EventsFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_filtered_total",
			Help: "Total number of inbound events dropped by ignore rules (count)",
		},
		[]string{"rule"},
	)

	DedupAdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dedup_admissions_total",
			Help: "Total number of deduplication decisions (count)",
		},
		[]string{"result"},
	)

	DedupStoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_dedup_store_duration_ms",
			Help:    "Duration of deduplication store operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"store", "operation"},
	)

	DedupSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_dedup_swept_total",
			Help: "Total number of expired deduplication records evicted (count)",
		},
	)

	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_media_fetches_total",
			Help: "Total number of media fetches by final outcome (count)",
		},
		[]string{"outcome"},
	)

	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_media_fetch_duration_ms",
			Help:    "Duration of media fetches including retries in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)

	FetchBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_media_fetch_bytes",
			Help:    "Size of fetched media in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_analyses_total",
			Help: "Total number of analyzer invocations by verdict category (count)",
		},
		[]string{"analyzer", "category"},
	)

	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_analysis_duration_ms",
			Help:    "Duration of analyzer invocations in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"analyzer"},
	)

	RepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_replies_total",
			Help: "Total number of outbound replies handed to the sender (count)",
		},
		[]string{"sender", "status"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_pipeline_duration_ms",
			Help:    "End-to-end duration of an admitted event in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"payload_type", "category"},
	)

	InFlightEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_in_flight_events",
			Help: "Number of admitted events not yet DONE (count)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "operation"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)
)

var registerOnce sync.Once

// Register adds every relay collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EventsReceivedTotal,
			EventsFilteredTotal,
			DedupAdmissionsTotal,
			DedupStoreDuration,
			DedupSweptTotal,
			FetchesTotal,
			FetchDuration,
			FetchBytes,
			AnalysesTotal,
			AnalysisDuration,
			RepliesTotal,
			PipelineDuration,
			InFlightEvents,
			RetryAttemptsTotal,
			DLQMessagesTotal,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
			FallbackUsageTotal,
			KafkaMessagesReadTotal,
			KafkaMessagesWrittenTotal,
			KafkaMessageSizeBytes,
			KafkaConsumerLag,
			KafkaWriteDuration,
		)
	})
}

func ObserveDedupStore(store, operation string, duration time.Duration) {
	DedupStoreDuration.WithLabelValues(store, operation).Observe(float64(duration.Milliseconds()))
}

func ObserveFetch(outcome string, duration time.Duration, size int) {
	FetchesTotal.WithLabelValues(outcome).Inc()
	FetchDuration.Observe(float64(duration.Milliseconds()))
	if size > 0 {
		FetchBytes.Observe(float64(size))
	}
}

func ObserveAnalysis(analyzer, category string, duration time.Duration) {
	AnalysesTotal.WithLabelValues(analyzer, category).Inc()
	AnalysisDuration.WithLabelValues(analyzer).Observe(float64(duration.Milliseconds()))
}

func ObservePipeline(payloadType, category string, duration time.Duration) {
	PipelineDuration.WithLabelValues(payloadType, category).Observe(float64(duration.Milliseconds()))
}

func IncRetryAttempt(service, operation string) {
	RetryAttemptsTotal.WithLabelValues(service, operation).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
