package app

import (
	"os"
	"strconv"
	"time"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую; пустой отключает Kafka.
	KafkaBrokers string
	// KafkaConsumerGroup — имя consumer group для аудита платёжных событий.
	KafkaConsumerGroup string

	// GatewayBaseURL пустой — платежи идут через встроенный sandbox-провайдер.
	GatewayBaseURL    string
	GatewayPrivateKey string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	PollerInterval    time.Duration
	PollerBatchSize   int
	PollerParallelism int

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// SeedDemoData наполняет memory-хранилище демо-данными при старте.
	SeedDemoData bool
}

// DefaultConfig возвращает значения по умолчанию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaConsumerGroup: "checkout-payments",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    50,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		PollerInterval:    30 * time.Second,
		PollerBatchSize:   50,
		PollerParallelism: 4,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		SeedDemoData: true,
	}
}

// ConfigFromEnv собирает конфигурацию из переменных окружения CHECKOUT_*
// поверх значений по умолчанию.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("CHECKOUT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("CHECKOUT_METRICS_ADDR", cfg.MetricsAddr)

	cfg.StorageDriver = StorageDriver(envString("CHECKOUT_STORAGE_DRIVER", string(cfg.StorageDriver)))
	cfg.PostgresDSN = envString("CHECKOUT_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("CHECKOUT_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.KafkaBrokers = envString("CHECKOUT_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envString("CHECKOUT_KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)

	cfg.GatewayBaseURL = envString("CHECKOUT_GATEWAY_BASE_URL", cfg.GatewayBaseURL)
	cfg.GatewayPrivateKey = envString("CHECKOUT_GATEWAY_PRIVATE_KEY", cfg.GatewayPrivateKey)

	cfg.OutboxPollInterval = envDuration("CHECKOUT_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("CHECKOUT_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("CHECKOUT_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("CHECKOUT_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	cfg.PollerInterval = envDuration("CHECKOUT_POLLER_INTERVAL", cfg.PollerInterval)
	cfg.PollerBatchSize = envInt("CHECKOUT_POLLER_BATCH_SIZE", cfg.PollerBatchSize)
	cfg.PollerParallelism = envInt("CHECKOUT_POLLER_PARALLELISM", cfg.PollerParallelism)

	cfg.IdempotencyTTL = envDuration("CHECKOUT_IDEMPOTENCY_TTL", cfg.IdempotencyTTL)
	cfg.IdempotencyCleanupInterval = envDuration("CHECKOUT_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval)
	cfg.IdempotencyCleanupBatchSize = envInt("CHECKOUT_IDEMPOTENCY_CLEANUP_BATCH_SIZE", cfg.IdempotencyCleanupBatchSize)

	cfg.SeedDemoData = envBool("CHECKOUT_SEED_DEMO_DATA", cfg.SeedDemoData)

	return cfg
}

func envString(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
