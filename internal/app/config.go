package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageDriver выбирает слой персистентности терминала.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска кассового терминала.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую; пусто = без Kafka.
	KafkaBrokers string
	KafkaGroupID string

	// TaxRateBP — ставка налога в базисных пунктах (500 = 5%).
	TaxRateBP int64

	// SeedDemoCatalog наполняет memory-хранилище демо-каталогом.
	SeedDemoCatalog bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
}

// DefaultConfig возвращает базовые настройки терминала.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		KafkaGroupID:        "pos-terminal",
		TaxRateBP:           500,
		SeedDemoCatalog:     true,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   5,
		OutboxRetryDelay:    200 * time.Millisecond,
	}
}

// ConfigFromEnv формирует конфигурацию, позволяя переопределить любые
// настройки через переменные окружения POS_*.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("POS_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("POS_METRICS_ADDR", cfg.MetricsAddr)

	if v := envString("POS_STORAGE_DRIVER", ""); v != "" {
		cfg.StorageDriver = StorageDriver(strings.ToLower(v))
	}
	cfg.PostgresDSN = envString("POS_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("POS_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.KafkaBrokers = envString("POS_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaGroupID = envString("POS_KAFKA_GROUP_ID", cfg.KafkaGroupID)

	cfg.TaxRateBP = envInt64("POS_TAX_RATE_BP", cfg.TaxRateBP)
	cfg.SeedDemoCatalog = envBool("POS_SEED_DEMO_CATALOG", cfg.SeedDemoCatalog)

	cfg.OutboxPollInterval = envDuration("POS_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("POS_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("POS_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("POS_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	return cfg
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
