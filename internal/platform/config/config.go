package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	LedgerRPCURL     string
	LedgerContract   string
	LedgerPrivateKey string
	LedgerChainID    int64
	LedgerTimeout    time.Duration

	FinalizeMaxRetries    int
	FinalizeRetrySchedule []time.Duration
	SchedulerPollInterval time.Duration
	SchedulerBatchSize    int

	EnableClaimConsumer bool
	EnableFinalizerJob  bool
	EnableOutboxRelay   bool
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "merkledrop"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: brokers,

		LedgerRPCURL:     os.Getenv("LEDGER_RPC_URL"),
		LedgerContract:   os.Getenv("LEDGER_CONTRACT"),
		LedgerPrivateKey: os.Getenv("LEDGER_PRIVATE_KEY"),
		LedgerChainID:    envInt64("LEDGER_CHAIN_ID", 1),
		LedgerTimeout:    envDuration("LEDGER_CALL_TIMEOUT", 2*time.Minute),

		FinalizeMaxRetries:    envInt("FINALIZE_MAX_RETRIES", 3),
		FinalizeRetrySchedule: envDurations("FINALIZE_RETRY_SCHEDULE", []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour}),
		SchedulerPollInterval: envDuration("SCHEDULER_POLL_INTERVAL", time.Minute),
		SchedulerBatchSize:    envInt("SCHEDULER_BATCH_SIZE", 100),

		EnableClaimConsumer: envBool("ENABLE_CLAIM_CONSUMER", true),
		EnableFinalizerJob:  envBool("ENABLE_FINALIZER_JOB", true),
		EnableOutboxRelay:   envBool("ENABLE_OUTBOX_RELAY", true),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envInt64(name string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

// envDurations parses a comma-separated list like "1h,2h,3h".
func envDurations(name string, fallback []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	var values []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := time.ParseDuration(part)
		if err != nil {
			return fallback
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
