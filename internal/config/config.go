// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// CatalogPath points at the YAML crop catalog loaded at startup.
	CatalogPath string
	// ModelPath is where trained bundles are persisted and loaded from.
	ModelPath string

	// Kafka configuration. KafkaEnabled gates both the training-sample
	// reader and the assessment writer.
	KafkaEnabled          bool
	KafkaBrokers          []string
	KafkaSamplesTopic     string
	KafkaAssessmentsTopic string
	KafkaGroupID          string

	// TrainSchedule is a cron expression for periodic retraining; empty
	// disables the schedule.
	TrainSchedule   string
	TrainMinSamples int
	TrainBatchSize  int
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	trainMinSamples, err := parsePositiveInt("TRAIN_MIN_SAMPLES", 100)
	if err != nil {
		return nil, err
	}
	trainBatchSize, err := parsePositiveInt("TRAIN_BATCH_SIZE", 500)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CatalogPath: envOrDefault("CATALOG_PATH", "configs/crops.yaml"),
		ModelPath:   envOrDefault("MODEL_PATH", "models/bundle.json"),

		KafkaEnabled:          os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:          parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSamplesTopic:     envOrDefault("KAFKA_SAMPLES_TOPIC", "crop-training-samples"),
		KafkaAssessmentsTopic: envOrDefault("KAFKA_ASSESSMENTS_TOPIC", "crop-risk-assessments"),
		KafkaGroupID:          envOrDefault("KAFKA_GROUP_ID", "crop-risk-service"),

		TrainSchedule:   os.Getenv("TRAIN_SCHEDULE"),
		TrainMinSamples: trainMinSamples,
		TrainBatchSize:  trainBatchSize,
	}

	if cfg.CatalogPath == "" {
		return nil, errors.New("CATALOG_PATH is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaSamplesTopic == "" {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_SAMPLES_TOPIC is empty")
		}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}
