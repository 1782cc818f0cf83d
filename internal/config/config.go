package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/internal/fusion"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	ExtractionTimeout  time.Duration
	MaxRequestBodySize int64
	MaxImagePixels     int

	// OCR
	OCRLanguage    string
	OCRCallTimeout time.Duration
	OCRMaxWorkers  int
	EnabledEngines []models.EngineID
	EngineWeights  fusion.EngineWeights

	// Result filtering and validation
	ConfidenceThreshold float64
	MinValidationScore  float64
	KnownFleetIDs       []string

	// Result store; empty RedisURL keeps results in memory
	RedisURL  string
	ResultTTL time.Duration

	// Schedule store; empty DatabaseURL disables persistence
	DatabaseURL      string
	PersistenceTable string

	// Azure blob source; empty account disables it
	AzureStorageAccount string
	AzureStorageKey     string

	// Background extraction queue (uses RedisURL)
	QueueName         string
	WorkerConcurrency int
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// QueueEnabled reports whether asynchronous extractions are available.
func (c *Config) QueueEnabled() bool {
	return c.RedisURL != "" && c.QueueName != ""
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 90*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		ExtractionTimeout:  parseDurationOrDefault("EXTRACTION_TIMEOUT", 60*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 20*1024*1024), // 20MB
		MaxImagePixels:     int(parseIntOrDefault("MAX_IMAGE_PIXELS", 40_000_000)),

		OCRLanguage:    getEnvOrDefault("OCR_LANGUAGE", "por"),
		OCRCallTimeout: parseDurationOrDefault("OCR_CALL_TIMEOUT", 10*time.Second),
		OCRMaxWorkers:  int(parseIntOrDefault("OCR_MAX_WORKERS", 4)),

		ConfidenceThreshold: parseFloatOrDefault("CONFIDENCE_THRESHOLD", 60),
		MinValidationScore:  parseFloatOrDefault("MIN_VALIDATION_SCORE", 0),
		KnownFleetIDs:       parseListOrDefault("KNOWN_FLEET_IDS", nil),

		RedisURL:  strings.TrimSpace(os.Getenv("REDIS_URL")),
		ResultTTL: parseDurationOrDefault("RESULT_TTL", 24*time.Hour),

		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		PersistenceTable: getEnvOrDefault("PERSISTENCE_TABLE", "preventivas"),

		AzureStorageAccount: strings.TrimSpace(os.Getenv("AZURE_STORAGE_ACCOUNT")),
		AzureStorageKey:     strings.TrimSpace(os.Getenv("AZURE_STORAGE_KEY")),

		QueueName:         getEnvOrDefault("QUEUE_NAME", "extractions"),
		WorkerConcurrency: int(parseIntOrDefault("WORKER_CONCURRENCY", 2)),
	}

	engines, err := parseEngines(parseListOrDefault("ENABLED_ENGINES", nil))
	if err != nil {
		return nil, err
	}
	cfg.EnabledEngines = engines

	weights, err := parseWeights(os.Getenv("ENGINE_WEIGHTS"))
	if err != nil {
		return nil, err
	}
	cfg.EngineWeights = weights

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxImagePixels)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.ExtractionTimeout <= 0 || c.OCRCallTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, extraction=%s, ocr=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.ExtractionTimeout, c.OCRCallTimeout)
	}
	if c.OCRMaxWorkers <= 0 {
		return fmt.Errorf("OCR_MAX_WORKERS must be > 0 (got %d)", c.OCRMaxWorkers)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be > 0 (got %d)", c.WorkerConcurrency)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within 0-100 (got %g)", c.ConfidenceThreshold)
	}
	if c.MinValidationScore < 0 || c.MinValidationScore > 100 {
		return fmt.Errorf("MIN_VALIDATION_SCORE must be within 0-100 (got %g)", c.MinValidationScore)
	}
	if (c.AzureStorageAccount == "") != (c.AzureStorageKey == "") {
		return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY must be set together")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// parseListOrDefault splits a comma separated value, dropping empty items.
func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseEngines(names []string) ([]models.EngineID, error) {
	if len(names) == 0 {
		return models.RecognitionEngines(), nil
	}
	engines := make([]models.EngineID, 0, len(names))
	for _, n := range names {
		id, err := models.ParseEngineID(n)
		if err != nil {
			return nil, fmt.Errorf("ENABLED_ENGINES: %w", err)
		}
		engines = append(engines, id)
	}
	return engines, nil
}

// parseWeights reads "engine=weight" pairs on top of the default weights.
func parseWeights(value string) (fusion.EngineWeights, error) {
	weights := fusion.DefaultEngineWeights()
	if strings.TrimSpace(value) == "" {
		return weights, nil
	}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("ENGINE_WEIGHTS: expected engine=weight, got %q", pair)
		}
		id, err := models.ParseEngineID(name)
		if err != nil {
			return nil, fmt.Errorf("ENGINE_WEIGHTS: %w", err)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("ENGINE_WEIGHTS: invalid weight %q for %s", raw, id)
		}
		weights[id] = w
	}
	return weights, nil
}
