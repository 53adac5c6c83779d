package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration for both the API server and the worker.
type Config struct {
	Port string

	StoreDriver string // memory, postgres or sqlite
	DatabaseURL string
	SQLitePath  string

	Executor          string // pool, inline or kafka
	WorkerConcurrency int
	PredictionTimeout time.Duration

	KafkaBrokers      []string
	KafkaJobsTopic    string
	KafkaResultsTopic string
	KafkaEventsTopic  string
	KafkaGroupID      string

	JWTSecret string

	ModelManifest  string
	ModelCacheSize int

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads .env when present and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("config: .env file not found, using system environment variables")
	}

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		StoreDriver: getEnv("STORE_DRIVER", "memory"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "predictions.db"),

		Executor:          getEnv("EXECUTOR", "pool"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		PredictionTimeout: getEnvDuration("PREDICTION_TIMEOUT", 30*time.Second),

		KafkaBrokers:      getEnvList("KAFKA_BROKERS", nil),
		KafkaJobsTopic:    getEnv("KAFKA_JOBS_TOPIC", "prediction_jobs"),
		KafkaResultsTopic: getEnv("KAFKA_RESULTS_TOPIC", "prediction_results"),
		KafkaEventsTopic:  getEnv("KAFKA_EVENTS_TOPIC", "prediction_events"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "prediction-workers"),

		JWTSecret: getEnv("JWT_SECRET", "defaultSecret"),

		ModelManifest:  getEnv("MODEL_MANIFEST", ""),
		ModelCacheSize: getEnvInt("MODEL_CACHE_SIZE", 16),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	if cfg.JWTSecret == "defaultSecret" {
		log.Println("config: using default JWT_SECRET, update it in your environment")
	}
	return cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: error converting %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}

// getEnvDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("config: error converting %s to duration", key)
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
