// Package config provides configuration management for the github-analysis binaries.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the trainer, server and worker.
type Config struct {
	// Dataset settings
	DatasetCSV   string
	TopLanguages int
	TestFraction float64
	Seed         int64

	// Artifact settings
	ArtifactsDir   string
	TransformerDir string

	// Trainer settings
	Families      string
	Retune        bool
	RunBaselines  bool
	WriteSnapshot bool

	// Tuning settings
	CVFolds int
	GridDir string

	// Server settings
	ServerAddr  string
	ServerModel string

	// Database settings
	DatabaseURL string

	// Temporal settings
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string

	// MinIO settings
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		DatasetCSV:   getEnv("DATASET_CSV", "data/repos.csv"),
		TopLanguages: getEnvInt("DATASET_TOP_LANGUAGES", 10),
		TestFraction: getEnvFloat("DATASET_TEST_FRACTION", 0.2),
		Seed:         int64(getEnvInt("SEED", 42)),

		ArtifactsDir:   getEnv("ARTIFACTS_DIR", "artifacts"),
		TransformerDir: getEnv("TRANSFORMER_DIR", "artifacts/transformer"),

		Families:      getEnv("TRAINER_FAMILIES", "knn,lasso,gbt,stacking,transformer"),
		Retune:        getEnvBool("TRAINER_RETUNE", false),
		RunBaselines:  getEnvBool("TRAINER_BASELINES", true),
		WriteSnapshot: getEnvBool("TRAINER_SNAPSHOT", true),

		CVFolds: getEnvInt("TUNING_CV_FOLDS", 5),
		GridDir: getEnv("TUNING_GRID_DIR", ""),

		ServerAddr:  getEnv("SERVER_ADDR", ":8080"),
		ServerModel: getEnv("SERVER_MODEL", "stacking"),

		DatabaseURL: getEnv("DATABASE_URL", getEnv("METADATA_DATABASE_URL", "")),

		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "lang-tuning"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "github-analysis"),
		MinioRegion:    getEnv("MINIO_REGION", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
