package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueKey      string
	AwsAccessKey  string
	AwsSecretKey  string
	AwsRegion     string
	BucketName    string
	AIAPIKey      string
	EmbedModel    string
	EmbedDim      int
	GenModel      string
	Port          string
	WorkerPort    string

	Workers        int
	MaxAttempts    int
	BatchSize      int
	TargetTokens   int
	OverlapTokens  int
	MaxEmbedTokens int
	TopK           int

	FetchTimeout time.Duration
	StageTimeout time.Duration
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		QueueKey:      getEnv("QUEUE_KEY", "askpdf:ingest"),
		AwsAccessKey:  getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:  getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:     getEnv("AWS_REGION", "us-east-2"),
		BucketName:    getEnv("BUCKET_NAME", "askpdf-docs"),
		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:      getEnvInt("EMBED_DIM", 768),
		GenModel:      getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:          getEnv("PORT", "8080"),
		WorkerPort:    getEnv("WORKER_PORT", "9090"),

		Workers:        getEnvInt("WORKERS", 10),
		MaxAttempts:    getEnvInt("MAX_ATTEMPTS", 3),
		BatchSize:      getEnvInt("BATCH_SIZE", 16),
		TargetTokens:   getEnvInt("TARGET_TOKENS", 300),
		OverlapTokens:  getEnvInt("OVERLAP_TOKENS", 30),
		MaxEmbedTokens: getEnvInt("MAX_EMBED_TOKENS", 2000),
		TopK:           getEnvInt("TOP_K", 5),

		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 2*time.Minute),
		StageTimeout: getEnvDuration("STAGE_TIMEOUT", 2*time.Minute),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
