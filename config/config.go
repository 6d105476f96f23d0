package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-driven settings for the server.
type Config struct {
	Env  string
	Port string

	MongoURI      string
	MongoDatabase string

	JWTSecret string
	JWTExpiry time.Duration

	AWSRegion     string
	AWSBucketName string
	UploadPrefix  string
	UploadTimeout time.Duration

	GeminiAPIKey    string
	GeminiModel     string
	GenerateTimeout time.Duration

	UploadDir      string
	MaxUploadBytes int64
	AllowedTypes   []string

	DailyTryOnLimit int
}

// Load reads the .env file (if present) and builds a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "8080"),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/"),
		MongoDatabase: getEnv("MONGO_DATABASE", "tryonix"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTExpiry: getEnvDuration("JWT_EXPIRY", 24*time.Hour),

		AWSRegion:     getEnv("AWS_REGION", "ap-south-1"),
		AWSBucketName: os.Getenv("AWS_BUCKET_NAME"),
		UploadPrefix:  getEnv("UPLOAD_PREFIX", "tryonix"),
		UploadTimeout: getEnvDuration("UPLOAD_TIMEOUT", 60*time.Second),

		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GenerateTimeout: getEnvDuration("GENERATE_TIMEOUT", 5*time.Minute),

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: getEnvInt64("MAX_FILE_SIZE", 10<<20),
		AllowedTypes:   []string{"image/jpeg", "image/jpg", "image/png", "image/webp"},

		DailyTryOnLimit: getEnvInt("DAILY_TRYON_LIMIT", 3),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) validate() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.AWSBucketName == "" {
		missing = append(missing, "AWS_BUCKET_NAME")
	}
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
