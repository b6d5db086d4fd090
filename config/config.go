package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/e-RicardoGama/nutriscan/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	JWTSecret string

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	EstimateTimeout    time.Duration
	FuzzyThreshold     int
	ResolveConcurrency int
	Timezone           string

	S3Bucket string
	S3Region string
	CDNURL   string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	timeout, err := time.ParseDuration(GetEnv("ESTIMATE_TIMEOUT", "20s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ESTIMATE_TIMEOUT: %w", err)
	}
	threshold, err := strconv.Atoi(GetEnv("FUZZY_THRESHOLD", "80"))
	if err != nil || threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("invalid FUZZY_THRESHOLD %q: must be 0..100", os.Getenv("FUZZY_THRESHOLD"))
	}
	concurrency, err := strconv.Atoi(GetEnv("RESOLVE_CONCURRENCY", "4"))
	if err != nil || concurrency < 1 {
		return nil, fmt.Errorf("invalid RESOLVE_CONCURRENCY %q", os.Getenv("RESOLVE_CONCURRENCY"))
	}

	s3Region := GetEnv("S3_REGION", "")
	if s3Region == "" {
		s3Region = GetEnv("AWS_REGION", "") // fallback
	}

	return &Config{
		Env:                GetEnv("ENV", "development"),
		Port:               GetEnv("PORT", "8080"),
		DBHost:             GetEnv("DB_HOST", "localhost"),
		DBUser:             GetEnv("DB_USER", "postgres"),
		DBPassword:         GetEnv("DB_PASSWORD", "postgres"),
		DBName:             GetEnv("DB_NAME", "nutriscan"),
		DBPort:             GetEnv("DB_PORT", "5432"),
		DBSSLMode:          GetEnv("DB_SSLMODE", "disable"),
		JWTSecret:          GetEnv("JWT_SECRET", ""),
		LLMAPIKey:          GetEnv("LLM_API_KEY", ""),
		LLMBaseURL:         GetEnv("LLM_BASE_URL", ""),
		LLMModel:           GetEnv("LLM_MODEL", "gemini-2.5-flash"),
		EstimateTimeout:    timeout,
		FuzzyThreshold:     threshold,
		ResolveConcurrency: concurrency,
		Timezone:           GetEnv("TIMEZONE", "America/Sao_Paulo"),
		S3Bucket:           GetEnv("S3_BUCKET", ""),
		S3Region:           s3Region,
		CDNURL:             GetEnv("CDN_URL", ""),
	}, nil
}

// GetEnv returns the variable's value or def when unset or empty.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// Location resolves the reference timezone used for "today".
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// InitDB opens the postgres connection. Callers own the handle.
func InitDB(c *Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if c.Env == "production" {
		level = gormlogger.Error
	}
	db, err := gorm.Open(postgres.Open(c.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the tables this service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Food{},
		&models.Meal{},
		&models.MealItem{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	return nil
}
