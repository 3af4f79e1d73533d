package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	// Database
	Database DatabaseConfig

	// External sources
	KRX   KRXConfig
	Naver NaverConfig

	// Batch
	Batch BatchConfig

	// Read-only API
	API APIConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds the embedded SQLite configuration
type DatabaseConfig struct {
	Path          string // path to the database file
	BusyTimeoutMS int
	CacheSizeMB   int
	WALMode       bool
}

// KRXConfig holds KRX market data endpoint configuration
type KRXConfig struct {
	BaseURL         string
	ReferenceTicker string // 영업일 탐색 기준 종목 (삼성전자)
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

// NaverConfig holds the reserve-ratio scraper configuration
type NaverConfig struct {
	BaseURL     string
	ReferrerURL string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	MaxWorkers  int     // 동시 수집 워커 수
	RatePerSec  float64 // 전체 워커 합산 요청 상한
	SampleDir   string  // 파싱 실패 HTML 샘플 저장 위치
}

// BatchConfig holds batch orchestration defaults
type BatchConfig struct {
	LookbackDays int
}

// APIConfig holds the read-only HTTP API configuration
type APIConfig struct {
	Port    string
	Enabled bool
}

// SchedulerConfig holds cron schedules for recurring jobs
type SchedulerConfig struct {
	DailyBatchSpec     string // 야간 전체 수집
	ReserveRefreshSpec string // 저녁 유보율 갱신
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Path:          getEnv("DB_PATH", "data/kscreener.db"),
			BusyTimeoutMS: getEnvAsInt("DB_BUSY_TIMEOUT_MS", 5000),
			CacheSizeMB:   getEnvAsInt("DB_CACHE_SIZE_MB", 64),
			WALMode:       getEnvAsBool("DB_WAL_MODE", true),
		},

		KRX: KRXConfig{
			BaseURL:         getEnv("KRX_BASE_URL", "http://data.krx.co.kr"),
			ReferenceTicker: getEnv("KRX_REFERENCE_TICKER", "005930"),
			Timeout:         getEnvAsDuration("KRX_TIMEOUT", "30s"),
			MaxRetries:      getEnvAsInt("KRX_MAX_RETRIES", 3),
			RetryDelay:      getEnvAsDuration("KRX_RETRY_DELAY", "500ms"),
		},

		Naver: NaverConfig{
			BaseURL:     getEnv("NAVER_BASE_URL", "https://navercomp.wisereport.co.kr"),
			ReferrerURL: getEnv("NAVER_REFERRER_URL", "https://finance.naver.com"),
			Timeout:     getEnvAsDuration("NAVER_TIMEOUT", "8s"),
			MaxRetries:  getEnvAsInt("NAVER_MAX_RETRIES", 3),
			RetryDelay:  getEnvAsDuration("NAVER_RETRY_DELAY", "500ms"),
			MaxWorkers:  getEnvAsInt("SCRAPE_WORKERS", 8),
			RatePerSec:  getEnvAsFloat("SCRAPE_RATE", 10.0),
			SampleDir:   getEnv("SCRAPE_SAMPLE_DIR", "data/samples"),
		},

		Batch: BatchConfig{
			LookbackDays: getEnvAsInt("LOOKBACK_DAYS", 400),
		},

		API: APIConfig{
			Port:    getEnv("API_PORT", "8087"),
			Enabled: getEnvAsBool("API_ENABLED", true),
		},

		Scheduler: SchedulerConfig{
			DailyBatchSpec:     getEnv("SCHEDULE_DAILY_BATCH", "0 30 18 * * MON-FRI"),
			ReserveRefreshSpec: getEnv("SCHEDULE_RESERVE_REFRESH", "0 0 21 * * MON-FRI"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Batch.LookbackDays <= 0 {
		return fmt.Errorf("LOOKBACK_DAYS must be positive")
	}

	if c.Naver.RatePerSec <= 0 {
		return fmt.Errorf("SCRAPE_RATE must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
