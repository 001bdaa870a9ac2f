// Package config has the configuration for the search service
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment the service runs in
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

func (e Environment) String() string {
	return string(e)
}

// ParseEnvironment maps ENV values, including the long spellings, onto an Environment
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	default:
		return EnvDevelopment, fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", s)
	}
}

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes

	DatasetPath    string // Local JSON dataset
	DatasetURL     string // Optional remote dataset, takes precedence over DatasetPath
	ReloadSchedule string // gocron At() expression, e.g. "06:00;18:00"

	SearchTimeout time.Duration // Bound on every search host round trip
	SearchKeys    string        // "compact" or "extended"
	SearchMatcher string        // "edit" or "subsequence"

	CacheTTL       time.Duration
	CacheMaxItems  int
	CacheDBPath    string // Empty keeps the cache memory-only
	CacheNamespace string
}

// Load reads the optional .env file, then loads and validates configuration
// from environment variables
func Load() (*Config, error) {
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               env,
		LogLevel:          getEnvWithDefault("LOG_LEVEL", ""),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		DatasetPath:       getEnvWithDefault("DATASET_PATH", "data/medications.json"),
		DatasetURL:        getEnvWithDefault("DATASET_URL", ""),
		ReloadSchedule:    getEnvWithDefault("RELOAD_SCHEDULE", "06:00;18:00"),
		SearchTimeout:     getDurationEnvWithDefault("SEARCH_TIMEOUT", 5*time.Second),
		SearchKeys:        strings.ToLower(getEnvWithDefault("SEARCH_KEYS", "compact")),
		SearchMatcher:     strings.ToLower(getEnvWithDefault("SEARCH_MATCHER", "edit")),
		CacheTTL:          getDurationEnvWithDefault("CACHE_TTL", 10*time.Minute),
		CacheMaxItems:     getIntEnvWithDefault("CACHE_MAX_ITEMS", 1000),
		CacheDBPath:       getEnvWithDefault("CACHE_DB_PATH", ""),
		CacheNamespace:    getEnvWithDefault("CACHE_NAMESPACE", "search"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if cfg.DatasetPath == "" && cfg.DatasetURL == "" {
		return fmt.Errorf("one of DATASET_PATH or DATASET_URL must be set")
	}

	if cfg.DatasetURL != "" && !strings.HasPrefix(cfg.DatasetURL, "http://") && !strings.HasPrefix(cfg.DatasetURL, "https://") {
		return fmt.Errorf("invalid DATASET_URL: must be an http(s) URL, got: %s", cfg.DatasetURL)
	}

	if strings.TrimSpace(cfg.ReloadSchedule) == "" {
		return fmt.Errorf("RELOAD_SCHEDULE cannot be empty")
	}

	if err := validateDuration(cfg.SearchTimeout, 100*time.Millisecond, time.Minute); err != nil {
		return fmt.Errorf("invalid SEARCH_TIMEOUT: %w", err)
	}

	if cfg.SearchKeys != "compact" && cfg.SearchKeys != "extended" {
		return fmt.Errorf("invalid SEARCH_KEYS: must be compact or extended, got: %s", cfg.SearchKeys)
	}

	if cfg.SearchMatcher != "edit" && cfg.SearchMatcher != "subsequence" {
		return fmt.Errorf("invalid SEARCH_MATCHER: must be edit or subsequence, got: %s", cfg.SearchMatcher)
	}

	if err := validateDuration(cfg.CacheTTL, time.Second, 7*24*time.Hour); err != nil {
		return fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	if cfg.CacheMaxItems < 0 {
		return fmt.Errorf("invalid CACHE_MAX_ITEMS: must not be negative, got: %d", cfg.CacheMaxItems)
	}

	if strings.TrimSpace(cfg.CacheNamespace) == "" || strings.Contains(cfg.CacheNamespace, ":") {
		return fmt.Errorf("invalid CACHE_NAMESPACE: must be non-empty and contain no ':', got: %q", cfg.CacheNamespace)
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateEnv validates the ENV environment variable
func validateEnv(env Environment) error {
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
		return nil
	case "":
		return fmt.Errorf("ENV cannot be empty")
	default:
		return fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", env)
	}
}

// validateLogLevel validates the LOG_LEVEL environment variable. Empty means
// "derive from ENV".
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return nil
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	logLevel = strings.ToLower(logLevel)

	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE must be positive, got: %d", size)
	}

	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// validateDuration checks that d lies within [min, max]
func validateDuration(d, min, max time.Duration) error {
	if d < min {
		return fmt.Errorf("must be at least %s, got: %s", min, d)
	}
	if d > max {
		return fmt.Errorf("must be at most %s, got: %s", max, d)
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnvWithDefault gets an environment variable as a Go duration ("5s", "10m")
func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"DATASET_PATH",
		"DATASET_URL",
		"RELOAD_SCHEDULE",
		"SEARCH_TIMEOUT",
		"SEARCH_KEYS",
		"SEARCH_MATCHER",
		"CACHE_TTL",
		"CACHE_MAX_ITEMS",
		"CACHE_DB_PATH",
		"CACHE_NAMESPACE",
	}
}
