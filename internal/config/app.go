package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"quotebot/internal/logger"

	"github.com/sirupsen/logrus"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Dify       DifyConfig
	Callback   CallbackConfig
	Completion CompletionConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr            string
	DB              int
	ConversationTTL time.Duration
}

// DifyConfig holds AI backend configuration
type DifyConfig struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// CallbackConfig holds downstream callback delivery configuration
type CallbackConfig struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// CompletionConfig holds the declarative completion-detection ruleset.
// Read-only after startup.
type CompletionConfig struct {
	Keywords       []string
	RequiredFields []string
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	APIKey string
}

// RateLimitConfig holds per-session rate limiting configuration
type RateLimitConfig struct {
	Enabled   bool
	PerMinute int
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	// Load Server config
	config.Server = ServerConfig{
		Port: getEnvOrDefault("SERVER_PORT", "8080"),
	}

	// Load Database config
	config.Database = DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "postgres"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		Name:     getEnvOrDefault("DB_NAME", "quotebot"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	// Load Redis config
	config.Redis = RedisConfig{
		Addr:            getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		DB:              getEnvAsInt("REDIS_DB", 0),
		ConversationTTL: getEnvAsDuration("CONVERSATION_TTL", 24*time.Hour),
	}

	// Load Dify config
	difyKey := os.Getenv("DIFY_API_KEY")
	if difyKey == "" {
		return nil, fmt.Errorf("DIFY_API_KEY environment variable must be set")
	}

	config.Dify = DifyConfig{
		APIURL:  getEnvOrDefault("DIFY_API_URL", "http://quotebot.tablazat.hu/v1"),
		APIKey:  difyKey,
		Timeout: getEnvAsDuration("DIFY_TIMEOUT", 30*time.Second),
	}

	// Load Callback config
	config.Callback = CallbackConfig{
		URL:        getEnvOrDefault("CALLBACK_URL", "https://tablazat.hu/api/quotebot/result"),
		Timeout:    getEnvAsDuration("CALLBACK_TIMEOUT", 10*time.Second),
		MaxRetries: getEnvAsInt("CALLBACK_MAX_RETRIES", 3),
		BaseDelay:  getEnvAsDuration("CALLBACK_BASE_DELAY", time.Second),
	}

	// Load Completion detection config
	config.Completion = CompletionConfig{
		Keywords:       getEnvAsList("COMPLETION_KEYWORDS", defaultCompletionKeywords()),
		RequiredFields: getEnvAsList("REQUIRED_FIELDS", []string{"customer_name", "customer_email", "product_type"}),
	}

	// Load Auth config
	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		logger.Log.Warn("API_KEY environment variable not set; all requests will be rejected")
	}
	config.Auth = AuthConfig{APIKey: apiKey}

	// Load rate limiting config
	config.RateLimit = RateLimitConfig{
		Enabled:   getEnvAsBool("RATE_LIMIT_ENABLED", true),
		PerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	return config, nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
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
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
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
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid boolean value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

func defaultCompletionKeywords() []string {
	return []string{
		"thank you for providing all the information",
		"we'll send you a quote",
		"our team will contact you",
		"conversation complete",
		"ajánlatot küldünk",
	}
}
