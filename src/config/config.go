package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Tastytrade API settings
	TastytradeURL      string
	TastytradeUsername string
	TastytradePassword string

	// Outbound HTTP settings
	BrokerageHTTPTimeout time.Duration
	ChartHTTPTimeout     time.Duration

	// Rate limiting for inbound requests
	RateLimitInterval time.Duration
	RateLimitBurst    int

	// Allowed CORS origins
	AllowedOrigins []string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()

	// 2. If not found, try loading from the parent directory (common when running from /api)
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./tradejournal.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		// Tastytrade. The cert environment is the default so a misconfigured
		// deployment never touches live accounts.
		TastytradeURL:      getEnv("TASTYTRADE_URL", "https://api.cert.tastyworks.com"),
		TastytradeUsername: getEnv("TASTYTRADE_USERNAME", ""),
		TastytradePassword: getEnv("TASTYTRADE_PASSWORD", ""),

		// Outbound HTTP
		BrokerageHTTPTimeout: getEnvAsDuration("BROKERAGE_HTTP_TIMEOUT", 30*time.Second),
		ChartHTTPTimeout:     getEnvAsDuration("CHART_HTTP_TIMEOUT", 20*time.Second),

		// Rate limiting
		RateLimitInterval: getEnvAsDuration("RATE_LIMIT_INTERVAL", 100*time.Millisecond),
		RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 30),

		// CORS
		AllowedOrigins: getAllowedOrigins("ALLOWED_ORIGINS"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, TastytradeURL=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.TastytradeURL)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getAllowedOrigins retrieves and parses the comma-separated list of CORS origins.
func getAllowedOrigins(key string) []string {
	originsStr := getEnv(key, "http://localhost:4200")
	origins := strings.Split(originsStr, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	return origins
}
