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

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Hold and booking rules
	Booking BookingConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Settlement configuration
	Settlement SettlementConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds the payment marker cache connection
type RedisConfig struct {
	URL       string        // empty disables the cache, the database ledger still dedupes
	MarkerTTL time.Duration // how long a processed transaction id stays cached
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds hold TTL bounds and booking limits
type BookingConfig struct {
	HoldTTL         time.Duration
	HoldMinTTL      time.Duration
	HoldMaxTTL      time.Duration // also caps the total lifetime of a renewed hold
	HoldRetention   time.Duration
	SweepSchedule   string // cron spec for the expiry sweep
	MaxSeatsPerHold int
	PNRLength       int
	PNRMaxAttempts  int
}

// PaymentConfig holds the payment gateway check-value credentials
type PaymentConfig struct {
	MerchantKey   string
	MerchantToken string // SECRET - used only to verify callback signatures
	Currency      string
}

// SettlementConfig holds the platform fee and the monthly job schedule
type SettlementConfig struct {
	FeeRateBps   int64
	AutoSchedule string // empty disables the monthly job
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			MarkerTTL: getEnvAsDuration("PAYMENT_MARKER_TTL", 72*time.Hour),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Booking: BookingConfig{
			HoldTTL:         time.Duration(getEnvAsInt("HOLD_TTL_MINUTES", 15)) * time.Minute,
			HoldMinTTL:      time.Duration(getEnvAsInt("HOLD_MIN_TTL_MINUTES", 5)) * time.Minute,
			HoldMaxTTL:      time.Duration(getEnvAsInt("HOLD_MAX_TTL_MINUTES", 120)) * time.Minute,
			HoldRetention:   time.Duration(getEnvAsInt("HOLD_RETENTION_MINUTES", 60)) * time.Minute,
			SweepSchedule:   getEnv("HOLD_SWEEP_SCHEDULE", "@every 30s"),
			MaxSeatsPerHold: getEnvAsInt("MAX_SEATS_PER_HOLD", 10),
			PNRLength:       getEnvAsInt("PNR_LENGTH", 6),
			PNRMaxAttempts:  getEnvAsInt("PNR_MAX_ATTEMPTS", 10),
		},
		Payment: PaymentConfig{
			MerchantKey:   getEnv("PAYMENT_MERCHANT_KEY", ""),
			MerchantToken: getEnv("PAYMENT_MERCHANT_TOKEN", ""),
			Currency:      getEnv("CURRENCY", "XAF"),
		},
		Settlement: SettlementConfig{
			FeeRateBps:   int64(getEnvAsInt("SETTLEMENT_FEE_RATE_BPS", 1000)),
			AutoSchedule: getEnv("SETTLEMENT_AUTO_SCHEDULE", "0 0 2 1 * *"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Payment.MerchantKey == "" || c.Payment.MerchantToken == "" {
		return fmt.Errorf("PAYMENT_MERCHANT_KEY and PAYMENT_MERCHANT_TOKEN are required")
	}

	if c.Settlement.FeeRateBps < 0 || c.Settlement.FeeRateBps > 10000 {
		return fmt.Errorf("SETTLEMENT_FEE_RATE_BPS must be between 0 and 10000, got %d", c.Settlement.FeeRateBps)
	}

	return c.Booking.Validate()
}

// Validate checks that the hold window is coherent
func (b BookingConfig) Validate() error {
	if b.HoldMinTTL <= 0 || b.HoldMinTTL > b.HoldMaxTTL {
		return fmt.Errorf("HOLD_MIN_TTL_MINUTES must be positive and not exceed HOLD_MAX_TTL_MINUTES")
	}
	if b.HoldTTL < b.HoldMinTTL || b.HoldTTL > b.HoldMaxTTL {
		return fmt.Errorf("HOLD_TTL_MINUTES must lie within [HOLD_MIN_TTL_MINUTES, HOLD_MAX_TTL_MINUTES]")
	}
	if b.MaxSeatsPerHold < 1 {
		return fmt.Errorf("MAX_SEATS_PER_HOLD must be at least 1")
	}
	if b.PNRLength < 4 || b.PNRMaxAttempts < 1 {
		return fmt.Errorf("PNR_LENGTH must be at least 4 and PNR_MAX_ATTEMPTS at least 1")
	}
	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
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
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
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
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return getEnvAsBool("FORCE_PRODUCTION", false) || c.Server.Environment == "production"
}
