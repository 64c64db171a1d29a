package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the whole application configuration
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Rates    RatesConfig
	Ledger   LedgerConfig
	Kafka    KafkaConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// AuthConfig holds token and password hashing settings
type AuthConfig struct {
	JWTSecret     string
	JWTExpiration time.Duration
	BcryptCost    int
}

// DatabaseConfig holds the optional Postgres connection
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// RatesConfig holds rate feed settings
type RatesConfig struct {
	Pairs          []string
	UpstreamURL    string
	APIKey         string
	Timeout        time.Duration
	CacheTTL       time.Duration
	Volatility     float64
	Seed           int64
	StreamInterval time.Duration
}

// LedgerConfig holds trade execution settings
type LedgerConfig struct {
	PriceTolerance float64
}

// KafkaConfig holds trade event publishing settings
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	NotionalThreshold float64
}

// LoggerConfig holds logging settings
type LoggerConfig struct {
	Level string
}

// Load reads configuration from the environment, optionally seeded from an env file
func Load(configPath string) (*Config, error) {
	if configPath != "" {
		if err := godotenv.Load(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg := &Config{}

	// Server
	cfg.Server.Port = getEnv("PORT", DefaultPort)
	cfg.Server.CORSOrigins = getEnvList("CORS_ORIGINS", DefaultCORSOrigins)
	cfg.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout)

	// Auth
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.JWTExpiration = getEnvDuration("JWT_EXPIRATION", DefaultJWTExpiration)
	cfg.Auth.BcryptCost = getEnvInt("BCRYPT_COST", DefaultBcryptCost)

	// Database
	cfg.Database.URL = getEnv("DATABASE_URL", DefaultDatabaseURL)
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", DefaultDBMaxConns)

	// Rates
	cfg.Rates.Pairs = getEnvList("RATES_PAIRS", DefaultRatesPairs)
	cfg.Rates.UpstreamURL = getEnv("RATES_UPSTREAM_URL", DefaultRatesUpstreamURL)
	cfg.Rates.APIKey = os.Getenv("API_KEY")
	cfg.Rates.Timeout = getEnvDuration("RATES_TIMEOUT", DefaultRatesTimeout)
	cfg.Rates.CacheTTL = getEnvDuration("RATES_CACHE_TTL", DefaultRatesCacheTTL)
	cfg.Rates.Volatility = getEnvFloat("RATES_VOLATILITY", DefaultRatesVolatility)
	cfg.Rates.Seed = int64(getEnvInt("RATES_SEED", DefaultRatesSeed))
	cfg.Rates.StreamInterval = getEnvDuration("RATES_STREAM_INTERVAL", DefaultRatesStreamInterval)

	// Ledger
	cfg.Ledger.PriceTolerance = getEnvFloat("PRICE_TOLERANCE", DefaultPriceTolerance)

	// Kafka
	cfg.Kafka.Brokers = getEnvList("KAFKA_BROKERS", DefaultKafkaBrokers)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", DefaultKafkaTopic)
	cfg.Kafka.NotionalThreshold = getEnvFloat("KAFKA_NOTIONAL_THRESHOLD", DefaultKafkaNotionalThreshold)

	// Logger
	cfg.Logger.Level = getEnv("LOG_LEVEL", DefaultLogLevel)

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.JWTExpiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if len(c.Rates.Pairs) == 0 {
		return fmt.Errorf("RATES_PAIRS must list at least one pair")
	}
	if c.Rates.Timeout <= 0 || c.Rates.StreamInterval <= 0 {
		return fmt.Errorf("RATES_TIMEOUT and RATES_STREAM_INTERVAL must be positive")
	}
	if c.Rates.CacheTTL < 0 || c.Rates.Volatility < 0 {
		return fmt.Errorf("RATES_CACHE_TTL and RATES_VOLATILITY must not be negative")
	}

	if c.Ledger.PriceTolerance < 0 {
		return fmt.Errorf("PRICE_TOLERANCE must not be negative")
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if _, err := logrus.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blank entries
func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
