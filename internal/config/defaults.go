package config

import "time"

// Server defaults
const (
	DefaultPort            = "3000"
	DefaultCORSOrigins     = "*"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
)

// Auth defaults
const (
	DefaultJWTExpiration = 24 * time.Hour
	DefaultBcryptCost    = 10
)

// Database defaults. An empty URL selects the in-memory store.
const (
	DefaultDatabaseURL = ""
	DefaultDBMaxConns  = 10
)

// Rate feed defaults
const (
	DefaultRatesPairs          = "EUR/USD,GBP/USD,USD/JPY,USD/CHF,AUD/USD,USD/CAD"
	DefaultRatesUpstreamURL    = ""
	DefaultRatesTimeout        = 3 * time.Second
	DefaultRatesCacheTTL       = time.Second
	DefaultRatesVolatility     = 0.0
	DefaultRatesSeed           = 1
	DefaultRatesStreamInterval = 5 * time.Second
)

// Ledger defaults. Zero tolerance keeps the submitted price as-is.
const (
	DefaultPriceTolerance = 0.0
)

// Kafka defaults. Empty brokers disable trade events.
const (
	DefaultKafkaBrokers           = ""
	DefaultKafkaTopic             = "trades.executed"
	DefaultKafkaNotionalThreshold = 0.0
)
