package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all process configuration. Game tables live in GameTables and
// come from YAML.
type Config struct {
	// HTTP
	Port        string
	Environment string
	JWTSecret   string
	JWTTTL      time.Duration
	AdminAPIKey string

	// Persistence
	Store       string
	RedisURL    string
	RedisPass   string
	RedisDB     int
	DatabaseURL string

	// Settlement events
	NATSURL     string
	NATSSubject string // subject prefix; events go to <prefix>.bet.settled etc.

	GamesConfig string
	Games       *GameTables

	StartingBalance decimal.Decimal
	DefaultCurrency string
	LogLevel        string

	StoreTimeout  time.Duration
	SettleRetries uint64
	MaxNonce      uint64

	// Bet placement limit per user per minute, enforced by the middleware.
	BetRateLimit int
}

// Load reads a .env file when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using process environment")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENV", "development"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTTTL:          24 * time.Hour,
		AdminAPIKey:     os.Getenv("ADMIN_API_KEY"),
		Store:           strings.ToLower(getEnv("STORE", StoreMemory)),
		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:       os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		NATSURL:         os.Getenv("NATS_URL"),
		NATSSubject:     getEnv("NATS_SUBJECT", "casino"),
		GamesConfig:     os.Getenv("GAMES_CONFIG"),
		StartingBalance: decimal.NewFromInt(100),
		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		StoreTimeout:    2 * time.Second,
		SettleRetries:   5,
		MaxNonce:        1 << 32,
		BetRateLimit:    30,
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.BetRateLimit, err = getEnvInt("BET_RATE_LIMIT", cfg.BetRateLimit); err != nil {
		return nil, err
	}
	if v := os.Getenv("STARTING_BALANCE"); v != "" {
		if cfg.StartingBalance, err = decimal.NewFromString(v); err != nil {
			return nil, fmt.Errorf("invalid STARTING_BALANCE %q: %w", v, err)
		}
	}
	if v := os.Getenv("JWT_TTL"); v != "" {
		if cfg.JWTTTL, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid JWT_TTL %q: %w", v, err)
		}
	}
	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		if cfg.StoreTimeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid STORE_TIMEOUT %q: %w", v, err)
		}
	}
	if v := os.Getenv("SETTLE_RETRIES"); v != "" {
		if cfg.SettleRetries, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid SETTLE_RETRIES %q: %w", v, err)
		}
	}
	if v := os.Getenv("MAX_NONCE"); v != "" {
		if cfg.MaxNonce, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid MAX_NONCE %q: %w", v, err)
		}
	}

	if cfg.Games, err = LoadGameTables(cfg.GamesConfig); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.StartingBalance.IsNegative() {
		return fmt.Errorf("STARTING_BALANCE must not be negative")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.MaxNonce == 0 {
		return fmt.Errorf("MAX_NONCE must be positive")
	}
	// Postgres stores nonces as BIGINT.
	if c.MaxNonce > math.MaxInt64 {
		return fmt.Errorf("MAX_NONCE must not exceed %d", int64(math.MaxInt64))
	}
	if _, ok := c.Games.Payout.Precision[c.DefaultCurrency]; !ok {
		return fmt.Errorf("no precision configured for DEFAULT_CURRENCY %s", c.DefaultCurrency)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
