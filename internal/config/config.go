package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	// USDC on Base, the fixed source token for every plan.
	DefaultUSDCAddress = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

	// 1inch swap endpoint for Base (chain id 8453).
	DefaultAggregatorBaseURL = "https://api.1inch.dev/swap/v6.0/8453/swap"
)

// Config holds the full service configuration, assembled once at startup and
// passed down to every component. Required fields are validated before any
// request is served.
type Config struct {
	// Server
	Port int `validate:"min=1,max=65535"`

	// Database: sqlite file path or postgres DSN
	DatabaseDSN string `validate:"required"`

	// Chain
	RPCURL             string `validate:"required,url"`
	ExecutorPrivateKey string `validate:"required"` // hex, no 0x prefix required; never logged
	ForwarderAddress   string `validate:"required"`
	USDCAddress        string `validate:"required"`

	// Swap aggregator
	AggregatorBaseURL string `validate:"required,url"`
	AggregatorAPIKey  string `validate:"required"`

	// Operator auth. Empty disables bearer auth on mutating routes.
	APIAuthSecret string

	Debug bool
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	// .env is a convenience for local development, absence is fine
	_ = godotenv.Load()

	port, err := getEnvAsInt("PORT", 8080)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               port,
		DatabaseDSN:        getEnv("DATABASE_DSN", "dca.db"),
		RPCURL:             os.Getenv("RPC_URL"),
		ExecutorPrivateKey: os.Getenv("EXECUTOR_PRIVATE_KEY"),
		ForwarderAddress:   os.Getenv("DCA_EXECUTOR_ADDRESS"),
		USDCAddress:        getEnv("USDC_ADDRESS", DefaultUSDCAddress),
		AggregatorBaseURL:  getEnv("ONEINCH_BASE_URL", DefaultAggregatorBaseURL),
		AggregatorAPIKey:   os.Getenv("ONEINCH_API_KEY"),
		APIAuthSecret:      os.Getenv("API_AUTH_SECRET"),
		Debug:              getEnv("DEBUG", "") == "true",
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return parsed, nil
}
