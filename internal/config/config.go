// Package config provides configuration loading and management for the estimator.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// DefaultPriceAPIURL is the CoinGecko v3 API root
const DefaultPriceAPIURL = "https://api.coingecko.com/api/v3"

// Config holds all run configuration. It is read once in the CLI and passed
// down by value; nothing below the CLI reads the environment.
type Config struct {
	// Operator credentials
	PrivateKey      string
	OperatorAddress string

	// Contract artifacts and the NFT contract under test
	ArtifactsPath         string
	NftABIPath            string
	ERC721ContractAddress string

	// Price API
	PriceAPIURL     string
	PriceAPIKey     string
	PriceMaxRetries int

	// RPC transport
	RPCTimeout     time.Duration
	RPCRateLimit   float64
	RPCRateBurst   int
	ReceiptTimeout time.Duration

	// Report policy
	USDPrecision       int
	USDRounding        string
	FailurePolicy      string
	AirdropConcurrency int

	// Optional chain table override (TOML or JSON)
	ChainsFile string

	// OpenTelemetry endpoint for tracing, empty disables export
	OtelEndpoint string

	// Address to serve /metrics on, empty disables the listener
	MetricsAddr string

	// ShowTxHashes adds the transaction hash column to text reports
	ShowTxHashes bool
}

// Load creates a new Config from environment variables. A .env file in the
// working directory is applied first when present.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("No .env file loaded: %v", err)
	}

	return Config{
		PrivateKey:            GetEnvOrDefault("PRIVATE_KEY", ""),
		OperatorAddress:       GetEnvOrDefault("OPERATOR_ADDRESS", ""),
		ArtifactsPath:         GetEnvOrDefault("ARTIFACTS_PATH", "artifacts/contracts"),
		NftABIPath:            GetEnvOrDefault("NFT_ABI_PATH", ""),
		ERC721ContractAddress: GetEnvOrDefault("ERC721_CONTRACT_ADDRESS", ""),
		PriceAPIURL:           strings.TrimRight(GetEnvOrDefault("PRICE_API_URL", DefaultPriceAPIURL), "/"),
		PriceAPIKey:           GetEnvOrDefault("PRICE_API_KEY", ""),
		PriceMaxRetries:       GetEnvAsInt("PRICE_MAX_RETRIES", 0),
		RPCTimeout:            GetEnvAsDuration("RPC_TIMEOUT", 30*time.Second),
		RPCRateLimit:          GetEnvAsFloat("RPC_RATE_LIMIT", 10),
		RPCRateBurst:          GetEnvAsInt("RPC_RATE_BURST", 5),
		ReceiptTimeout:        GetEnvAsDuration("RECEIPT_TIMEOUT", 2*time.Minute),
		USDPrecision:          GetEnvAsInt("USD_PRECISION", 6),
		USDRounding:           GetEnvOrDefault("USD_ROUNDING", "half-up"),
		FailurePolicy:         GetEnvOrDefault("FAILURE_POLICY", "zero"),
		AirdropConcurrency:    GetEnvAsInt("AIRDROP_CONCURRENCY", 4),
		ChainsFile:            GetEnvOrDefault("CHAINS_FILE", ""),
		OtelEndpoint:          GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		MetricsAddr:           GetEnvOrDefault("METRICS_ADDR", ""),
		ShowTxHashes:          GetEnvAsBool("SHOW_TX_HASHES", true),
	}
}

// GetEnv returns a trimmed environment variable. A blank value counts as unset.
func GetEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// GetEnvOrDefault returns the variable or defaultValue when it is unset
func GetEnvOrDefault(key, defaultValue string) string {
	if value, ok := GetEnv(key); ok {
		return value
	}
	return defaultValue
}

// envAs parses a variable with parse. Unset or unparsable values yield
// defaultValue; the latter is logged.
func envAs[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value, ok := GetEnv(key)
	if !ok {
		return defaultValue
	}
	parsed, err := parse(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"key":     key,
			"value":   value,
			"default": defaultValue,
		}).Warn("Ignoring invalid environment value")
		return defaultValue
	}
	return parsed
}

// GetEnvAsInt reads an integer variable
func GetEnvAsInt(key string, defaultValue int) int {
	return envAs(key, defaultValue, strconv.Atoi)
}

// GetEnvAsFloat reads a float variable
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	return envAs(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvAsDuration reads a duration such as "30s"
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	return envAs(key, defaultValue, time.ParseDuration)
}

// GetEnvAsBool reads a boolean variable
func GetEnvAsBool(key string, defaultValue bool) bool {
	return envAs(key, defaultValue, strconv.ParseBool)
}
