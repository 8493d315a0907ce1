// Package params defines the liquidation engine's configuration surface.
// Grounded on the teacher's params/config.go LoadFromEnv style (ENV >
// .env file > defaults), generalized from the teacher's consensus-timing
// config to the webhook/chain/relayer surface spec.md §6 names.
package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full typed configuration surface for the liquidator.
type Config struct {
	HubRPCURL        string
	CoreVaultAddress string
	HMACSecret       string
	ChainID          int64

	SmallKeysJSON string
	BigKeysJSON   string
	LegacyKey     string

	SmallBlockGas int64
	BigBlockGas   int64
	GasBufferBps  int64

	NonceAllocatorMode string // "" / "disabled" / "off"
	LogLevel           string
	MaxRetryAttempts   int

	DatabaseURL  string
	DedupeDBPath string
	APIAddr      string
	LogFile      string
}

// Default returns the baseline configuration before environment overrides.
func Default() Config {
	return Config{
		ChainID:          999,
		SmallBlockGas:    2_000_000,
		BigBlockGas:      30_000_000,
		GasBufferBps:     13_000,
		MaxRetryAttempts: 5,
		APIAddr:          ":8080",
		DedupeDBPath:     "data/dedupe",
	}
}

// LoadFromEnv loads configuration from an optional .env file and the
// process environment. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.HubRPCURL = getEnv("HUB_RPC_URL", cfg.HubRPCURL)
	cfg.CoreVaultAddress = getEnv("CORE_VAULT_ADDRESS", cfg.CoreVaultAddress)
	cfg.HMACSecret = getEnv("LIQUIDATION_DIRECT_SIGN_IN_KEY", cfg.HMACSecret)

	cfg.SmallKeysJSON = getEnv("LIQUIDATOR_PRIVATE_KEYS_JSON", cfg.SmallKeysJSON)
	cfg.BigKeysJSON = getEnv("LIQUIDATOR_PRIVATE_KEYS_BIG_JSON", cfg.BigKeysJSON)
	cfg.LegacyKey = getEnv("LIQUIDATOR_PRIVATE_KEY", getEnv("PRIVATE_KEY", cfg.LegacyKey))

	if v := os.Getenv("HYPEREVM_SMALL_BLOCK_GAS_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SmallBlockGas = n
		}
	}
	if v := os.Getenv("HYPEREVM_BIG_BLOCK_GAS_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BigBlockGas = n
		}
	}
	if v := os.Getenv("LIQUIDATION_GAS_ESTIMATE_BUFFER_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.GasBufferBps = n
		}
	}
	if v := os.Getenv("LIQUIDATION_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ChainID = n
		}
	}
	if v := os.Getenv("LIQUIDATION_MAX_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetryAttempts = n
		}
	}

	cfg.NonceAllocatorMode = strings.ToLower(strings.TrimSpace(getEnv("LIQUIDATION_NONCE_ALLOCATOR", cfg.NonceAllocatorMode)))
	cfg.LogLevel = getEnv("LIQUIDATION_LOG_LEVEL", cfg.LogLevel)

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DedupeDBPath = getEnv("LIQUIDATION_DEDUPE_DB_PATH", cfg.DedupeDBPath)
	cfg.APIAddr = getEnv("API_ADDR", cfg.APIAddr)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
