// Package config handles application configuration management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

// Config holds all configuration for the oracle daemon.
type Config struct {
	Env        string
	Server     ServerConfig
	Database   DatabaseConfig
	Temporal   TemporalConfig
	Chain      ChainConfig
	Cycle      CycleConfig
	Dedup      DedupConfig
	Scorer     ScorerConfig
	Manipulation ManipulationConfig
	Submit     SubmitConfig
	Signer     SignerConfig
	Sources    map[string]SourceConfig
}

// ServerConfig holds the observability HTTP server settings.
type ServerConfig struct {
	HTTPPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings for the store package.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// TemporalConfig holds Temporal workflow engine settings for cmd/worker.
type TemporalConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

// ChainConfig holds the EVM RPC and oracle contract settings.
type ChainConfig struct {
	RPCURL          string
	ChainID         int64
	ContractAddress string
	GasCeiling      uint64
	GasMultiplier   float64
}

// CycleConfig governs the Orchestrator's period driving logic.
type CycleConfig struct {
	PeriodSeconds int // P
	JitterSeconds int // epsilon
}

// DedupConfig governs the Deduplicator.
type DedupConfig struct {
	HorizonSeconds int
	Capacity       int
}

// ScorerConfig governs the Scorer ensemble.
type ScorerConfig struct {
	PrimaryWeight   float64 // w
	PrimaryURL      string
	DegradedFactor  float64
}

// ManipulationConfig governs the Manipulation Detector.
type ManipulationConfig struct {
	Threshold     float64 // T
	RollingCycles int     // K
}

// SubmitConfig governs the Submitter.
type SubmitConfig struct {
	BatchSize        int
	MinIntervalS     int
	MaxScoreChangeFP int64
	Confirmations    int
	GasMultiplier    float64
}

// SignerConfig selects and configures the Signer implementation.
type SignerConfig struct {
	Kind          string // "local" or "remote"
	PrivateKey    string // hex, local only
	RemoteURL     string // remote only
	RemoteKeyID   string // remote only
	RemoteAddress string // remote only: the address the HSM reports for RemoteKeyID
}

// SourceConfig is per-source collector and rate-limit configuration.
type SourceConfig struct {
	Endpoint       string
	Credential     string
	RateTokens     int
	RateRefillSecs int
}

// Load reads configuration from environment variables, applying the defaults
// from the configuration table, and fails fast with ErrConfigInvalid if a
// required value is missing or a checked value is out of range. A numeric
// variable that does not parse is ignored and its default is used.
func Load() (*Config, error) {
	cfg := &Config{
		Env: getEnv("SENTIBRIDGE_ENV", "development"),
		Server: ServerConfig{
			HTTPPort:     getEnvInt("HTTP_PORT", 8000),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("POSTGRES_HOST", "localhost"),
			Port:         getEnvInt("POSTGRES_PORT", 5432),
			User:         getEnv("POSTGRES_USER", "sentibridge"),
			Password:     getEnv("POSTGRES_PASSWORD", ""),
			Database:     getEnv("POSTGRES_DB", "sentibridge"),
			SSLMode:      getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			MaxLifetime:  5 * time.Minute,
		},
		Temporal: TemporalConfig{
			HostPort:  getEnv("TEMPORAL_HOSTPORT", "localhost:7233"),
			Namespace: getEnv("TEMPORAL_NAMESPACE", "sentibridge"),
			TaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "sentibridge-oracle"),
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("CHAIN_RPC_URL", ""),
			ChainID:         int64(getEnvInt("CHAIN_ID", 1)),
			ContractAddress: getEnv("ORACLE_CONTRACT_ADDRESS", ""),
			GasCeiling:      uint64(getEnvInt("GAS_CEILING", 2_000_000)),
			GasMultiplier:   getEnvFloat("GAS_MULTIPLIER", 1.2),
		},
		Cycle: CycleConfig{
			PeriodSeconds: getEnvInt("CYCLE_PERIOD_S", 300),
			JitterSeconds: getEnvInt("CYCLE_JITTER_S", 10),
		},
		Dedup: DedupConfig{
			HorizonSeconds: getEnvInt("DEDUP_HORIZON_S", 86400),
			Capacity:       getEnvInt("DEDUP_CAPACITY", 1_000_000),
		},
		Scorer: ScorerConfig{
			PrimaryWeight:  getEnvFloat("SCORER_PRIMARY_WEIGHT", 0.7),
			PrimaryURL:     getEnv("SCORER_PRIMARY_URL", ""),
			DegradedFactor: 0.6,
		},
		Manipulation: ManipulationConfig{
			Threshold:     getEnvFloat("MANIPULATION_THRESHOLD", 0.7),
			RollingCycles: getEnvInt("MANIPULATION_ROLLING_CYCLES", 3),
		},
		Submit: SubmitConfig{
			BatchSize:        getEnvInt("SUBMIT_BATCH_SIZE", 50),
			MinIntervalS:     getEnvInt("SUBMIT_MIN_INTERVAL_S", 240),
			MaxScoreChangeFP: int64(getEnvInt("SUBMIT_MAX_SCORE_CHANGE_FP", 200_000_000_000_000_000)),
			Confirmations:    getEnvInt("SUBMIT_CONFIRMATIONS", 2),
			GasMultiplier:    getEnvFloat("SUBMIT_GAS_MULTIPLIER", 1.2),
		},
		Signer: SignerConfig{
			Kind:          getEnv("SIGNER_KIND", "local"),
			PrivateKey:    getEnv("SIGNER_PRIVATE_KEY", ""),
			RemoteURL:     getEnv("SIGNER_REMOTE_URL", ""),
			RemoteKeyID:   getEnv("SIGNER_REMOTE_KEY_ID", ""),
			RemoteAddress: getEnv("SIGNER_REMOTE_ADDRESS", ""),
		},
		Sources: map[string]SourceConfig{
			string(domain.SourceNews): {
				Endpoint:       getEnv("SOURCE_NEWS_ENDPOINT", ""),
				Credential:     getEnv("SOURCE_NEWS_CREDENTIAL", ""),
				RateTokens:     getEnvInt("SOURCE_NEWS_RATE_TOKENS", 5),
				RateRefillSecs: getEnvInt("SOURCE_NEWS_RATE_REFILL_S", 1),
			},
			string(domain.SourceTwitterLike): {
				Endpoint:       getEnv("SOURCE_TWITTERLIKE_ENDPOINT", ""),
				Credential:     getEnv("SOURCE_TWITTERLIKE_CREDENTIAL", ""),
				RateTokens:     getEnvInt("SOURCE_TWITTERLIKE_RATE_TOKENS", 10),
				RateRefillSecs: getEnvInt("SOURCE_TWITTERLIKE_RATE_REFILL_S", 1),
			},
			string(domain.SourceChatA): {
				Endpoint:       getEnv("SOURCE_CHATA_ENDPOINT", ""),
				Credential:     getEnv("SOURCE_CHATA_CREDENTIAL", ""),
				RateTokens:     getEnvInt("SOURCE_CHATA_RATE_TOKENS", 5),
				RateRefillSecs: getEnvInt("SOURCE_CHATA_RATE_REFILL_S", 2),
			},
			string(domain.SourceChatB): {
				Endpoint:       getEnv("SOURCE_CHATB_ENDPOINT", ""),
				Credential:     getEnv("SOURCE_CHATB_CREDENTIAL", ""),
				RateTokens:     getEnvInt("SOURCE_CHATB_RATE_TOKENS", 5),
				RateRefillSecs: getEnvInt("SOURCE_CHATB_RATE_REFILL_S", 2),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("CHAIN_RPC_URL is required")
	}
	if c.Chain.ContractAddress == "" {
		return fmt.Errorf("ORACLE_CONTRACT_ADDRESS is required")
	}
	if c.Signer.Kind == "local" && c.Signer.PrivateKey == "" {
		return fmt.Errorf("SIGNER_PRIVATE_KEY is required when SIGNER_KIND=local")
	}
	if c.Signer.Kind == "remote" && c.Signer.RemoteURL == "" {
		return fmt.Errorf("SIGNER_REMOTE_URL is required when SIGNER_KIND=remote")
	}
	if c.Submit.BatchSize < 1 || c.Submit.BatchSize > 50 {
		return fmt.Errorf("SUBMIT_BATCH_SIZE must be in [1,50], got %d", c.Submit.BatchSize)
	}
	if c.Scorer.PrimaryWeight < 0 || c.Scorer.PrimaryWeight > 1 {
		return fmt.Errorf("SCORER_PRIMARY_WEIGHT must be in [0,1]")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
