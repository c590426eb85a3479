// Package main is the entry point for the sentiment oracle daemon.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentibridge/oracle/internal/aggregate"
	"github.com/sentibridge/oracle/internal/chain"
	"github.com/sentibridge/oracle/internal/config"
	"github.com/sentibridge/oracle/internal/domain"
	"github.com/sentibridge/oracle/internal/ingest"
	"github.com/sentibridge/oracle/internal/manipulation"
	"github.com/sentibridge/oracle/internal/observability"
	"github.com/sentibridge/oracle/internal/orchestrator"
	"github.com/sentibridge/oracle/internal/scoring"
	"github.com/sentibridge/oracle/internal/store"
)

const version = "0.1.0"

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("SENTIBRIDGE_ENV") == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting sentiment oracle daemon", "version", version)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.New(cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	dedupStore := store.NewDedupStore(db)
	nonceStore := store.NewNonceStore(db)
	txLogStore := store.NewTxLogStore(db)
	historyStore := store.NewSampleHistoryStore(db)

	dedup := ingest.NewDeduplicator(ingest.DeduplicatorConfig{
		Horizon:  time.Duration(cfg.Dedup.HorizonSeconds) * time.Second,
		Capacity: cfg.Dedup.Capacity,
	}, dedupStore, logger)
	if err := dedup.Restore(ctx); err != nil {
		logger.Warn("dedup restore failed, starting cold", "error", err)
	}

	collectors := buildCollectors(cfg, logger)

	var primary scoring.PrimaryModel
	if cfg.Scorer.PrimaryURL != "" {
		primary = scoring.NewHTTPPrimaryModel(cfg.Scorer.PrimaryURL)
	}
	scorer := scoring.New(primary, scoring.NewLexiconScorer(), scoring.Config{
		PrimaryWeight:  cfg.Scorer.PrimaryWeight,
		DegradedFactor: cfg.Scorer.DegradedFactor,
	}, logger)

	aggregator := aggregate.New(logger)

	detector := manipulation.New(manipulation.Config{
		Threshold:     cfg.Manipulation.Threshold,
		RollingCycles: cfg.Manipulation.RollingCycles,
	}, logger)

	chainClient, err := chain.Dial(ctx, chain.ClientConfig{
		RPCURL:          cfg.Chain.RPCURL,
		ChainID:         cfg.Chain.ChainID,
		ContractAddress: cfg.Chain.ContractAddress,
		DialTimeout:     10 * time.Second,
	})
	if err != nil {
		logger.Error("failed to dial chain RPC", "error", err)
		os.Exit(1)
	}
	defer chainClient.Close()

	signer, err := chain.NewSigner(cfg.Signer.Kind, cfg.Signer.PrivateKey, cfg.Signer.RemoteURL, cfg.Signer.RemoteKeyID, cfg.Signer.RemoteAddress)
	if err != nil {
		logger.Error("failed to construct signer", "error", err)
		os.Exit(1)
	}

	submitter := chain.NewSubmitter(chainClient, signer, chain.SubmitterConfig{
		BatchSize:        cfg.Submit.BatchSize,
		MinIntervalS:     cfg.Submit.MinIntervalS,
		MaxScoreChangeFP: cfg.Submit.MaxScoreChangeFP,
		Confirmations:    cfg.Submit.Confirmations,
		GasMultiplier:    cfg.Submit.GasMultiplier,
		GasCeiling:       cfg.Chain.GasCeiling,
	}, nonceStore, txLogStore, historyStore, logger)

	assets := configuredAssets(cfg)
	seedLastAccepted(ctx, submitter, historyStore, assets, logger)

	orch := orchestrator.New(collectors, dedup, scorer, aggregator, detector, submitter, orchestrator.Config{
		Period:          time.Duration(cfg.Cycle.PeriodSeconds) * time.Second,
		Jitter:          time.Duration(cfg.Cycle.JitterSeconds) * time.Second,
		ScorerWorkers:   0,
		ChainID:         cfg.Chain.ChainID,
		ContractAddress: cfg.Chain.ContractAddress,
		GasCeiling:      cfg.Chain.GasCeiling,
		Assets:          assets,
	}, logger)

	statusServer := observability.New(observability.Config{HTTPPort: cfg.Server.HTTPPort}, db, &orch.Metrics, logger)
	go func() {
		if err := statusServer.Run(ctx); err != nil {
			logger.Error("status server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	orch.Run(ctx)
	logger.Info("sentiment oracle daemon shutdown complete")
}

func buildCollectors(cfg *config.Config, logger *slog.Logger) []ingest.Collector {
	collectors := make([]ingest.Collector, 0, len(cfg.Sources)+1)
	for sourceName, sourceCfg := range cfg.Sources {
		if sourceCfg.Endpoint == "" {
			logger.Info("source has no endpoint configured, skipping", "source", sourceName)
			continue
		}
		limiter := ingest.NewSourceRateLimiter(sourceCfg.RateTokens, sourceCfg.RateRefillSecs)
		collectors = append(collectors, ingest.NewHTTPCollector(domain.Source(sourceName), sourceCfg.Endpoint, sourceCfg.Credential, limiter, logger))
	}
	collectors = append(collectors, ingest.NewInternalCollector())
	return collectors
}

func configuredAssets(cfg *config.Config) []string {
	// An empty asset cohort means the Orchestrator accepts every asset tag a
	// Collector surfaces; operators narrow the cohort via ASSET_WHITELIST.
	if v := os.Getenv("ASSET_WHITELIST"); v != "" {
		return splitCSV(v)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// seedLastAccepted reconciles the submitter's in-memory rate-limit and
// circuit-breaker pre-check state from the persisted sample history, so a
// restart doesn't forget the last accepted score for MIN_UPDATE_INTERVAL and
// MAX_SCORE_CHANGE purposes. Assets with no prior history are left unseeded;
// their first submission this process simply isn't rate-limited.
func seedLastAccepted(ctx context.Context, submitter *chain.Submitter, history *store.SampleHistoryStore, assets []string, logger *slog.Logger) {
	for _, asset := range assets {
		entry, err := history.Latest(ctx, asset)
		if err != nil {
			if err != domain.ErrNotFound {
				logger.Warn("sample history lookup failed", "asset", asset, "error", err)
			}
			continue
		}
		submitter.SetLastAccepted(asset, time.Unix(int64(entry.Timestamp), 0), entry.Score)
	}
}
