// Package main is the entry point for the Temporal-backed cycle worker: an
// alternate entrypoint to the same collect/dedup/score/aggregate/detect/
// submit cycle cmd/oracle drives with an in-process ticker, here driven by
// durable Temporal workflow runs. This process only registers the workflow
// and activities and polls the task queue; it does not start or schedule
// workflow runs itself.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/sentibridge/oracle/internal/aggregate"
	"github.com/sentibridge/oracle/internal/chain"
	"github.com/sentibridge/oracle/internal/config"
	"github.com/sentibridge/oracle/internal/domain"
	"github.com/sentibridge/oracle/internal/ingest"
	"github.com/sentibridge/oracle/internal/manipulation"
	"github.com/sentibridge/oracle/internal/scoring"
	"github.com/sentibridge/oracle/internal/store"
	"github.com/sentibridge/oracle/internal/temporalflow"
)

const version = "0.1.0"

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("SENTIBRIDGE_ENV") == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting sentiment oracle temporal worker", "version", version)

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

	activities := temporalflow.NewActivities(collectors, dedup, scorer, aggregator, detector, submitter, temporalflow.Config{
		ScorerWorkers:   0,
		ChainID:         cfg.Chain.ChainID,
		ContractAddress: cfg.Chain.ContractAddress,
		GasCeiling:      cfg.Chain.GasCeiling,
	}, logger)

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Error("failed to dial temporal", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
	temporalflow.RegisterWorkflows(w)
	temporalflow.RegisterActivities(w, activities)

	if err := w.Start(); err != nil {
		logger.Error("failed to start temporal worker", "error", err)
		os.Exit(1)
	}
	logger.Info("temporal worker started", "task_queue", cfg.Temporal.TaskQueue)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig)
	cancel()
	w.Stop()
	logger.Info("temporal worker shutdown complete")
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
