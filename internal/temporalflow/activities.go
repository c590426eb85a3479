// Package temporalflow offers the same collect/dedup/score/aggregate/detect/
// submit cycle as internal/orchestrator, driven by a Temporal workflow
// instead of an in-process ticker. The activities call straight into the
// same stage types the ticker orchestrator uses; this is an alternate
// entrypoint, not a parallel implementation of the cycle.
package temporalflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentibridge/oracle/internal/aggregate"
	"github.com/sentibridge/oracle/internal/domain"
	"github.com/sentibridge/oracle/internal/ingest"
	"github.com/sentibridge/oracle/internal/manipulation"
	"github.com/sentibridge/oracle/internal/scoring"
)

// Submitter is the narrow interface the activities need from the chain
// package, mirroring internal/orchestrator.Submitter.
type Submitter interface {
	Submit(ctx context.Context, job domain.SubmissionJob) ([]string, error)
	Reconcile(ctx context.Context, chainID int64) error
}

// Config governs the activities' chain-level parameters. ScorerWorkers
// bounds the scoring worker pool the same way orchestrator.Config does.
type Config struct {
	ScorerWorkers   int
	ChainID         int64
	ContractAddress string
	GasCeiling      uint64
}

// Activities bundles the stage implementations behind Temporal-compatible
// methods. Register an instance with worker.RegisterActivity, not the bare
// functions, since the stages carry state (dedup seen-set, manipulation
// history) that must persist across activity invocations within a worker.
type Activities struct {
	collectors []ingest.Collector
	dedup      *ingest.Deduplicator
	scorer     *scoring.Scorer
	aggregator *aggregate.Aggregator
	detector   *manipulation.Detector
	submitter  Submitter
	cfg        Config
	logger     *slog.Logger
}

// NewActivities constructs an Activities bundle.
func NewActivities(
	collectors []ingest.Collector,
	dedup *ingest.Deduplicator,
	scorer *scoring.Scorer,
	aggregator *aggregate.Aggregator,
	detector *manipulation.Detector,
	submitter Submitter,
	cfg Config,
	logger *slog.Logger,
) *Activities {
	return &Activities{
		collectors: collectors,
		dedup:      dedup,
		scorer:     scorer,
		aggregator: aggregator,
		detector:   detector,
		submitter:  submitter,
		cfg:        cfg,
		logger:     logger.With("component", "temporalflow_activities"),
	}
}

// ReconcileInput is ReconcileActivity's argument.
type ReconcileInput struct {
	ChainID int64
}

// ReconcileActivity detects and repairs a nonce gap before the cycle
// collects new items, mirroring internal/orchestrator.runCycleLocked's
// pre-collect reconciliation step.
func (a *Activities) ReconcileActivity(ctx context.Context, in ReconcileInput) error {
	return a.submitter.Reconcile(ctx, in.ChainID)
}

// CollectInput is CollectActivity's argument; all fields must round-trip
// through Temporal's payload codec, so no interfaces or unexported types.
type CollectInput struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Assets      []string
}

// CollectOutput is CollectActivity's result.
type CollectOutput struct {
	Items []domain.Item
}

// CollectActivity fans out to every registered collector concurrently,
// absorbing per-source terminal errors the same way
// internal/orchestrator.collect does — a single misbehaving source must
// never fail the whole cycle.
func (a *Activities) CollectActivity(ctx context.Context, in CollectInput) (CollectOutput, error) {
	var mu sync.Mutex
	var all []domain.Item

	g, gctx := errgroup.WithContext(ctx)
	for _, collector := range a.collectors {
		collector := collector
		g.Go(func() error {
			items, _, err := collector.Collect(gctx, in.WindowStart, in.WindowEnd, in.Assets)
			if err != nil {
				a.logger.Warn("collector failed for cycle, skipping source", "source", collector.Source(), "error", err)
				return nil
			}
			mu.Lock()
			all = append(all, items...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return CollectOutput{Items: all}, nil
}

// DedupInput is DedupActivity's argument.
type DedupInput struct {
	Items []domain.Item
}

// DedupOutput is DedupActivity's result.
type DedupOutput struct {
	Items []domain.Item
}

// DedupActivity removes items already seen within the dedup horizon.
func (a *Activities) DedupActivity(ctx context.Context, in DedupInput) (DedupOutput, error) {
	return DedupOutput{Items: a.dedup.Filter(ctx, in.Items)}, nil
}

// ScoreInput is ScoreActivity's argument.
type ScoreInput struct {
	Items []domain.Item
}

// ScoreOutput is ScoreActivity's result.
type ScoreOutput struct {
	Items []domain.ScoredItem
}

// ScoreActivity runs the ensemble scorer over a batch with a bounded worker
// pool, preserving input order.
func (a *Activities) ScoreActivity(ctx context.Context, in ScoreInput) (ScoreOutput, error) {
	return ScoreOutput{Items: a.scorer.ScoreBatch(ctx, in.Items, a.cfg.ScorerWorkers)}, nil
}

// AggregateInput is AggregateActivity's argument.
type AggregateInput struct {
	Items       []domain.ScoredItem
	WindowEndTS int64
}

// AggregateOutput is AggregateActivity's result.
type AggregateOutput struct {
	Samples []domain.AssetSample
}

// AggregateActivity folds scored items into one AssetSample per asset.
func (a *Activities) AggregateActivity(ctx context.Context, in AggregateInput) (AggregateOutput, error) {
	return AggregateOutput{Samples: a.aggregator.Fold(in.Items, in.WindowEndTS)}, nil
}

// DetectInput is DetectActivity's argument: one asset's current-cycle items.
type DetectInput struct {
	Asset string
	Items []domain.ScoredItem
}

// DetectOutput is DetectActivity's result.
type DetectOutput struct {
	Score  float64
	Vetoed bool
}

// DetectActivity evaluates the manipulation score for one asset. It is
// invoked once per asset from the workflow rather than batched, so that a
// single asset's detection failure (caught by Temporal's retry policy)
// never blocks the others.
func (a *Activities) DetectActivity(ctx context.Context, in DetectInput) (DetectOutput, error) {
	score, _ := a.detector.Evaluate(in.Asset, in.Items)
	return DetectOutput{Score: score, Vetoed: a.detector.Vetoed(score)}, nil
}

// SubmitInput is SubmitActivity's argument.
type SubmitInput struct {
	Samples  []domain.AssetSample
	Deadline time.Time
}

// SubmitOutput is SubmitActivity's result.
type SubmitOutput struct {
	TxHashes []string
}

// SubmitActivity hands the surviving samples to the chain submitter.
func (a *Activities) SubmitActivity(ctx context.Context, in SubmitInput) (SubmitOutput, error) {
	job := domain.SubmissionJob{
		Samples:         in.Samples,
		ChainID:         a.cfg.ChainID,
		ContractAddress: a.cfg.ContractAddress,
		GasCeiling:      a.cfg.GasCeiling,
		Deadline:        in.Deadline,
	}
	hashes, err := a.submitter.Submit(ctx, job)
	if err != nil {
		return SubmitOutput{}, err
	}
	return SubmitOutput{TxHashes: hashes}, nil
}

func groupByAsset(items []domain.ScoredItem) map[string][]domain.ScoredItem {
	out := make(map[string][]domain.ScoredItem)
	for _, it := range items {
		for _, asset := range it.AssetTags {
			out[asset] = append(out[asset], it)
		}
	}
	return out
}
