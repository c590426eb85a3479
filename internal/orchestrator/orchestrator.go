// Package orchestrator drives the pipeline in fixed-interval cycles:
// collection -> dedup -> scoring -> aggregation -> manipulation check ->
// submission.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentibridge/oracle/internal/aggregate"
	"github.com/sentibridge/oracle/internal/domain"
	"github.com/sentibridge/oracle/internal/ingest"
	"github.com/sentibridge/oracle/internal/manipulation"
	"github.com/sentibridge/oracle/internal/scoring"
)

// Submitter is the narrow interface the Orchestrator needs from the chain
// package, letting it reference stages only — never the reverse.
type Submitter interface {
	Submit(ctx context.Context, job domain.SubmissionJob) ([]string, error)

	// Reconcile detects a nonce gap or stall against the chain's reported
	// pending nonce and resubmits from the lowest unconfirmed nonce. Called
	// once per cycle before submission, per the nonce-management design.
	Reconcile(ctx context.Context, chainID int64) error
}

// Config governs cycle timing and chain parameters.
type Config struct {
	Period          time.Duration // P
	Jitter          time.Duration // epsilon
	ScorerWorkers   int
	ChainID         int64
	ContractAddress string
	GasCeiling      uint64
	Assets          []string // cohort
}

// Metrics counts cycle-level outcomes for operator visibility.
// SamplesSubmitted is incremented by the number of transaction hashes the
// Submitter returns (one per broadcast batch), not by the number of samples
// in those batches.
type Metrics struct {
	CyclesRun        atomic.Int64
	CycleTimeouts    atomic.Int64
	SamplesVetoed    atomic.Int64
	SamplesSubmitted atomic.Int64
}

// Orchestrator drives one cohort's cycles. It references stage interfaces
// only; stages never reference the Orchestrator back.
type Orchestrator struct {
	collectors []ingest.Collector
	dedup      *ingest.Deduplicator
	scorer     *scoring.Scorer
	aggregator *aggregate.Aggregator
	detector   *manipulation.Detector
	submitter  Submitter

	cfg     Config
	logger  *slog.Logger
	Metrics Metrics

	cycleMu sync.Mutex // held for the duration of one cycle; ticks that arrive while held are coalesced
}

// New constructs an Orchestrator for one cohort.
func New(
	collectors []ingest.Collector,
	dedup *ingest.Deduplicator,
	scorer *scoring.Scorer,
	aggregator *aggregate.Aggregator,
	detector *manipulation.Detector,
	submitter Submitter,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		collectors: collectors,
		dedup:      dedup,
		scorer:     scorer,
		aggregator: aggregator,
		detector:   detector,
		submitter:  submitter,
		cfg:        cfg,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Run drives cycles at the configured period until ctx is cancelled. Late
// cycles are coalesced (dropped), never queued: if the previous cycle is
// still running when the ticker fires, that tick is skipped.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Period)
	defer ticker.Stop()

	o.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !o.cycleMu.TryLock() {
				o.logger.Warn("cycle tick skipped: previous cycle still running")
				continue
			}
			o.runCycleLocked(ctx)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	o.cycleMu.Lock()
	o.runCycleLocked(ctx)
}

func (o *Orchestrator) runCycleLocked(ctx context.Context) {
	defer o.cycleMu.Unlock()

	now := time.Now()
	deadline := now.Add(o.cfg.Period - o.cfg.Jitter)
	cycleCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	o.Metrics.CyclesRun.Add(1)
	windowStart := now.Add(-o.cfg.Period)

	if err := o.submitter.Reconcile(cycleCtx, o.cfg.ChainID); err != nil {
		o.logger.Warn("nonce reconciliation failed, proceeding with cached nonce state", "error", err)
	}

	items := o.collect(cycleCtx, windowStart, now)
	items = o.dedup.Filter(cycleCtx, items)

	scored := o.scorer.ScoreBatch(cycleCtx, items, o.cfg.ScorerWorkers)

	samples := o.aggregator.Fold(scored, now.Unix())
	itemsByAsset := groupByAsset(scored)

	surviving := make([]domain.AssetSample, 0, len(samples))
	for _, sample := range samples {
		score, _ := o.detector.Evaluate(sample.Asset, itemsByAsset[sample.Asset])
		sample.ManipulationScore = score
		if o.detector.Vetoed(score) {
			o.Metrics.SamplesVetoed.Add(1)
			continue
		}
		if !sample.Valid() {
			o.logger.Warn("sample failed invariant check, dropping", "asset", sample.Asset)
			continue
		}
		surviving = append(surviving, sample)
	}

	if len(surviving) == 0 {
		return
	}

	job := domain.SubmissionJob{
		Samples:         surviving,
		ChainID:         o.cfg.ChainID,
		ContractAddress: o.cfg.ContractAddress,
		GasCeiling:      o.cfg.GasCeiling,
		Deadline:        deadline,
	}

	txHashes, err := o.submitSubjectToDeadline(ctx, cycleCtx, job)
	if err != nil {
		o.logger.Error("submission failed", "error", err)
		return
	}
	o.Metrics.SamplesSubmitted.Add(int64(len(txHashes)))
}

// submitSubjectToDeadline hands the job to the Submitter using the parent
// ctx (not cycleCtx): the Submitter's in-flight broadcast is allowed to
// complete past the cycle deadline since it holds on-chain nonce
// commitments, but a timeout is still recorded if confirmation hasn't
// landed by the cycle's own deadline.
func (o *Orchestrator) submitSubjectToDeadline(ctx, cycleCtx context.Context, job domain.SubmissionJob) ([]string, error) {
	done := make(chan struct{})
	var hashes []string
	var err error

	go func() {
		hashes, err = o.submitter.Submit(ctx, job)
		close(done)
	}()

	select {
	case <-done:
		return hashes, err
	case <-cycleCtx.Done():
		o.Metrics.CycleTimeouts.Add(1)
		<-done // still wait for the in-flight submission to finish per the cancellation policy
		return hashes, err
	}
}

// collect fans out to all registered collectors concurrently with the cycle
// window via errgroup. A collector error (terminal, or transient once the
// collector's own retries are used up) is logged and that source is skipped
// for the cycle; no collector error cancels the others.
func (o *Orchestrator) collect(ctx context.Context, windowStart, windowEnd time.Time) []domain.Item {
	var mu sync.Mutex
	var all []domain.Item

	g, gctx := errgroup.WithContext(ctx)
	for _, collector := range o.collectors {
		collector := collector
		g.Go(func() error {
			items, _, err := collector.Collect(gctx, windowStart, windowEnd, o.cfg.Assets)
			if err != nil {
				o.logger.Warn("collector failed for cycle, skipping source", "source", collector.Source(), "error", err)
				return nil // terminal source errors never fail the whole cycle
			}
			mu.Lock()
			all = append(all, items...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // errors are already logged and absorbed per-source above

	return all
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
