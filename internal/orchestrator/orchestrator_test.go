package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sentibridge/oracle/internal/aggregate"
	"github.com/sentibridge/oracle/internal/domain"
	"github.com/sentibridge/oracle/internal/ingest"
	"github.com/sentibridge/oracle/internal/manipulation"
	"github.com/sentibridge/oracle/internal/scoring"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCollector struct {
	source domain.Source
	items  []domain.Item
}

func (f *fakeCollector) Source() domain.Source { return f.source }

func (f *fakeCollector) Collect(ctx context.Context, windowStart, windowEnd time.Time, assets []string) ([]domain.Item, ingest.Cursor, error) {
	return f.items, "", nil
}

type captureSubmitter struct {
	lastJob domain.SubmissionJob
	called  int
}

func (c *captureSubmitter) Submit(ctx context.Context, job domain.SubmissionJob) ([]string, error) {
	c.lastJob = job
	c.called++
	return []string{"0xfaketx"}, nil
}

func (c *captureSubmitter) Reconcile(ctx context.Context, chainID int64) error {
	return nil
}

func buildOrchestrator(t *testing.T, collector *fakeCollector, submitter Submitter) *Orchestrator {
	t.Helper()
	logger := testLogger()
	dedup := ingest.NewDeduplicator(ingest.DefaultDeduplicatorConfig(), nil, logger)
	scorer := scoring.New(nil, scoring.NewLexiconScorer(), scoring.DefaultConfig(), logger)
	agg := aggregate.New(logger)
	detector := manipulation.New(manipulation.DefaultConfig(), logger)

	cfg := Config{
		Period:          300 * time.Second,
		Jitter:          10 * time.Second,
		ScorerWorkers:   4,
		ChainID:         1,
		ContractAddress: "0x0000000000000000000000000000000000000001",
		GasCeiling:      2_000_000,
		Assets:          []string{"$BTC"},
	}

	return New([]ingest.Collector{collector}, dedup, scorer, agg, detector, submitter, cfg, logger)
}

func TestOrchestratorHappyPathSubmits(t *testing.T) {
	now := time.Now()
	items := make([]domain.Item, 10)
	for i := range items {
		items[i] = domain.Item{
			ID:           time.Now().Format(time.RFC3339Nano) + string(rune('a'+i)),
			Source:       domain.SourceNews,
			Text:         "stable rally ahead",
			AuthorWeight: 0.5,
			CreatedAt:    now.Add(-time.Duration(i) * time.Second),
			AssetTags:    []string{"$BTC"},
		}
	}

	collector := &fakeCollector{source: domain.SourceNews, items: items}
	submitter := &captureSubmitter{}
	o := buildOrchestrator(t, collector, submitter)

	o.runCycle(context.Background())

	if submitter.called != 1 {
		t.Fatalf("expected exactly 1 submission call, got %d", submitter.called)
	}
	if len(submitter.lastJob.Samples) != 1 {
		t.Fatalf("expected 1 surviving sample, got %d", len(submitter.lastJob.Samples))
	}
}

func TestOrchestratorNoItemsNoSubmission(t *testing.T) {
	collector := &fakeCollector{source: domain.SourceNews, items: nil}
	submitter := &captureSubmitter{}
	o := buildOrchestrator(t, collector, submitter)

	o.runCycle(context.Background())

	if submitter.called != 0 {
		t.Fatalf("expected no submission when no items collected, got %d calls", submitter.called)
	}
}

func TestOrchestratorCoalescesLateTicks(t *testing.T) {
	collector := &fakeCollector{source: domain.SourceNews, items: nil}
	submitter := &captureSubmitter{}
	o := buildOrchestrator(t, collector, submitter)

	if !o.cycleMu.TryLock() {
		t.Fatalf("expected to acquire cycle lock")
	}
	defer o.cycleMu.Unlock()

	if o.cycleMu.TryLock() {
		t.Fatalf("expected a concurrent cycle attempt to be coalesced (lock already held)")
	}
}
