package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

func newTestDeduplicator() *Deduplicator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDeduplicator(DefaultDeduplicatorConfig(), nil, logger)
}

func TestDeduplicatorDropsRepeats(t *testing.T) {
	d := newTestDeduplicator()
	ctx := context.Background()

	items := []domain.Item{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "two"},
	}

	first := d.Filter(ctx, items)
	if len(first) != 2 {
		t.Fatalf("expected 2 surviving items, got %d", len(first))
	}

	second := d.Filter(ctx, items)
	if len(second) != 0 {
		t.Fatalf("expected 0 surviving items on replay, got %d", len(second))
	}
}

func TestDeduplicatorFloodCollapsesToDistinctCount(t *testing.T) {
	d := newTestDeduplicator()
	ctx := context.Background()

	base := make([]domain.Item, 100)
	for i := range base {
		base[i] = domain.Item{ID: fmt.Sprintf("item-%d", i)}
	}

	total := 0
	for rep := 0; rep < 5; rep++ {
		total += len(d.Filter(ctx, base))
	}

	if total != 100 {
		t.Fatalf("expected 100 distinct survivors across 5 repeats, got %d", total)
	}
}

func TestDeduplicatorEvictsPastHorizon(t *testing.T) {
	d := newTestDeduplicator()
	d.cfg.Horizon = time.Millisecond
	ctx := context.Background()

	item := domain.Item{ID: "expiring"}
	d.Filter(ctx, []domain.Item{item})

	time.Sleep(5 * time.Millisecond)

	survivors := d.Filter(ctx, []domain.Item{item})
	if len(survivors) != 1 {
		t.Fatalf("expected item to be re-admitted after horizon expiry, got %d survivors", len(survivors))
	}
}
