// Package ingest implements the Collector abstraction, its per-source rate
// limiting, and the Deduplicator shared across all collectors in a cycle.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

// DeduplicatorConfig configures the seen-set horizon and capacity.
type DeduplicatorConfig struct {
	Horizon  time.Duration
	Capacity int
}

// DefaultDeduplicatorConfig matches the configuration table's defaults.
func DefaultDeduplicatorConfig() DeduplicatorConfig {
	return DeduplicatorConfig{
		Horizon:  24 * time.Hour,
		Capacity: 1_000_000,
	}
}

// Deduplicator maintains a size-capped map of Item.id -> first-seen-ts with
// horizon H. Safe for concurrent inserts from multiple collectors. Eviction
// is lazy: entries past the horizon are dropped on access, not on a timer.
type Deduplicator struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	cfg      DeduplicatorConfig
	store    domain.DeduplicationStore
	logger   *slog.Logger
}

// NewDeduplicator constructs a Deduplicator, optionally backed by a
// persistent store for restart recovery. store may be nil.
func NewDeduplicator(cfg DeduplicatorConfig, store domain.DeduplicationStore, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		seen:   make(map[string]time.Time),
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "deduplicator"),
	}
}

// Restore rebuilds the in-memory seen-set from the persistent store. Safe to
// call once at startup; a failed or empty store just means a cold cache.
func (d *Deduplicator) Restore(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	cutoff := time.Now().Add(-d.cfg.Horizon)
	entries, err := d.store.LoadSince(ctx, cutoff)
	if err != nil {
		d.logger.Warn("dedup store restore failed, starting cold", "error", err)
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ts := range entries {
		d.seen[id] = ts
	}
	d.logger.Info("dedup store restored", "entries", len(entries))
	return nil
}

// Filter removes items whose id is already present (within the horizon),
// recording first-seen-ts for the rest. Returns the surviving items in their
// input order.
func (d *Deduplicator) Filter(ctx context.Context, items []domain.Item) []domain.Item {
	now := time.Now()
	horizonCutoff := now.Add(-d.cfg.Horizon)

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if ts, ok := d.seen[it.ID]; ok {
			if ts.Before(horizonCutoff) {
				// Past horizon: lazily evict, then re-admit as new.
				delete(d.seen, it.ID)
			} else {
				continue
			}
		}
		d.seen[it.ID] = now
		out = append(out, it)

		if d.store != nil {
			if err := d.store.Append(ctx, it.ID, now); err != nil {
				d.logger.Warn("dedup store append failed", "item_id", it.ID, "error", err)
			}
		}
	}

	if len(d.seen) > d.cfg.Capacity {
		d.evictOldest(len(d.seen) - d.cfg.Capacity)
	}

	return out
}

// evictOldest drops the n oldest entries once the capacity budget is
// exceeded. Must be called with mu held.
func (d *Deduplicator) evictOldest(n int) {
	type idTS struct {
		id string
		ts time.Time
	}
	candidates := make([]idTS, 0, len(d.seen))
	for id, ts := range d.seen {
		candidates = append(candidates, idTS{id, ts})
	}
	for i := 0; i < n && i < len(candidates); i++ {
		oldestIdx := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].ts.Before(candidates[oldestIdx].ts) {
				oldestIdx = j
			}
		}
		candidates[i], candidates[oldestIdx] = candidates[oldestIdx], candidates[i]
		delete(d.seen, candidates[i].id)
	}
}

// Size returns the current number of tracked ids.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// PruneExpired drops entries past the horizon and mirrors the prune to the
// persistent store. Intended to be called periodically, not per-item.
func (d *Deduplicator) PruneExpired(ctx context.Context) int {
	cutoff := time.Now().Add(-d.cfg.Horizon)

	d.mu.Lock()
	pruned := 0
	for id, ts := range d.seen {
		if ts.Before(cutoff) {
			delete(d.seen, id)
			pruned++
		}
	}
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.PruneBefore(ctx, cutoff); err != nil {
			d.logger.Warn("dedup store prune failed", "error", err)
		}
	}
	return pruned
}
