package ingest

import (
	"context"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

// DefaultMaxItemsPerCycle caps how many items a single Collector may return
// in one cycle.
const DefaultMaxItemsPerCycle = 10_000

// Cursor is an opaque, source-specific continuation token. Collectors that
// support incremental fetching stash pagination state here; the Orchestrator
// never interprets it.
type Cursor string

// Collector is the abstract source of Items. Implementations MUST return
// items in stable order by CreatedAt and MUST NOT call the Scorer or persist
// results — they are pure sources.
type Collector interface {
	// Source identifies which enumerated source this collector serves.
	Source() domain.Source

	// Collect fetches a bounded batch of items tagged with one of assets,
	// created within the closed-open window [windowStart, windowEnd).
	// Replaying the same window must yield a deterministic superset.
	Collect(ctx context.Context, windowStart, windowEnd time.Time, assets []string) (items []domain.Item, next Cursor, err error)
}
