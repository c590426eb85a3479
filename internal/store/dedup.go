package store

import (
	"context"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

// DedupStore persists the Deduplicator's seen-set as an append-only table.
type DedupStore struct {
	db *DB
}

// NewDedupStore constructs a DedupStore.
func NewDedupStore(db *DB) *DedupStore {
	return &DedupStore{db: db}
}

var _ domain.DeduplicationStore = (*DedupStore)(nil)

// Append implements domain.DeduplicationStore.
func (s *DedupStore) Append(ctx context.Context, itemID string, firstSeenTS time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup_entries (item_id, first_seen_ts) VALUES ($1, $2)
		 ON CONFLICT (item_id) DO NOTHING`,
		itemID, firstSeenTS,
	)
	return err
}

// LoadSince implements domain.DeduplicationStore.
func (s *DedupStore) LoadSince(ctx context.Context, cutoff time.Time) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, first_seen_ts FROM dedup_entries WHERE first_seen_ts >= $1`,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var ts time.Time
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, err
		}
		out[id] = ts
	}
	return out, rows.Err()
}

// PruneBefore implements domain.DeduplicationStore.
func (s *DedupStore) PruneBefore(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup_entries WHERE first_seen_ts < $1`, cutoff)
	return err
}
