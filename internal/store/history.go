package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sentibridge/oracle/internal/domain"
)

// SampleHistoryStore persists accepted AssetSamples for the read surface
// (latest / last-N / staleness) off-chain, mirroring the contract's own
// circular-history ring for operator visibility without an RPC round trip.
type SampleHistoryStore struct {
	db *DB
}

// NewSampleHistoryStore constructs a SampleHistoryStore.
func NewSampleHistoryStore(db *DB) *SampleHistoryStore {
	return &SampleHistoryStore{db: db}
}

var _ domain.SampleHistoryStore = (*SampleHistoryStore)(nil)

// RecordAccepted implements domain.SampleHistoryStore.
func (s *SampleHistoryStore) RecordAccepted(ctx context.Context, asset string, entry domain.OracleEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sample_history (asset, score, "timestamp", sample_size, confidence)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (asset, "timestamp") DO NOTHING`,
		asset, entry.Score, int64(entry.Timestamp), int(entry.SampleSize), int(entry.Confidence),
	)
	return err
}

// Latest implements domain.SampleHistoryStore.
func (s *SampleHistoryStore) Latest(ctx context.Context, asset string) (domain.OracleEntry, error) {
	var entry domain.OracleEntry
	var ts, sampleSize, confidence int64
	err := s.db.QueryRowContext(ctx,
		`SELECT score, "timestamp", sample_size, confidence FROM sample_history
		 WHERE asset = $1 ORDER BY "timestamp" DESC LIMIT 1`,
		asset,
	).Scan(&entry.Score, &ts, &sampleSize, &confidence)
	if err == sql.ErrNoRows {
		return domain.OracleEntry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OracleEntry{}, fmt.Errorf("latest sample: %w", err)
	}
	entry.Timestamp = uint64(ts)
	entry.SampleSize = uint32(sampleSize)
	entry.Confidence = uint16(confidence)
	return entry, nil
}

// History implements domain.SampleHistoryStore, returning up to n entries
// newest first, matching the contract's own read-surface ordering.
func (s *SampleHistoryStore) History(ctx context.Context, asset string, n int) ([]domain.OracleEntry, error) {
	if n > domain.CircularHistoryCapacity {
		n = domain.CircularHistoryCapacity
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT score, "timestamp", sample_size, confidence FROM sample_history
		 WHERE asset = $1 ORDER BY "timestamp" DESC LIMIT $2`,
		asset, n,
	)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	var out []domain.OracleEntry
	for rows.Next() {
		var e domain.OracleEntry
		var ts, sampleSize, confidence int64
		if err := rows.Scan(&e.Score, &ts, &sampleSize, &confidence); err != nil {
			return nil, err
		}
		e.Timestamp = uint64(ts)
		e.SampleSize = uint32(sampleSize)
		e.Confidence = uint16(confidence)
		out = append(out, e)
	}
	return out, rows.Err()
}
