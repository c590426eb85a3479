package domain

import (
	"context"
	"time"
)

// DeduplicationStore persists the Deduplicator's seen-set so a restart does
// not immediately re-admit items still inside the dedup horizon. Tolerant of
// truncation: losing recent entries only costs re-observing them once more.
type DeduplicationStore interface {
	// Append records an item id as first-seen at ts. Append-only.
	Append(ctx context.Context, itemID string, firstSeenTS time.Time) error

	// LoadSince returns all (id, first_seen_ts) pairs with first_seen_ts
	// at or after the given horizon cutoff, for rebuilding the in-memory set.
	LoadSince(ctx context.Context, cutoff time.Time) (map[string]time.Time, error)

	// PruneBefore deletes entries older than cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) error
}

// NonceStore persists NonceState: next_nonce per (chain, signer-address).
type NonceStore interface {
	// GetNextNonce returns the last-known next nonce for a signer, or
	// ErrNotFound if none is recorded yet.
	GetNextNonce(ctx context.Context, chainID int64, signer string) (uint64, error)

	// SetNextNonce records the next nonce to use for a signer.
	SetNextNonce(ctx context.Context, chainID int64, signer string, nonce uint64) error
}

// TxLogStore persists the Submitter's transaction-watcher log:
// (tx_hash, nonce, status, ts). Tolerant of truncation.
type TxLogStore interface {
	RecordTx(ctx context.Context, rec TxRecord) error
	UpdateStatus(ctx context.Context, hash string, status TxStatus) error
	PendingByNonce(ctx context.Context, chainID int64, signer string) ([]TxRecord, error)
}

// SampleHistoryStore persists accepted AssetSamples for the circular-history
// read surface (latest / last-N / staleness), mirroring the contract's own
// ring buffer off-chain for operator visibility.
type SampleHistoryStore interface {
	RecordAccepted(ctx context.Context, asset string, entry OracleEntry) error
	Latest(ctx context.Context, asset string) (OracleEntry, error)
	History(ctx context.Context, asset string, n int) ([]OracleEntry, error)
}
