package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sentibridge/oracle/internal/domain"
)

// NonceStore persists NonceState keyed by (chain, signer-address).
type NonceStore struct {
	db *DB
}

// NewNonceStore constructs a NonceStore.
func NewNonceStore(db *DB) *NonceStore {
	return &NonceStore{db: db}
}

var _ domain.NonceStore = (*NonceStore)(nil)

// GetNextNonce implements domain.NonceStore.
func (s *NonceStore) GetNextNonce(ctx context.Context, chainID int64, signer string) (uint64, error) {
	var nonce int64
	err := s.db.QueryRowContext(ctx,
		`SELECT next_nonce FROM nonce_state WHERE chain_id = $1 AND signer_address = $2`,
		chainID, signer,
	).Scan(&nonce)
	if err == sql.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get next nonce: %w", err)
	}
	return uint64(nonce), nil
}

// SetNextNonce implements domain.NonceStore.
func (s *NonceStore) SetNextNonce(ctx context.Context, chainID int64, signer string, nonce uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nonce_state (chain_id, signer_address, next_nonce, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (chain_id, signer_address)
		 DO UPDATE SET next_nonce = $3, updated_at = now()`,
		chainID, signer, int64(nonce),
	)
	return err
}
