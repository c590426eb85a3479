package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sentibridge/oracle/internal/domain"
)

// TxLogStore persists the Submitter's transaction-watcher log.
type TxLogStore struct {
	db *DB
}

// NewTxLogStore constructs a TxLogStore.
func NewTxLogStore(db *DB) *TxLogStore {
	return &TxLogStore{db: db}
}

var _ domain.TxLogStore = (*TxLogStore)(nil)

// RecordTx implements domain.TxLogStore. ScoresFP/ConfidencesBP/SampleSizes
// are persisted alongside Assets (comma-joined, index-aligned) so a
// reconciliation resubmit can later replay the exact signed payload instead
// of a placeholder.
func (s *TxLogStore) RecordTx(ctx context.Context, rec domain.TxRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tx_log (hash, chain_id, signer_address, nonce, status, assets, scores_fp, confidences_bp, sample_sizes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (hash) DO UPDATE SET status = $5, updated_at = $11`,
		rec.Hash, rec.ChainID, rec.SignerAddress, int64(rec.Nonce), string(rec.Status), strings.Join(rec.Assets, ","),
		joinInt64s(rec.ScoresFP), joinUint32s(rec.ConfidencesBP), joinInts(rec.SampleSizes), rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// UpdateStatus implements domain.TxLogStore.
func (s *TxLogStore) UpdateStatus(ctx context.Context, hash string, status domain.TxStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tx_log SET status = $1, updated_at = now() WHERE hash = $2`,
		string(status), hash,
	)
	return err
}

// PendingByNonce implements domain.TxLogStore, returning transactions not
// yet in a terminal state for a given signer, ordered by nonce — used to
// resubmit from the lowest unconfirmed nonce after a reorg.
func (s *TxLogStore) PendingByNonce(ctx context.Context, chainID int64, signer string) ([]domain.TxRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, chain_id, signer_address, nonce, status, assets, scores_fp, confidences_bp, sample_sizes, created_at, updated_at FROM tx_log
		 WHERE chain_id = $1 AND signer_address = $2 AND status NOT IN ($3, $4, $5) ORDER BY nonce ASC`,
		chainID, signer, string(domain.TxConfirmed), string(domain.TxReverted), string(domain.TxDropped),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending tx log: %w", err)
	}
	defer rows.Close()

	var out []domain.TxRecord
	for rows.Next() {
		var rec domain.TxRecord
		var nonce int64
		var status, assets, scoresFP, confidencesBP, sampleSizes string
		if err := rows.Scan(&rec.Hash, &rec.ChainID, &rec.SignerAddress, &nonce, &status, &assets, &scoresFP, &confidencesBP, &sampleSizes, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Nonce = uint64(nonce)
		rec.Status = domain.TxStatus(status)
		if assets != "" {
			rec.Assets = strings.Split(assets, ",")
		}
		rec.ScoresFP = splitInt64s(scoresFP)
		rec.ConfidencesBP = splitUint32s(confidencesBP)
		rec.SampleSizes = splitInts(sampleSizes)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func joinInt64s(vs []int64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

func joinUint32s(vs []uint32) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) []int {
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, len(fields))
	for i, f := range fields {
		v, _ := strconv.Atoi(f)
		out[i] = v
	}
	return out
}

func splitInt64s(s string) []int64 {
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	out := make([]int64, len(fields))
	for i, f := range fields {
		v, _ := strconv.ParseInt(f, 10, 64)
		out[i] = v
	}
	return out
}

func splitUint32s(s string) []uint32 {
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	out := make([]uint32, len(fields))
	for i, f := range fields {
		v, _ := strconv.ParseUint(f, 10, 32)
		out[i] = uint32(v)
	}
	return out
}
