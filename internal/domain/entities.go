// Package domain contains the core business entities shared across the
// sentiment oracle pipeline: items harvested from sources, their scored and
// aggregated forms, and the records that eventually reach the chain.
package domain

import (
	"errors"
	"time"
)

// Common errors returned by domain-level validation.
var (
	ErrNotFound = errors.New("entity not found")
	ErrInvalid  = errors.New("invalid entity")
)

// Fixed-point scale for AssetSample.ScoreFP / OracleEntry.Score. Scores are
// represented on-chain as int128 in [-ScoreScale, +ScoreScale].
const ScoreScale = 1_000_000_000_000_000_000 // 10^18

// ConfidenceScale is the basis-point scale for confidence values: an integer
// in [0, ConfidenceScale].
const ConfidenceScale = 10_000

// Source identifies where an Item was harvested from.
type Source string

const (
	SourceNews       Source = "news"
	SourceTwitterLike Source = "twitter-like"
	SourceChatA      Source = "chat-a"
	SourceChatB      Source = "chat-b"
	SourceInternal   Source = "internal"
)

// Item is one social/news post pulled from a Collector.
type Item struct {
	ID           string            `json:"id"`
	Source       Source            `json:"source"`
	Text         string            `json:"text"`
	AuthorID     string            `json:"author_id"`
	AuthorWeight float64           `json:"author_weight"`
	CreatedAt    time.Time         `json:"created_at"`
	AssetTags    []string          `json:"asset_tags"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// MaxItemTextBytes is the implementation-defined text truncation cap.
const MaxItemTextBytes = 4096

// Truncate clamps Text to MaxItemTextBytes, respecting UTF-8 boundaries.
func (it *Item) Truncate() {
	if len(it.Text) <= MaxItemTextBytes {
		return
	}
	b := []byte(it.Text)[:MaxItemTextBytes]
	for len(b) > 0 && !utf8RuneStart(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	it.Text = string(b)
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// ScoredItem is an Item plus the Scorer's ensemble output.
type ScoredItem struct {
	Item
	Polarity   float64 `json:"polarity"`   // [-1, +1]
	Confidence float64 `json:"confidence"` // [0, 1]
	Degraded   bool    `json:"degraded"`   // true if primary model was unavailable
}

// AssetSample is the Aggregator's per-(asset,window) output.
type AssetSample struct {
	Asset             string  `json:"asset"`
	ScoreFP           int64   `json:"score_fp"`
	ConfidenceBP      uint32  `json:"confidence_bp"`
	SampleSize        int     `json:"sample_size"`
	WindowEndTS       int64   `json:"window_end_ts"`
	ManipulationScore float64 `json:"manipulation_score"`
}

// Valid reports whether the sample satisfies the invariants in the data model:
// sample_size >= 1, |score_fp| <= ScoreScale, confidence_bp <= ConfidenceScale.
func (s AssetSample) Valid() bool {
	if s.SampleSize < 1 {
		return false
	}
	if s.ScoreFP > ScoreScale || s.ScoreFP < -ScoreScale {
		return false
	}
	if s.ConfidenceBP > ConfidenceScale {
		return false
	}
	return true
}

// SubmissionJob is the Submitter's unit of work: samples that survived
// manipulation screening, plus the chain-level parameters for this cycle.
type SubmissionJob struct {
	Samples         []AssetSample
	ChainID         int64
	ContractAddress string
	GasCeiling      uint64
	Deadline        time.Time
}

// OracleEntry mirrors the on-chain record for one asset.
type OracleEntry struct {
	Score      int64  `json:"score"`
	Timestamp  uint64 `json:"timestamp"`
	SampleSize uint32 `json:"sample_size"`
	Confidence uint16 `json:"confidence"`
}

// CircularHistoryCapacity is the fixed ring-buffer capacity per asset: 24h at
// 5-minute cadence. The ring itself lives on-chain in the oracle contract;
// internal/store.SampleHistoryStore mirrors its "latest / last-N, newest
// first" read surface off-chain via SQL rather than an in-memory ring,
// capping History's result size at this constant.
const CircularHistoryCapacity = 288

// TxStatus is the Submitter's per-transaction state machine.
type TxStatus string

const (
	TxPendingSign      TxStatus = "pending_sign"
	TxPendingBroadcast TxStatus = "pending_broadcast"
	TxPendingConfirm   TxStatus = "pending_confirm"
	TxConfirmed        TxStatus = "confirmed"
	TxReverted         TxStatus = "reverted"
	TxDropped          TxStatus = "dropped"
)

// TxRecord tracks one broadcast transaction through confirmation. ScoresFP,
// ConfidencesBP and SampleSizes are parallel to Assets: index i of each
// describes the same AssetSample that was signed into this transaction, so
// a reconciliation resubmit can replay the exact payload rather than a
// placeholder.
type TxRecord struct {
	Hash          string
	ChainID       int64
	SignerAddress string
	Nonce         uint64
	Status        TxStatus
	Assets        []string
	ScoresFP      []int64
	ConfidencesBP []uint32
	SampleSizes   []int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
