package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/sentibridge/oracle/internal/domain"
)

// SubmitterConfig holds the Submitter's batching, pacing and safety-check
// parameters, mirroring the configuration table's submit_* entries.
type SubmitterConfig struct {
	BatchSize        int
	MinIntervalS     int
	MaxScoreChangeFP int64
	Confirmations    int
	GasMultiplier    float64
	GasCeiling       uint64
}

// DefaultSubmitterConfig matches the configuration table's defaults.
func DefaultSubmitterConfig() SubmitterConfig {
	return SubmitterConfig{
		BatchSize:        50,
		MinIntervalS:     240,
		MaxScoreChangeFP: 2 * 100_000_000_000_000_000,
		Confirmations:    2,
		GasMultiplier:    1.2,
		GasCeiling:       2_000_000,
	}
}

// Submitter assembles AssetSamples into on-chain batches, manages nonces
// per signer-address, signs, broadcasts, and waits for confirmation.
type Submitter struct {
	client  *Client
	signer  Signer
	cfg     SubmitterConfig
	rpcGate *rate.Limiter

	nonceMu    sync.Mutex
	nextNonce  *uint64
	nonceStore domain.NonceStore

	lastAcceptedMu sync.Mutex
	lastAccepted   map[string]time.Time  // asset -> last-accepted ts
	lastScoreFP    map[string]int64      // asset -> last accepted score_fp

	txLog        domain.TxLogStore
	historyStore domain.SampleHistoryStore

	logger *slog.Logger
}

// NewSubmitter constructs a Submitter. nonceStore, txLog and historyStore
// may be nil, in which case nonce, tx-log and sample-history state is
// process-local only (lost on restart).
func NewSubmitter(client *Client, signer Signer, cfg SubmitterConfig, nonceStore domain.NonceStore, txLog domain.TxLogStore, historyStore domain.SampleHistoryStore, logger *slog.Logger) *Submitter {
	return &Submitter{
		client:       client,
		signer:       signer,
		cfg:          cfg,
		rpcGate:      rate.NewLimiter(rate.Limit(5), 10),
		nonceStore:   nonceStore,
		lastAccepted: make(map[string]time.Time),
		lastScoreFP:  make(map[string]int64),
		txLog:        txLog,
		historyStore: historyStore,
		logger:       logger.With("component", "submitter"),
	}
}

// SetLastAccepted seeds the local MIN_UPDATE_INTERVAL / MAX_SCORE_CHANGE
// pre-check state, e.g. from a reconciliation read against the contract at
// startup.
func (s *Submitter) SetLastAccepted(asset string, at time.Time, scoreFP int64) {
	s.lastAcceptedMu.Lock()
	defer s.lastAcceptedMu.Unlock()
	s.lastAccepted[asset] = at
	s.lastScoreFP[asset] = scoreFP
}

// Submit splits the job into batches of at most cfg.BatchSize, applies the
// rate-limit and circuit-breaker avoidance pre-checks, signs and broadcasts
// each batch, and waits for confirmation up to job.Deadline. A signer
// failure (ErrSignerUnavailable) ends the job: no further batches are
// attempted and the error is returned with the hashes broadcast so far.
func (s *Submitter) Submit(ctx context.Context, job domain.SubmissionJob) ([]string, error) {
	if len(job.Samples) == 0 {
		return nil, nil
	}

	surviving := s.applyPreChecks(job.Samples)
	if len(surviving) == 0 {
		return nil, nil
	}

	var txHashes []string
	for start := 0; start < len(surviving); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(surviving) {
			end = len(surviving)
		}
		batch := surviving[start:end]

		hash, err := s.submitBatch(ctx, job, batch)
		if err != nil {
			s.logger.Error("batch submission failed", "error", err, "batch_size", len(batch))
			if errors.Is(err, domain.ErrSignerUnavailable) {
				return txHashes, err
			}
			continue
		}
		txHashes = append(txHashes, hash)
	}

	return txHashes, nil
}

// applyPreChecks drops samples that would predictably revert on-chain:
// MIN_UPDATE_INTERVAL and MAX_SCORE_CHANGE, mirroring the contract's own
// invariants to avoid wasted gas on reverts.
func (s *Submitter) applyPreChecks(samples []domain.AssetSample) []domain.AssetSample {
	s.lastAcceptedMu.Lock()
	defer s.lastAcceptedMu.Unlock()

	minInterval := time.Duration(s.cfg.MinIntervalS) * time.Second
	now := time.Now()

	out := make([]domain.AssetSample, 0, len(samples))
	for _, sample := range samples {
		if last, ok := s.lastAccepted[sample.Asset]; ok {
			if now.Sub(last) < minInterval {
				s.logger.Info("submit skipped: rate limit avoidance", "asset", sample.Asset)
				continue
			}
		}

		if prevScore, ok := s.lastScoreFP[sample.Asset]; ok {
			delta := sample.ScoreFP - prevScore
			if delta < 0 {
				delta = -delta
			}
			if delta > s.cfg.MaxScoreChangeFP {
				s.logger.Info("submit skipped: circuit breaker avoidance", "asset", sample.Asset, "delta", delta)
				continue
			}
		}

		out = append(out, sample)
	}
	return out
}

func (s *Submitter) submitBatch(ctx context.Context, job domain.SubmissionJob, batch []domain.AssetSample) (string, error) {
	nonce, err := s.reserveNonce(ctx, job.ChainID)
	if err != nil {
		return "", err
	}

	data, gasLimit, err := s.buildCallData(batch)
	if err != nil {
		return "", fmt.Errorf("build call data: %w", err)
	}

	gasPrice, err := s.estimateGasPrice(ctx)
	if err != nil {
		return "", err
	}

	txHash, err := s.signAndBroadcast(ctx, job, nonce, data, gasLimit, gasPrice)
	if err != nil {
		if isUnderpriced(err) {
			bumped := bumpGasPrice(gasPrice, 0.10)
			txHash, err = s.signAndBroadcast(ctx, job, nonce, data, gasLimit, bumped)
		}
		if err != nil {
			return "", err
		}
	}

	if err := s.recordTx(ctx, txHash, job.ChainID, nonce, batch); err != nil {
		s.logger.Warn("tx log record failed", "error", err)
	}

	confirmed := s.awaitConfirmation(ctx, txHash, job.Deadline)
	if confirmed {
		s.markAccepted(ctx, batch)
		if s.txLog != nil {
			_ = s.txLog.UpdateStatus(ctx, txHash, domain.TxConfirmed)
		}
	} else if s.txLog != nil {
		_ = s.txLog.UpdateStatus(ctx, txHash, domain.TxPendingConfirm)
	}

	return txHash, nil
}

func (s *Submitter) buildCallData(batch []domain.AssetSample) ([]byte, uint64, error) {
	if len(batch) == 1 {
		sample := batch[0]
		data, err := s.client.abi.Pack("updateSentiment",
			common.HexToAddress(sample.Asset),
			big.NewInt(sample.ScoreFP),
			uint32(sample.SampleSize),
			uint16(sample.ConfidenceBP),
		)
		return data, 80_000, err
	}

	assets := make([]common.Address, len(batch))
	scores := make([]*big.Int, len(batch))
	sizes := make([]uint32, len(batch))
	confidences := make([]uint16, len(batch))
	for i, sample := range batch {
		assets[i] = common.HexToAddress(sample.Asset)
		scores[i] = big.NewInt(sample.ScoreFP)
		sizes[i] = uint32(sample.SampleSize)
		confidences[i] = uint16(sample.ConfidenceBP)
	}

	data, err := s.client.abi.Pack("batchUpdateSentiment", assets, scores, sizes, confidences)
	gasLimit := uint64(50_000 + 30_000*len(batch))
	return data, gasLimit, err
}

// reserveNonce reads the on-chain pending nonce on first use and local
// serialized-increment afterward, per the nonce management design.
func (s *Submitter) reserveNonce(ctx context.Context, chainID int64) (uint64, error) {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	if s.nextNonce == nil {
		addr := common.HexToAddress(s.signer.Address())
		pending, err := s.client.eth.PendingNonceAt(ctx, addr)
		if err != nil {
			return 0, fmt.Errorf("%w: fetch pending nonce: %v", domain.ErrRPCUnavailable, err)
		}
		if s.nonceStore != nil {
			if stored, storeErr := s.nonceStore.GetNextNonce(ctx, chainID, s.signer.Address()); storeErr == nil && stored > pending {
				pending = stored
			}
		}
		s.nextNonce = &pending
	}

	nonce := *s.nextNonce
	*s.nextNonce++

	if s.nonceStore != nil {
		if err := s.nonceStore.SetNextNonce(ctx, chainID, s.signer.Address(), *s.nextNonce); err != nil {
			s.logger.Warn("nonce store persist failed", "error", err)
		}
	}

	return nonce, nil
}

// Resync discards the cached next-nonce so the next reservation re-reads the
// pending nonce from chain. Called on NONCE_GAP / stale-nonce detection.
func (s *Submitter) Resync() {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()
	s.nextNonce = nil
}

// Reconcile detects a nonce gap or stall by comparing the chain's reported
// pending nonce against the tx log's lowest unconfirmed entry, and resubmits
// from the lowest unconfirmed nonce at a bumped gas price. This is the
// recovery path for NONCE_GAP / NonceStale: a dropped transaction (e.g. from
// a reorg) leaves a gap that strands every higher nonce until it is replaced.
func (s *Submitter) Reconcile(ctx context.Context, chainID int64) error {
	if s.txLog == nil {
		return nil
	}

	pending, err := s.txLog.PendingByNonce(ctx, chainID, s.signer.Address())
	if err != nil {
		return fmt.Errorf("%w: load pending tx log: %v", domain.ErrNonceGap, err)
	}
	if len(pending) == 0 {
		return nil
	}

	chainPending, err := s.client.eth.PendingNonceAt(ctx, common.HexToAddress(s.signer.Address()))
	if err != nil {
		return fmt.Errorf("%w: fetch pending nonce: %v", domain.ErrRPCUnavailable, err)
	}

	lowest := pending[0]
	if !nonceGapDetected(lowest.Nonce, chainPending) {
		return nil // lowest unconfirmed nonce is still live; nothing dropped
	}

	s.logger.Warn("nonce gap detected, resubmitting from lowest unconfirmed nonce",
		"lowest_unconfirmed_nonce", lowest.Nonce, "chain_pending_nonce", chainPending)

	s.Resync()

	gasPrice, err := s.estimateGasPrice(ctx)
	if err != nil {
		return err
	}
	bumped := bumpGasPrice(gasPrice, 0.10)

	for _, rec := range pending {
		samples, ok := s.sampleHint(rec)
		if !ok {
			continue
		}
		data, gasLimit, err := s.buildCallData(samples)
		if err != nil {
			return fmt.Errorf("rebuild call data for nonce %d: %w", rec.Nonce, err)
		}
		if _, err := s.signAndBroadcastAt(ctx, chainID, rec.Nonce, data, gasLimit, bumped); err != nil {
			return fmt.Errorf("%w: resubmit nonce %d: %v", domain.ErrNonceGap, rec.Nonce, err)
		}
		if err := s.txLog.UpdateStatus(ctx, rec.Hash, domain.TxDropped); err != nil {
			s.logger.Warn("tx log status update failed", "error", err, "hash", rec.Hash)
		}
	}

	return nil
}

// nonceGapDetected reports whether the lowest unconfirmed nonce in the tx
// log has fallen behind the chain's reported pending nonce, meaning a
// broadcast transaction was dropped (e.g. by a reorg) and everything above
// it is stranded until that nonce is replaced.
func nonceGapDetected(lowestUnconfirmed, chainPending uint64) bool {
	return lowestUnconfirmed < chainPending
}

// sampleHint reconstructs the exact AssetSample batch that was signed into a
// dropped transaction, from the score/confidence/sample-size payload
// recorded alongside Assets in the tx log, so a reconciliation resubmit
// broadcasts the intended batch rather than placeholder data. Returns false
// if the record predates the payload columns or is otherwise malformed
// (parallel arrays not aligned with Assets), in which case Reconcile skips
// resubmitting that nonce and leaves it to the next cycle's reconciliation
// pass once a fresher tx-log entry exists.
func (s *Submitter) sampleHint(rec domain.TxRecord) ([]domain.AssetSample, bool) {
	n := len(rec.Assets)
	if n == 0 || len(rec.ScoresFP) != n || len(rec.ConfidencesBP) != n || len(rec.SampleSizes) != n {
		return nil, false
	}
	out := make([]domain.AssetSample, n)
	for i, asset := range rec.Assets {
		out[i] = domain.AssetSample{
			Asset:        asset,
			ScoreFP:      rec.ScoresFP[i],
			ConfidenceBP: rec.ConfidencesBP[i],
			SampleSize:   rec.SampleSizes[i],
		}
	}
	return out, true
}

// signAndBroadcastAt signs and broadcasts at an explicit nonce, used by
// Reconcile to replace a stranded transaction rather than reserve a new one.
func (s *Submitter) signAndBroadcastAt(ctx context.Context, chainID int64, nonce uint64, data []byte, gasLimit uint64, gasPrice *big.Int) (string, error) {
	job := domain.SubmissionJob{ChainID: chainID, ContractAddress: s.client.contractAddress.Hex()}
	return s.signAndBroadcast(ctx, job, nonce, data, gasLimit, gasPrice)
}

func (s *Submitter) estimateGasPrice(ctx context.Context) (*big.Int, error) {
	if err := s.rpcGate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rpc rate gate: %v", domain.ErrRPCUnavailable, err)
	}

	base, err := s.client.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: suggest gas price: %v", domain.ErrRPCUnavailable, err)
	}

	multiplied := new(big.Float).Mul(new(big.Float).SetInt(base), big.NewFloat(s.cfg.GasMultiplier))
	result, _ := multiplied.Int(nil)
	return result, nil
}

func bumpGasPrice(price *big.Int, fraction float64) *big.Int {
	bumped := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(1+fraction))
	result, _ := bumped.Int(nil)
	return result
}

func (s *Submitter) signAndBroadcast(ctx context.Context, job domain.SubmissionJob, nonce uint64, data []byte, gasLimit uint64, gasPrice *big.Int) (string, error) {
	if gasLimit > s.cfg.GasCeiling {
		gasLimit = s.cfg.GasCeiling
	}

	contractAddr := common.HexToAddress(job.ContractAddress)
	tx := gethtypes.NewTransaction(nonce, contractAddr, big.NewInt(0), gasLimit, gasPrice, data)

	chainID := big.NewInt(job.ChainID)
	signerScheme := gethtypes.NewEIP155Signer(chainID)
	digest := signerScheme.Hash(tx)

	sig, err := s.signer.Sign(ctx, digest)
	if err != nil {
		return "", err
	}

	signedTx, err := tx.WithSignature(signerScheme, encodeSignature(sig))
	if err != nil {
		return "", fmt.Errorf("apply signature: %w", err)
	}

	if err := s.client.eth.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("%w: send transaction: %v", domain.ErrRPCUnavailable, err)
	}

	return signedTx.Hash().Hex(), nil
}

func encodeSignature(sig Signature) []byte {
	out := make([]byte, 65)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:64])
	out[64] = byte(sig.V.Int64())
	return out
}

func isUnderpriced(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "underpriced")
}

func (s *Submitter) recordTx(ctx context.Context, hash string, chainID int64, nonce uint64, batch []domain.AssetSample) error {
	if s.txLog == nil {
		return nil
	}
	assets := make([]string, len(batch))
	scoresFP := make([]int64, len(batch))
	confidencesBP := make([]uint32, len(batch))
	sampleSizes := make([]int, len(batch))
	for i, sample := range batch {
		assets[i] = sample.Asset
		scoresFP[i] = sample.ScoreFP
		confidencesBP[i] = sample.ConfidenceBP
		sampleSizes[i] = sample.SampleSize
	}
	return s.txLog.RecordTx(ctx, domain.TxRecord{
		Hash:          hash,
		ChainID:       chainID,
		SignerAddress: s.signer.Address(),
		Nonce:         nonce,
		Status:        domain.TxPendingConfirm,
		Assets:        assets,
		ScoresFP:      scoresFP,
		ConfidencesBP: confidencesBP,
		SampleSizes:   sampleSizes,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	})
}

// awaitConfirmation polls for the receipt until cfg.Confirmations blocks
// have passed or deadline is reached, whichever is first.
func (s *Submitter) awaitConfirmation(ctx context.Context, txHash string, deadline time.Time) bool {
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	hash := common.HexToHash(txHash)
	for {
		select {
		case <-waitCtx.Done():
			return false
		case <-ticker.C:
			receipt, err := s.client.eth.TransactionReceipt(waitCtx, hash)
			if err != nil {
				continue
			}
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return false
			}

			head, err := s.client.eth.BlockNumber(waitCtx)
			if err != nil {
				continue
			}
			confirmations := head - receipt.BlockNumber.Uint64()
			if confirmations+1 >= uint64(s.cfg.Confirmations) {
				return true
			}
		}
	}
}

// markAccepted records each confirmed sample's timestamp and score both in
// the in-process pre-check maps (rate-limit / circuit-breaker avoidance)
// and, when a historyStore is configured, in the durable sample-history
// store those maps are reseeded from on restart (cmd/oracle's
// seedLastAccepted). A historyStore write failure is logged and otherwise
// ignored: losing a history row only costs re-observing the contract's own
// state on the next reconciliation, consistent with the off-chain state's
// tolerance for truncation.
func (s *Submitter) markAccepted(ctx context.Context, batch []domain.AssetSample) {
	s.lastAcceptedMu.Lock()
	now := time.Now()
	for _, sample := range batch {
		s.lastAccepted[sample.Asset] = now
		s.lastScoreFP[sample.Asset] = sample.ScoreFP
	}
	s.lastAcceptedMu.Unlock()

	if s.historyStore == nil {
		return
	}
	for _, sample := range batch {
		entry := domain.OracleEntry{
			Score:      sample.ScoreFP,
			Timestamp:  uint64(now.Unix()),
			SampleSize: uint32(sample.SampleSize),
			Confidence: uint16(sample.ConfidenceBP),
		}
		if err := s.historyStore.RecordAccepted(ctx, sample.Asset, entry); err != nil {
			s.logger.Warn("sample history record failed", "asset", sample.Asset, "error", err)
		}
	}
}

// CallGetLatest reads the current on-chain OracleEntry for an asset.
func (s *Submitter) CallGetLatest(ctx context.Context, asset string) (domain.OracleEntry, error) {
	data, err := s.client.abi.Pack("getLatest", common.HexToAddress(asset))
	if err != nil {
		return domain.OracleEntry{}, fmt.Errorf("pack getLatest call: %w", err)
	}

	contractAddr := common.HexToAddress(s.client.contractAddress.Hex())
	out, err := s.client.eth.CallContract(ctx, ethereum.CallMsg{To: &contractAddr, Data: data}, nil)
	if err != nil {
		return domain.OracleEntry{}, fmt.Errorf("%w: call getLatest: %v", domain.ErrRPCUnavailable, err)
	}

	var result struct {
		Score      *big.Int
		Timestamp  uint64
		SampleSize uint32
		Confidence uint16
	}
	if err := s.client.abi.UnpackIntoInterface(&result, "getLatest", out); err != nil {
		return domain.OracleEntry{}, fmt.Errorf("unpack getLatest result: %w", err)
	}

	return domain.OracleEntry{
		Score:      result.Score.Int64(),
		Timestamp:  result.Timestamp,
		SampleSize: result.SampleSize,
		Confidence: result.Confidence,
	}, nil
}

// Address returns the signer-address this submitter broadcasts from,
// identifying the "signer-address" in NonceState ownership.
func (s *Submitter) Address() string { return s.signer.Address() }
