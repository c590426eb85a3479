package chain

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

func testSubmitter() *Submitter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSubmitter(nil, nil, DefaultSubmitterConfig(), nil, nil, nil, logger)
}

func TestApplyPreChecksSkipsWithinMinInterval(t *testing.T) {
	s := testSubmitter()
	s.SetLastAccepted("0xAAA", time.Now().Add(-200*time.Second), 0)

	samples := []domain.AssetSample{{Asset: "0xAAA", ScoreFP: 100}}
	surviving := s.applyPreChecks(samples)

	if len(surviving) != 0 {
		t.Fatalf("expected sample within MIN_UPDATE_INTERVAL to be skipped, got %d survivors", len(surviving))
	}
}

func TestApplyPreChecksAllowsAfterMinInterval(t *testing.T) {
	s := testSubmitter()
	s.SetLastAccepted("0xAAA", time.Now().Add(-241*time.Second), 0)

	samples := []domain.AssetSample{{Asset: "0xAAA", ScoreFP: 100}}
	surviving := s.applyPreChecks(samples)

	if len(surviving) != 1 {
		t.Fatalf("expected sample after MIN_UPDATE_INTERVAL to survive, got %d", len(surviving))
	}
}

func TestApplyPreChecksCircuitBreakerVeto(t *testing.T) {
	s := testSubmitter()
	s.SetLastAccepted("0xBBB", time.Now().Add(-1*time.Hour), 500_000_000_000_000_000)

	samples := []domain.AssetSample{{Asset: "0xBBB", ScoreFP: 100_000_000_000_000_000}}
	surviving := s.applyPreChecks(samples)

	if len(surviving) != 0 {
		t.Fatalf("expected circuit breaker avoidance to skip sample with delta > MAX_SCORE_CHANGE, got %d", len(surviving))
	}
}

func TestApplyPreChecksFirstUpdateBypassesBreaker(t *testing.T) {
	s := testSubmitter()

	samples := []domain.AssetSample{{Asset: "0xCCC", ScoreFP: 900_000_000_000_000_000}}
	surviving := s.applyPreChecks(samples)

	if len(surviving) != 1 {
		t.Fatalf("expected first update on an asset to bypass the circuit breaker pre-check, got %d", len(surviving))
	}
}

func TestBumpGasPrice(t *testing.T) {
	base := big.NewInt(1000)
	bumped := bumpGasPrice(base, 0.10)

	if bumped.Cmp(big.NewInt(1100)) != 0 {
		t.Errorf("bumpGasPrice(1000, 0.10) = %v, want 1100", bumped)
	}
}

func TestReconcileNoOpWithoutTxLog(t *testing.T) {
	s := testSubmitter()
	if err := s.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("expected Reconcile to no-op without a tx log, got %v", err)
	}
}

func TestNonceGapDetected(t *testing.T) {
	cases := []struct {
		name              string
		lowestUnconfirmed uint64
		chainPending      uint64
		want              bool
	}{
		{"lowest still live, equal to chain pending", 42, 42, false},
		{"lowest still live, ahead of chain pending", 44, 42, false},
		{"lowest dropped, chain pending has moved past it", 42, 45, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nonceGapDetected(tc.lowestUnconfirmed, tc.chainPending); got != tc.want {
				t.Errorf("nonceGapDetected(%d, %d) = %v, want %v", tc.lowestUnconfirmed, tc.chainPending, got, tc.want)
			}
		})
	}
}

func TestSampleHintReconstructsPersistedPayload(t *testing.T) {
	s := testSubmitter()

	rec := domain.TxRecord{
		Assets:        []string{"0xAAA", "0xBBB"},
		ScoresFP:      []int64{600_000_000_000_000_000, -200_000_000_000_000_000},
		ConfidencesBP: []uint32{3124, 5000},
		SampleSizes:   []int{10, 25},
	}

	samples, ok := s.sampleHint(rec)
	if !ok {
		t.Fatalf("expected sampleHint to reconstruct the persisted payload")
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 reconstructed samples, got %d", len(samples))
	}
	want := []domain.AssetSample{
		{Asset: "0xAAA", ScoreFP: 600_000_000_000_000_000, ConfidenceBP: 3124, SampleSize: 10},
		{Asset: "0xBBB", ScoreFP: -200_000_000_000_000_000, ConfidenceBP: 5000, SampleSize: 25},
	}
	for i, got := range samples {
		if got != want[i] {
			t.Errorf("sample %d = %+v, want %+v", i, got, want[i])
		}
	}
}

func TestSampleHintSkipsMalformedRecord(t *testing.T) {
	s := testSubmitter()

	// A record written before the payload columns existed, or otherwise
	// missing parallel data, must be skipped rather than resubmitted with
	// fabricated zero-value figures.
	rec := domain.TxRecord{
		Assets:   []string{"0xAAA"},
		ScoresFP: nil,
	}

	if _, ok := s.sampleHint(rec); ok {
		t.Fatalf("expected sampleHint to reject a record with misaligned payload arrays")
	}
}

func TestSampleHintRejectsEmptyAssets(t *testing.T) {
	s := testSubmitter()
	if _, ok := s.sampleHint(domain.TxRecord{}); ok {
		t.Fatalf("expected sampleHint to reject a record with no assets")
	}
}

type fakeHistoryStore struct {
	recorded map[string]domain.OracleEntry
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{recorded: make(map[string]domain.OracleEntry)}
}

func (f *fakeHistoryStore) RecordAccepted(_ context.Context, asset string, entry domain.OracleEntry) error {
	f.recorded[asset] = entry
	return nil
}

func (f *fakeHistoryStore) Latest(_ context.Context, asset string) (domain.OracleEntry, error) {
	entry, ok := f.recorded[asset]
	if !ok {
		return domain.OracleEntry{}, domain.ErrNotFound
	}
	return entry, nil
}

func (f *fakeHistoryStore) History(_ context.Context, asset string, n int) ([]domain.OracleEntry, error) {
	entry, ok := f.recorded[asset]
	if !ok {
		return nil, nil
	}
	return []domain.OracleEntry{entry}, nil
}

func TestMarkAcceptedRecordsSampleHistory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	history := newFakeHistoryStore()
	s := NewSubmitter(nil, nil, DefaultSubmitterConfig(), nil, nil, history, logger)

	batch := []domain.AssetSample{
		{Asset: "0xAAA", ScoreFP: 600_000_000_000_000_000, ConfidenceBP: 3124, SampleSize: 10},
	}
	s.markAccepted(context.Background(), batch)

	entry, err := history.Latest(context.Background(), "0xAAA")
	if err != nil {
		t.Fatalf("expected markAccepted to have recorded sample history, got %v", err)
	}
	if entry.Score != 600_000_000_000_000_000 || entry.SampleSize != 10 || entry.Confidence != 3124 {
		t.Errorf("recorded entry = %+v, want score/sample_size/confidence matching the accepted sample", entry)
	}

	surviving := s.applyPreChecks(batch)
	if len(surviving) != 0 {
		t.Errorf("expected the just-accepted asset to be skipped by the MIN_UPDATE_INTERVAL pre-check")
	}
}

func TestIsUnderpriced(t *testing.T) {
	if !isUnderpriced(errUnderpricedStub{}) {
		t.Errorf("expected underpriced error to be detected")
	}
}

type errUnderpricedStub struct{}

func (errUnderpricedStub) Error() string { return "replacement transaction underpriced" }
