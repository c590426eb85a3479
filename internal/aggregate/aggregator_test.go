package aggregate

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeScoredItem(asset string, polarity, confidence, authorWeight float64) domain.ScoredItem {
	return domain.ScoredItem{
		Item: domain.Item{
			AssetTags:    []string{asset},
			AuthorWeight: authorWeight,
			CreatedAt:    time.Now(),
		},
		Polarity:   polarity,
		Confidence: confidence,
	}
}

func TestFoldHappyUpdate(t *testing.T) {
	a := New(testLogger())

	items := make([]domain.ScoredItem, 10)
	for i := range items {
		items[i] = makeScoredItem("A", 0.6, 0.9, 0.5)
	}

	samples := a.Fold(items, 1700000000)
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}

	s := samples[0]
	if s.ScoreFP != 600_000_000_000_000_000 {
		t.Errorf("score_fp = %d, want 6e17", s.ScoreFP)
	}
	if s.ConfidenceBP != 3124 {
		t.Errorf("confidence_bp = %d, want ~3124", s.ConfidenceBP)
	}
	if s.SampleSize != 10 {
		t.Errorf("sample_size = %d, want 10", s.SampleSize)
	}
	if !s.Valid() {
		t.Errorf("expected sample to satisfy invariants")
	}
}

func TestFoldDropsZeroWeightAsset(t *testing.T) {
	a := New(testLogger())

	items := []domain.ScoredItem{
		makeScoredItem("B", 0.5, 0, 0.5), // confidence 0 => weight 0
	}

	samples := a.Fold(items, 0)
	if len(samples) != 0 {
		t.Fatalf("expected asset with zero total weight to be dropped, got %d samples", len(samples))
	}
}

func TestFoldMultiAssetIsIndependent(t *testing.T) {
	a := New(testLogger())

	items := []domain.ScoredItem{
		makeScoredItem("A", 1.0, 1.0, 1.0),
		makeScoredItem("B", -1.0, 1.0, 1.0),
	}

	samples := a.Fold(items, 0)
	if len(samples) != 2 {
		t.Fatalf("expected 2 independent samples, got %d", len(samples))
	}

	byAsset := map[string]domain.AssetSample{}
	for _, s := range samples {
		byAsset[s.Asset] = s
	}
	if byAsset["A"].ScoreFP <= 0 {
		t.Errorf("asset A expected positive score, got %d", byAsset["A"].ScoreFP)
	}
	if byAsset["B"].ScoreFP >= 0 {
		t.Errorf("asset B expected negative score, got %d", byAsset["B"].ScoreFP)
	}
}
