package scoring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type stubPrimary struct {
	pred Prediction
	err  error
}

func (s stubPrimary) Predict(ctx context.Context, text string) (Prediction, error) {
	return s.pred, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScoreFusion(t *testing.T) {
	primary := stubPrimary{pred: Prediction{Polarity: 0.8, Confidence: 0.9}}
	fallback := NewLexiconScorer()
	s := New(primary, fallback, Config{PrimaryWeight: 0.7, DegradedFactor: 0.6}, testLogger())

	polarity, confidence, degraded := s.Score(context.Background(), "stable market")
	if degraded {
		t.Fatalf("expected non-degraded scoring when primary succeeds")
	}

	fb := fallback.Predict("stable market")
	wantPolarity := 0.7*0.8 + 0.3*fb.Polarity
	wantConfidence := 0.7*0.9 + 0.3*fb.Confidence

	if abs(polarity-wantPolarity) > 1e-9 {
		t.Errorf("polarity = %v, want %v", polarity, wantPolarity)
	}
	if abs(confidence-wantConfidence) > 1e-9 {
		t.Errorf("confidence = %v, want %v", confidence, wantConfidence)
	}
}

func TestScoreDegradesWhenPrimaryErrors(t *testing.T) {
	primary := stubPrimary{err: errors.New("model unavailable")}
	fallback := NewLexiconScorer()
	s := New(primary, fallback, DefaultConfig(), testLogger())

	_, confidence, degraded := s.Score(context.Background(), "bullish breakout")
	if !degraded {
		t.Fatalf("expected degraded mode when primary errors")
	}

	fb := fallback.Predict("bullish breakout")
	want := fb.Confidence * 0.6
	if abs(confidence-want) > 1e-9 {
		t.Errorf("degraded confidence = %v, want %v", confidence, want)
	}
}

func TestScoreDeterministic(t *testing.T) {
	primary := stubPrimary{pred: Prediction{Polarity: 0.2, Confidence: 0.5}}
	fallback := NewLexiconScorer()
	s := New(primary, fallback, DefaultConfig(), testLogger())

	p1, c1, _ := s.Score(context.Background(), "rally incoming")
	p2, c2, _ := s.Score(context.Background(), "rally incoming")

	if p1 != p2 || c1 != c2 {
		t.Fatalf("expected bit-identical output for identical input, got (%v,%v) vs (%v,%v)", p1, c1, p2, c2)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
