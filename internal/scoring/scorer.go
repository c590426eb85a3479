// Package scoring implements the Scorer: an ensemble of a primary
// transformer classifier (opaque, reachable over HTTP) and a deterministic
// lexicon fallback, fused per the configured primary weight.
package scoring

import (
	"context"
	"log/slog"

	"github.com/sentibridge/oracle/internal/domain"
)

// Prediction is a single model's output over one piece of text.
type Prediction struct {
	Polarity   float64 // [-1, +1]
	Confidence float64 // [0, 1]
}

// PrimaryModel is the opaque, pre-trained transformer classifier. The scorer
// never trains or fine-tunes it; it consumes predictions as a black box.
type PrimaryModel interface {
	Predict(ctx context.Context, text string) (Prediction, error)
}

// FallbackModel is the deterministic lexicon-based scorer, always available.
type FallbackModel interface {
	Predict(text string) Prediction
}

// Config holds the ensemble fusion parameters.
type Config struct {
	PrimaryWeight  float64 // w
	DegradedFactor float64 // confidence multiplier when primary unavailable
}

// DefaultConfig matches the configuration table's defaults.
func DefaultConfig() Config {
	return Config{PrimaryWeight: 0.7, DegradedFactor: 0.6}
}

// Scorer fuses the primary and fallback models. Scoring is side-effect-free
// and deterministic given the same model weights and lexicon.
type Scorer struct {
	primary  PrimaryModel
	fallback FallbackModel
	cfg      Config
	logger   *slog.Logger
}

// New constructs a Scorer. primary may be nil, in which case every item is
// scored in degraded mode via the fallback alone.
func New(primary PrimaryModel, fallback FallbackModel, cfg Config, logger *slog.Logger) *Scorer {
	return &Scorer{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger.With("component", "scorer"),
	}
}

// Score maps text to a calibrated (polarity, confidence) pair, applying the
// fusion rule:
//
//	polarity   = w*p_primary   + (1-w)*p_fallback
//	confidence = w*c_primary   + (1-w)*c_fallback
//
// If the primary model is unavailable or errors, w is treated as 0 for this
// item and confidence is multiplied by the degraded factor.
func (s *Scorer) Score(ctx context.Context, text string) (polarity, confidence float64, degraded bool) {
	fb := s.fallback.Predict(text)

	if s.primary == nil {
		return fb.Polarity, clamp(fb.Confidence*s.cfg.DegradedFactor, 0, 1), true
	}

	pred, err := s.primary.Predict(ctx, text)
	if err != nil {
		s.logger.Warn("primary model unavailable, degrading to fallback", "error", err)
		return fb.Polarity, clamp(fb.Confidence*s.cfg.DegradedFactor, 0, 1), true
	}

	w := s.cfg.PrimaryWeight
	polarity = w*pred.Polarity + (1-w)*fb.Polarity
	confidence = w*pred.Confidence + (1-w)*fb.Confidence
	return clamp(polarity, -1, 1), clamp(confidence, 0, 1), false
}

// ScoreItem is a convenience wrapper producing a domain.ScoredItem.
func (s *Scorer) ScoreItem(ctx context.Context, item domain.Item) domain.ScoredItem {
	polarity, confidence, degraded := s.Score(ctx, item.Text)
	return domain.ScoredItem{
		Item:       item,
		Polarity:   polarity,
		Confidence: confidence,
		Degraded:   degraded,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
