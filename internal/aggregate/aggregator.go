// Package aggregate implements the Aggregator: a weighted fold of per-item
// sentiment scores into one AssetSample per asset per cycle window.
package aggregate

import (
	"log/slog"
	"math"
	"sync"

	"github.com/sentibridge/oracle/internal/domain"
)

// NRef is the reference sample size used to scale confidence by sample
// count, per the fold formula.
const NRef = 1000

// MinWeightEpsilon is the minimum total weight below which a sample is
// dropped as AggregateEmpty.
const MinWeightEpsilon = 1e-9

// scoreQuantum is the resolution (1e-12) the weighted-mean score is rounded
// to before scaling to ScoreFP, so float64 rounding error from the fold
// (a few ulps) does not reach the low digits: a mean of 0.6 yields exactly
// 6e17.
const scoreQuantum = 1_000_000_000_000

// Aggregator folds ScoredItems into AssetSamples. Aggregation is serialized
// per asset; distinct assets may proceed concurrently since each asset's
// fold only touches its own accumulator.
type Aggregator struct {
	mu     sync.Mutex
	logger *slog.Logger
}

// New constructs an Aggregator.
func New(logger *slog.Logger) *Aggregator {
	return &Aggregator{logger: logger.With("component", "aggregator")}
}

// Fold groups items by asset tag and computes one AssetSample per asset.
// Items with no asset tags are ignored; an item tagged with multiple assets
// contributes to each. Assets whose total weight falls below
// MinWeightEpsilon or whose sample size is zero are omitted from the
// result (AggregateEmpty, silently dropped per the error taxonomy).
func (a *Aggregator) Fold(items []domain.ScoredItem, windowEndTS int64) []domain.AssetSample {
	byAsset := make(map[string][]domain.ScoredItem)
	for _, it := range items {
		for _, asset := range it.AssetTags {
			byAsset[asset] = append(byAsset[asset], it)
		}
	}

	out := make([]domain.AssetSample, 0, len(byAsset))
	for asset, scored := range byAsset {
		sample, ok := a.foldOne(asset, scored, windowEndTS)
		if ok {
			out = append(out, sample)
		}
	}
	return out
}

// foldOne computes the weighted fold for a single asset:
//
//	weight_i = author_weight_i * confidence_i
//	score    = sum(weight_i * polarity_i) / sum(weight_i)
//	conf     = clamp(mean(confidence_i) * log(1+n) / log(1+N_ref), 0, 1)
func (a *Aggregator) foldOne(asset string, scored []domain.ScoredItem, windowEndTS int64) (domain.AssetSample, bool) {
	n := len(scored)
	if n < 1 {
		return domain.AssetSample{}, false
	}

	var weightedPolaritySum, totalWeight, confidenceSum float64
	for _, it := range scored {
		weight := it.AuthorWeight * it.Confidence
		weightedPolaritySum += weight * it.Polarity
		totalWeight += weight
		confidenceSum += it.Confidence
	}

	if totalWeight < MinWeightEpsilon {
		a.logger.Debug("asset dropped: total weight below epsilon", "asset", asset)
		return domain.AssetSample{}, false
	}

	score := weightedPolaritySum / totalWeight
	meanConfidence := confidenceSum / float64(n)
	conf := clamp(meanConfidence*math.Log(1+float64(n))/math.Log(1+NRef), 0, 1)

	return domain.AssetSample{
		Asset:        asset,
		ScoreFP:      int64(math.Round(score*scoreQuantum)) * (domain.ScoreScale / scoreQuantum),
		ConfidenceBP: uint32(math.Round(conf * domain.ConfidenceScale)),
		SampleSize:   n,
		WindowEndTS:  windowEndTS,
	}, true
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
