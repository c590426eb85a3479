// Package manipulation implements the Manipulation Detector: a multi-signal
// score in [0,1] over an asset's current-cycle items, gated on a threshold.
package manipulation

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

// Config holds the detector's threshold and rolling-window size.
type Config struct {
	Threshold     float64 // T
	RollingCycles int     // K
}

// DefaultConfig matches the configuration table's defaults.
func DefaultConfig() Config {
	return Config{Threshold: 0.7, RollingCycles: 3}
}

// SignalBreakdown exposes each contributing signal for logging/metrics. A
// signal that could not be computed this cycle (e.g. volume-spike with
// fewer than two prior cycles of history, or cross-source-divergence with
// only one source present) is marked inactive rather than reported as a
// zero-valued contribution, so it never drags the mean down.
type SignalBreakdown struct {
	VolumeSpike                 float64
	VolumeSpikeActive           bool
	ContentSimilarity           float64
	ContentSimilarityActive     bool
	BotDensity                  float64
	BotDensityActive            bool
	CrossSourceDivergence       float64
	CrossSourceDivergenceActive bool
	TemporalBurstiness          float64
	TemporalBurstinessActive    bool
}

// Mean combines only the active contributions with a simple mean, per the
// component design ("simple mean of active contributions"). A signal with
// insufficient data to compute (not enough history, not enough items, or
// only one source present) is excluded from both the sum and the divisor
// rather than counted as a zero contribution.
func (b SignalBreakdown) Mean() float64 {
	sum, count := 0.0, 0
	if b.VolumeSpikeActive {
		sum += b.VolumeSpike
		count++
	}
	if b.ContentSimilarityActive {
		sum += b.ContentSimilarity
		count++
	}
	if b.BotDensityActive {
		sum += b.BotDensity
		count++
	}
	if b.CrossSourceDivergenceActive {
		sum += b.CrossSourceDivergence
		count++
	}
	if b.TemporalBurstinessActive {
		sum += b.TemporalBurstiness
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Detector tracks per-asset sample-size history across cycles to compute the
// volume-spike signal, and evaluates the other four signals from the current
// cycle's items alone.
type Detector struct {
	mu      sync.Mutex
	history map[string][]int // asset -> sample sizes, most recent last
	cfg     Config
	logger  *slog.Logger
}

// New constructs a Detector.
func New(cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		history: make(map[string][]int),
		cfg:     cfg,
		logger:  logger.With("component", "manipulation_detector"),
	}
}

// Evaluate computes the manipulation score for one asset's current-cycle
// items and records this cycle's sample size into the rolling history.
func (d *Detector) Evaluate(asset string, items []domain.ScoredItem) (float64, SignalBreakdown) {
	volumeSpike, volumeSpikeActive := d.volumeSpike(asset, len(items))
	contentSim, contentSimActive := contentSimilarity(items)
	botDens, botDensActive := botDensity(items)
	crossSource, crossSourceActive := crossSourceDivergence(items)
	burstiness, burstinessActive := temporalBurstiness(items)

	breakdown := SignalBreakdown{
		VolumeSpike:                 volumeSpike,
		VolumeSpikeActive:           volumeSpikeActive,
		ContentSimilarity:           contentSim,
		ContentSimilarityActive:     contentSimActive,
		BotDensity:                  botDens,
		BotDensityActive:            botDensActive,
		CrossSourceDivergence:       crossSource,
		CrossSourceDivergenceActive: crossSourceActive,
		TemporalBurstiness:          burstiness,
		TemporalBurstinessActive:    burstinessActive,
	}
	score := breakdown.Mean()

	if score > d.cfg.Threshold {
		d.logger.Info("manipulation veto", "asset", asset, "score", score,
			"volume_spike", breakdown.VolumeSpike, "content_similarity", breakdown.ContentSimilarity,
			"bot_density", breakdown.BotDensity, "cross_source_divergence", breakdown.CrossSourceDivergence,
			"temporal_burstiness", breakdown.TemporalBurstiness)
	}

	return score, breakdown
}

// Vetoed reports whether score exceeds the configured threshold.
func (d *Detector) Vetoed(score float64) bool {
	return score > d.cfg.Threshold
}

// volumeSpike reports the z-score-derived contribution and whether enough
// rolling history exists to compute it. With fewer than two prior cycles
// there is no meaningful mean/stddev to compare against, so the signal is
// inactive rather than a zero contribution.
func (d *Detector) volumeSpike(asset string, sampleSize int) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hist := d.history[asset]
	defer func() {
		hist = append(hist, sampleSize)
		if len(hist) > d.cfg.RollingCycles {
			hist = hist[len(hist)-d.cfg.RollingCycles:]
		}
		d.history[asset] = hist
	}()

	if len(hist) < 2 {
		return 0, false
	}

	mean := 0.0
	for _, v := range hist {
		mean += float64(v)
	}
	mean /= float64(len(hist))

	variance := 0.0
	for _, v := range hist {
		diff := float64(v) - mean
		variance += diff * diff
	}
	variance /= float64(len(hist))
	stddev := math.Sqrt(variance)

	if stddev < 1e-9 {
		return 0, true
	}

	z := (float64(sampleSize) - mean) / stddev
	return sigmoid((z - 3) / 1.5), true
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// contentSimilarity computes the fraction of items whose 5-gram Jaccard
// similarity with at least one other item in the batch exceeds 0.85.
// Inactive with fewer than two items: similarity has no meaning for a
// single item.
func contentSimilarity(items []domain.ScoredItem) (float64, bool) {
	n := len(items)
	if n < 2 {
		return 0, false
	}

	shingles := make([]map[string]struct{}, n)
	for i, it := range items {
		shingles[i] = fiveGramShingles(it.Text)
	}

	flagged := 0
	for i := 0; i < n; i++ {
		similar := false
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if jaccard(shingles[i], shingles[j]) > 0.85 {
				similar = true
				break
			}
		}
		if similar {
			flagged++
		}
	}

	return float64(flagged) / float64(n), true
}

func fiveGramShingles(text string) map[string]struct{} {
	runes := []rune(text)
	out := make(map[string]struct{})
	const n = 5
	if len(runes) < n {
		if len(runes) > 0 {
			out[string(runes)] = struct{}{}
		}
		return out
	}
	for i := 0; i+n <= len(runes); i++ {
		out[string(runes[i:i+n])] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// botDensity is the share of items with author_weight <= 0.2. Inactive
// with zero items: there is no population to take a share of.
func botDensity(items []domain.ScoredItem) (float64, bool) {
	if len(items) == 0 {
		return 0, false
	}
	low := 0
	for _, it := range items {
		if it.AuthorWeight <= 0.2 {
			low++
		}
	}
	return float64(low) / float64(len(items)), true
}

// crossSourceDivergence is (max-min)/2 of per-source mean polarity when the
// spread exceeds 0.6, else 0. Inactive with fewer than two distinct
// sources: divergence across sources is undefined for a single source.
func crossSourceDivergence(items []domain.ScoredItem) (float64, bool) {
	sums := make(map[domain.Source]float64)
	counts := make(map[domain.Source]int)
	for _, it := range items {
		sums[it.Source] += it.Polarity
		counts[it.Source]++
	}
	if len(sums) < 2 {
		return 0, false
	}

	var means []float64
	for src, sum := range sums {
		means = append(means, sum/float64(counts[src]))
	}
	sort.Float64s(means)
	spread := means[len(means)-1] - means[0]
	if spread > 0.6 {
		return spread / 2, true
	}
	return 0, true
}

// temporalBurstiness scores low inter-arrival variance (bursty posting) on
// a [0,1] scale; a coefficient-of-variation below the threshold indicates
// overly uniform, coordinated timing. Inactive with fewer than three items:
// a single interval carries no variance to compare.
func temporalBurstiness(items []domain.ScoredItem) (float64, bool) {
	if len(items) < 3 {
		return 0, false
	}

	times := make([]time.Time, len(items))
	for i, it := range items {
		times[i] = it.CreatedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}

	mean := 0.0
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))
	if mean < 1e-9 {
		return 1, true // all arrivals simultaneous: maximally bursty
	}

	variance := 0.0
	for _, v := range intervals {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(intervals))
	stddev := math.Sqrt(variance)

	coeffVariation := stddev / mean
	const burstyThreshold = 0.3
	if coeffVariation >= burstyThreshold {
		return 0, true
	}
	return 1 - coeffVariation/burstyThreshold, true
}
