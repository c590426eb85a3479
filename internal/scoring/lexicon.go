package scoring

import (
	"regexp"
	"strings"
)

// lexiconEntry pairs a compiled word-boundary pattern with its polarity
// contribution, mirroring the teacher's compiledPattern approach of
// pre-compiling regexes once at construction instead of per call.
type lexiconEntry struct {
	pattern  *regexp.Regexp
	polarity float64
}

// LexiconScorer is the deterministic fallback: a fixed keyword-weighted
// lexicon, always available regardless of any external model's health.
type LexiconScorer struct {
	entries []lexiconEntry
}

// NewLexiconScorer builds the fallback scorer with the built-in lexicon.
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{entries: compileBuiltinLexicon()}
}

func compileBuiltinLexicon() []lexiconEntry {
	words := map[string]float64{
		"moon":        0.8,
		"bullish":     0.7,
		"pump":        0.6,
		"rally":       0.6,
		"breakout":    0.5,
		"undervalued": 0.4,
		"accumulate":  0.3,
		"hodl":        0.3,
		"stable":      0.1,
		"dump":        -0.6,
		"bearish":     -0.7,
		"crash":       -0.8,
		"rug":         -0.9,
		"scam":        -0.9,
		"exploit":     -0.8,
		"hack":        -0.8,
		"delist":      -0.6,
		"fud":         -0.4,
		"overvalued":  -0.4,
		"selloff":     -0.5,
	}

	entries := make([]lexiconEntry, 0, len(words))
	for word, polarity := range words {
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		entries = append(entries, lexiconEntry{pattern: pattern, polarity: polarity})
	}
	return entries
}

// Predict implements FallbackModel. It sums the polarity contribution of
// every matching entry, normalized by the number of matches, and derives
// confidence from the number of matches (0.3 + 0.1 per match, capped at 0.9).
func (l *LexiconScorer) Predict(text string) Prediction {
	if strings.TrimSpace(text) == "" {
		return Prediction{Polarity: 0, Confidence: 0}
	}

	var sum float64
	matches := 0
	for _, e := range l.entries {
		n := len(e.pattern.FindAllString(text, -1))
		if n == 0 {
			continue
		}
		sum += e.polarity * float64(n)
		matches += n
	}

	if matches == 0 {
		return Prediction{Polarity: 0, Confidence: 0.2}
	}

	polarity := clamp(sum/float64(matches), -1, 1)
	confidence := clamp(0.3+0.1*float64(matches), 0, 0.9)
	return Prediction{Polarity: polarity, Confidence: confidence}
}
