package scoring

import (
	"context"
	"runtime"
	"sync"

	"github.com/sentibridge/oracle/internal/domain"
)

// maxConcurrentScores bounds the worker pool between the Deduplicator and
// the Aggregator, per the concurrency model's embarrassingly-parallel
// scoring stage.
func maxConcurrentScores(configuredMax int) int {
	n := runtime.NumCPU()
	if configuredMax > 0 && configuredMax < n {
		return configuredMax
	}
	return n
}

// ScoreBatch scores items concurrently with a bounded worker pool, the same
// semaphore-plus-waitgroup shape the teacher's batch inference path used.
// Results preserve input order. If ctx is cancelled mid-flight, items whose
// scoring had not yet started are dropped from the result (Orchestrator
// policy: drop unscored items, proceed with what aggregated).
func (s *Scorer) ScoreBatch(ctx context.Context, items []domain.Item, configuredMaxWorkers int) []domain.ScoredItem {
	if len(items) == 0 {
		return nil
	}

	workers := maxConcurrentScores(configuredMaxWorkers)
	semaphore := make(chan struct{}, workers)
	results := make([]*domain.ScoredItem, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		select {
		case <-ctx.Done():
			break
		default:
		}

		wg.Add(1)
		go func(idx int, it domain.Item) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				return
			}
			scored := s.ScoreItem(ctx, it)
			results[idx] = &scored
		}(i, item)
	}
	wg.Wait()

	out := make([]domain.ScoredItem, 0, len(items))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
