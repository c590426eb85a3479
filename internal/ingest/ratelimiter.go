package ingest

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// SourceRateLimiter gates outbound requests per external credential with a
// token bucket. Each Collector consults it before every outbound call; on
// throttle, the collector suspends until a token is available or the cycle
// deadline is reached.
type SourceRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	tokens   int
	refill   int // seconds per token-bucket refill to rate.Limit
}

// NewSourceRateLimiter builds a limiter keyed by credential. tokens is the
// bucket size; refillSeconds is how often (in seconds) one token replenishes.
func NewSourceRateLimiter(tokens, refillSeconds int) *SourceRateLimiter {
	if refillSeconds <= 0 {
		refillSeconds = 1
	}
	return &SourceRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		tokens:   tokens,
		refill:   refillSeconds,
	}
}

func (l *SourceRateLimiter) limiterFor(credential string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[credential]
	if !ok {
		perSecond := rate.Limit(1.0 / float64(l.refill))
		lim = rate.NewLimiter(perSecond, l.tokens)
		l.limiters[credential] = lim
	}
	return lim
}

// Wait blocks until a token is available for credential or ctx is cancelled
// (e.g. by the cycle deadline), whichever happens first.
func (l *SourceRateLimiter) Wait(ctx context.Context, credential string) error {
	return l.limiterFor(credential).Wait(ctx)
}

// Allow reports whether a request for credential may proceed immediately,
// without blocking, consuming a token if so.
func (l *SourceRateLimiter) Allow(credential string) bool {
	return l.limiterFor(credential).Allow()
}
