package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

// BackoffConfig describes the Collector's retry discipline for transient
// source errors.
type BackoffConfig struct {
	Base       time.Duration
	Factor     float64
	Cap        time.Duration
	MaxAttempts int
}

// DefaultBackoffConfig matches the component design: base 500ms, factor 2,
// cap 30s, max 5 attempts.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:        500 * time.Millisecond,
		Factor:      2,
		Cap:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// RetryTransient runs fn up to cfg.MaxAttempts times, sleeping with
// exponential backoff between attempts as long as fn returns an error
// wrapping domain.ErrTransientSource. Any other error (including
// ErrTerminalSource) aborts immediately without further retries. Sleeps
// honor ctx cancellation.
func RetryTransient(ctx context.Context, cfg BackoffConfig, fn func() error) error {
	var lastErr error
	delay := cfg.Base
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrTransientSource) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Factor)
		if delay > cfg.Cap {
			delay = cfg.Cap
		}
	}
	return lastErr
}
