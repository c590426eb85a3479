package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sentibridge/oracle/internal/domain"
)

// assetTagPattern extracts cashtag-style asset references ($BTC, $ETH) and
// 0x-prefixed addresses from raw text, mirroring the teacher's address
// extraction regex for feed events.
var assetTagPattern = regexp.MustCompile(`\$[A-Z]{2,10}|0x[a-fA-F0-9]{40}`)

// rawPost is the wire shape returned by the HTTP source endpoints. Sources
// differ in their native schema; each implementation of a real collector is
// expected to adapt its provider's response into this shape before handing
// it back here, the way the teacher's feed fetchers each had their own
// decode step ahead of a common FeedEvent.
type rawPost struct {
	ID               string  `json:"id"`
	AuthorID         string  `json:"author_id"`
	Text             string  `json:"text"`
	CreatedAtUnix    int64   `json:"created_at"`
	AuthorFollowers  int64   `json:"author_followers"`
	AuthorAccountAge int64   `json:"author_account_age_days"`
}

// HTTPCollector is a generic bearer-authenticated HTTP source collector used
// for the news, twitter-like, chat-a and chat-b sources. Distinct sources are
// distinct instances configured with a different endpoint and credential,
// per the tagged-variant recommendation over a class hierarchy.
type HTTPCollector struct {
	source     domain.Source
	endpoint   string
	credential string
	client     *http.Client
	limiter    *SourceRateLimiter
	backoff    BackoffConfig
	maxItems   int
	logger     *slog.Logger
}

// NewHTTPCollector constructs a collector for one source.
func NewHTTPCollector(source domain.Source, endpoint, credential string, limiter *SourceRateLimiter, logger *slog.Logger) *HTTPCollector {
	return &HTTPCollector{
		source:     source,
		endpoint:   endpoint,
		credential: credential,
		client:     &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
		backoff:    DefaultBackoffConfig(),
		maxItems:   DefaultMaxItemsPerCycle,
		logger:     logger.With("component", "collector", "source", string(source)),
	}
}

// Source implements Collector.
func (c *HTTPCollector) Source() domain.Source { return c.source }

// Collect implements Collector.
func (c *HTTPCollector) Collect(ctx context.Context, windowStart, windowEnd time.Time, assets []string) ([]domain.Item, Cursor, error) {
	if c.endpoint == "" {
		return nil, "", fmt.Errorf("%w: no endpoint configured for %s", domain.ErrTerminalSource, c.source)
	}

	var raws []rawPost
	err := RetryTransient(ctx, c.backoff, func() error {
		if waitErr := c.limiter.Wait(ctx, c.credential); waitErr != nil {
			return fmt.Errorf("%w: rate limit wait: %v", domain.ErrTransientSource, waitErr)
		}
		fetched, fetchErr := c.fetch(ctx, windowStart, windowEnd)
		if fetchErr != nil {
			return fetchErr
		}
		raws = fetched
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	items := make([]domain.Item, 0, len(raws))
	for _, r := range raws {
		created := time.Unix(r.CreatedAtUnix, 0).UTC()
		if created.Before(windowStart) || !created.Before(windowEnd) {
			continue
		}
		tags := extractAssetTags(r.Text)
		if len(assets) > 0 && !intersects(tags, assets) {
			continue
		}
		item := domain.Item{
			ID:           r.ID,
			Source:       c.source,
			Text:         r.Text,
			AuthorID:     r.AuthorID,
			AuthorWeight: deriveAuthorWeight(r.AuthorFollowers, r.AuthorAccountAge),
			CreatedAt:    created,
			AssetTags:    tags,
		}
		item.Truncate()
		items = append(items, item)
		if len(items) >= c.maxItems {
			break
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	return items, Cursor(uuid.NewString()), nil
}

func (c *HTTPCollector) fetch(ctx context.Context, windowStart, windowEnd time.Time) ([]rawPost, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrTerminalSource, err)
	}
	q := req.URL.Query()
	q.Set("since", strconv.FormatInt(windowStart.Unix(), 10))
	q.Set("until", strconv.FormatInt(windowEnd.Unix(), 10))
	req.URL.RawQuery = q.Encode()
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientSource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrTransientSource, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrTerminalSource, resp.StatusCode)
	}

	var raws []rawPost
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrTerminalSource, err)
	}
	return raws, nil
}

func extractAssetTags(text string) []string {
	matches := assetTagPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

// deriveAuthorWeight maps source-specific signals (followers, account age)
// into [0,1], defaulting to 0.5 absent signal, per the open design decision
// on author-weight heuristics.
func deriveAuthorWeight(followers, accountAgeDays int64) float64 {
	if followers <= 0 && accountAgeDays <= 0 {
		return 0.5
	}
	followerScore := clamp01(float64(followers) / 10_000.0)
	ageScore := clamp01(float64(accountAgeDays) / 365.0)
	return clamp01(0.6*followerScore + 0.4*ageScore)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// InternalCollector serves items produced by internal tooling (e.g. an
// ingestion sidecar or manual analyst submission) rather than an external
// HTTP endpoint. It accumulates submitted items and drains them on Collect,
// mirroring the teacher's InternalFeed accumulate-then-clear pattern.
type InternalCollector struct {
	items []domain.Item
}

// NewInternalCollector constructs an empty internal collector.
func NewInternalCollector() *InternalCollector {
	return &InternalCollector{}
}

// Source implements Collector.
func (c *InternalCollector) Source() domain.Source { return domain.SourceInternal }

// Submit queues an item for the next Collect call.
func (c *InternalCollector) Submit(item domain.Item) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	c.items = append(c.items, item)
}

// Collect implements Collector, draining all items currently queued that
// fall within the window.
func (c *InternalCollector) Collect(ctx context.Context, windowStart, windowEnd time.Time, assets []string) ([]domain.Item, Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", errors.Join(domain.ErrTerminalSource, err)
	}

	out := make([]domain.Item, 0, len(c.items))
	remaining := c.items[:0]
	for _, it := range c.items {
		if it.CreatedAt.Before(windowStart) || !it.CreatedAt.Before(windowEnd) {
			remaining = append(remaining, it)
			continue
		}
		if len(assets) > 0 && !intersects(it.AssetTags, assets) {
			remaining = append(remaining, it)
			continue
		}
		out = append(out, it)
	}
	c.items = remaining

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, "", nil
}
