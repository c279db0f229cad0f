// Package exchange provides the JPY to USD conversion rate.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultURL          = "https://api.exchangerate-api.com/v4/latest/JPY"
	DefaultTTL          = 24 * time.Hour
	DefaultFallbackRate = 0.0067
)

var ErrRateUnavailable = errors.New("exchange rate unavailable")

// RateFetcher returns the current USD value of one yen.
type RateFetcher interface {
	FetchRate(ctx context.Context) (float64, error)
}

type HTTPRateFetcher struct {
	client *resty.Client
	url    string
}

func NewHTTPRateFetcher(url string, timeout time.Duration) *HTTPRateFetcher {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)

	return &HTTPRateFetcher{client: client, url: url}
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func (f *HTTPRateFetcher) FetchRate(ctx context.Context) (float64, error) {
	resp, err := f.client.R().SetContext(ctx).Get(f.url)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch exchange rate: %w", err)
	}

	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("%w: status %d", ErrRateUnavailable, resp.StatusCode())
	}

	var body ratesResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, fmt.Errorf("failed to decode exchange rate: %w", err)
	}

	usd, ok := body.Rates["USD"]
	if !ok || usd <= 0 {
		return 0, fmt.Errorf("%w: rates.USD missing", ErrRateUnavailable)
	}

	return usd, nil
}

type CacheOptions struct {
	TTL          time.Duration
	FallbackRate float64
	// ServeStale keeps returning the last fetched rate after expiry when a
	// refresh fails, instead of dropping to the fallback.
	ServeStale bool
}

func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		TTL:          DefaultTTL,
		FallbackRate: DefaultFallbackRate,
		ServeStale:   true,
	}
}

// Cache memoizes the rate. Concurrent callers hitting an expired entry share
// one upstream fetch.
type Cache struct {
	fetcher RateFetcher
	opts    CacheOptions
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group

	mu        sync.RWMutex
	rate      float64
	fetchedAt time.Time
}

func NewCache(fetcher RateFetcher, opts CacheOptions, logger *slog.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FallbackRate <= 0 {
		opts.FallbackRate = DefaultFallbackRate
	}

	return &Cache{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With("component", "exchange_cache"),
		now:     time.Now,
	}
}

// Rate returns the rate as of the cache clock.
func (c *Cache) Rate(ctx context.Context) float64 {
	return c.Get(ctx, c.now())
}

// Get returns the cached rate when younger than the TTL at now, otherwise
// refreshes it. It never fails: on refresh errors it serves the stale rate
// (if allowed and present) or the fallback constant.
func (c *Cache) Get(ctx context.Context, now time.Time) float64 {
	if rate, ok := c.fresh(now); ok {
		return rate
	}

	v, err, shared := c.group.Do("rate", func() (any, error) {
		// A caller that queued behind a finished refresh sees it here.
		if rate, ok := c.fresh(now); ok {
			return rate, nil
		}

		rate, err := c.fetcher.FetchRate(ctx)
		if err != nil {
			return 0.0, err
		}

		c.mu.Lock()
		c.rate = rate
		c.fetchedAt = now
		c.mu.Unlock()

		c.logger.Info("exchange rate refreshed", "rate", rate)
		return rate, nil
	})
	if err == nil {
		return v.(float64)
	}

	c.mu.RLock()
	stale, fetchedAt := c.rate, c.fetchedAt
	c.mu.RUnlock()

	if c.opts.ServeStale && stale > 0 {
		c.logger.Warn("exchange rate refresh failed, serving stale rate",
			"error", err,
			"rate", stale,
			"age", now.Sub(fetchedAt),
			"shared", shared)
		return stale
	}

	c.logger.Warn("exchange rate refresh failed, using fallback",
		"error", err,
		"fallback", c.opts.FallbackRate,
		"shared", shared)
	return c.opts.FallbackRate
}

func (c *Cache) fresh(now time.Time) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.rate > 0 && now.Sub(c.fetchedAt) < c.opts.TTL {
		return c.rate, true
	}
	return 0, false
}

// Snapshot reports the cached rate and when it was fetched. The rate is zero
// before the first successful fetch.
func (c *Cache) Snapshot() (float64, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate, c.fetchedAt
}
