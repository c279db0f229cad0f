// Package fetcher retrieves raw listing and search pages.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var ErrUnexpectedStatus = errors.New("unexpected status code")

// Fetcher returns the markup behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Options struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

func DefaultOptions() Options {
	return Options{
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: "ja,en-US;q=0.9,en;q=0.8",
		Timeout:        30 * time.Second,
	}
}

// HTTPFetcher does plain GETs with browser-like headers. It never retries;
// a failed page is skipped by the caller.
type HTTPFetcher struct {
	client *resty.Client
	logger *slog.Logger
}

func NewHTTPFetcher(opts Options, logger *slog.Logger) *HTTPFetcher {
	defaults := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = defaults.AcceptLanguage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeaders(map[string]string{
		"User-Agent":      opts.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": opts.AcceptLanguage,
	})

	return &HTTPFetcher{
		client: client,
		logger: logger.With("component", "http_fetcher"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("failed to fetch %s: %w: %d", url, ErrUnexpectedStatus, resp.StatusCode())
	}

	f.logger.Debug("fetched page",
		"url", url,
		"bytes", len(resp.Body()),
		"duration", time.Since(start))

	return resp.String(), nil
}
