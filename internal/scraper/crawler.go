package scraper

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/maltedev/toreca-arbitrage/internal/fetcher"
	"github.com/maltedev/toreca-arbitrage/internal/ratelimit"
)

const DefaultMaxPages = 20

// Crawler walks paginated search results of one site.
type Crawler struct {
	fetcher  fetcher.Fetcher
	limiter  ratelimit.RateLimiter
	maxPages int
	logger   *slog.Logger
}

func NewCrawler(f fetcher.Fetcher, limiter ratelimit.RateLimiter, maxPages int, logger *slog.Logger) *Crawler {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Crawler{
		fetcher:  f,
		limiter:  limiter,
		maxPages: maxPages,
		logger:   logger.With("component", "crawler"),
	}
}

// Crawl returns the normalized listing URLs for q in discovery order. It
// stops at the first page without a next-page link, at the page ceiling, or
// at the first page that cannot be fetched or parsed. Errors never escape;
// whatever was found so far is returned.
func (c *Crawler) Crawl(ctx context.Context, site Site, q Query) []string {
	base, err := url.Parse(site.BaseURL())
	if err != nil {
		c.logger.Error("invalid site base url", "source", site.Source(), "url", site.BaseURL(), "error", err)
		return nil
	}

	seen := make(map[string]struct{})
	var urls []string

	for page := 1; page <= c.maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return urls
		}

		searchURL := site.SearchURL(q, page)
		html, err := c.fetcher.Fetch(ctx, searchURL)
		if err != nil {
			c.logger.Warn("search page fetch failed",
				"source", site.Source(),
				"query", q.String(),
				"page", page,
				"error", err)
			return urls
		}

		links, hasNext, err := site.ParseSearch(html, q)
		if err != nil {
			c.logger.Warn("search page parse failed",
				"source", site.Source(),
				"query", q.String(),
				"page", page,
				"error", err)
			return urls
		}

		added := 0
		for _, href := range links {
			u, ok := normalizeURL(base, href)
			if !ok {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
			added++
		}

		c.logger.Debug("search page crawled",
			"source", site.Source(),
			"query", q.String(),
			"page", page,
			"links", len(links),
			"new", added,
			"has_next", hasNext)

		if !hasNext {
			break
		}
	}

	return urls
}

// normalizeURL resolves href against base and strips query and fragment.
func normalizeURL(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), true
}
