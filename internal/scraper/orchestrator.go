package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/toreca-arbitrage/internal/fetcher"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/maltedev/toreca-arbitrage/internal/parser"
	"github.com/maltedev/toreca-arbitrage/internal/ratelimit"
	"github.com/maltedev/toreca-arbitrage/internal/storage"
)

var ErrSourceMismatch = errors.New("site and extractor belong to different sources")

// RunResult summarizes one orchestrator run.
type RunResult struct {
	RunID      uuid.UUID
	Source     models.Source
	Queries    int
	Discovered int
	Extracted  int
	Skipped    int
	Failed     int
	Records    []models.PriceRecord
	StartedAt  time.Time
	Duration   time.Duration
}

// Orchestrator crawls every query of one site, extracts each listing and
// persists the deduplicated snapshot. All requests of a run share one rate
// limiter and run sequentially.
type Orchestrator struct {
	site      Site
	extractor parser.Extractor
	fetcher   fetcher.Fetcher
	limiter   ratelimit.RateLimiter
	crawler   *Crawler
	store     storage.SnapshotStore
	logger    *slog.Logger
	now       func() time.Time
}

type OrchestratorOptions struct {
	Site      Site
	Extractor parser.Extractor
	Fetcher   fetcher.Fetcher
	Limiter   ratelimit.RateLimiter
	Store     storage.SnapshotStore
	MaxPages  int
}

func NewOrchestrator(opts OrchestratorOptions, logger *slog.Logger) (*Orchestrator, error) {
	if opts.Site.Source() != opts.Extractor.Source() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrSourceMismatch, opts.Site.Source(), opts.Extractor.Source())
	}

	return &Orchestrator{
		site:      opts.Site,
		extractor: opts.Extractor,
		fetcher:   opts.Fetcher,
		limiter:   opts.Limiter,
		crawler:   NewCrawler(opts.Fetcher, opts.Limiter, opts.MaxPages, logger),
		store:     opts.Store,
		logger:    logger.With("component", "orchestrator", "source", opts.Site.Source()),
		now:       time.Now,
	}, nil
}

// Run performs a full crawl. Page level failures only shrink the snapshot.
// A cancelled context aborts the run without touching the stored snapshot.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.New(),
		Source:    o.site.Source(),
		StartedAt: o.now(),
	}

	o.logger.Info("starting crawl run", "run_id", result.RunID)

	queries := o.site.Queries()
	result.Queries = len(queries)

	// Listings can appear under several queries; visit each once.
	visited := make(map[string]struct{})
	var urls []string

	for _, q := range queries {
		found := o.crawler.Crawl(ctx, o.site, q)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("crawl run aborted: %w", err)
		}

		added := 0
		for _, u := range found {
			if _, ok := visited[u]; ok {
				continue
			}
			visited[u] = struct{}{}
			urls = append(urls, u)
			added++
		}

		o.logger.Info("query crawled", "query", q.String(), "listings", len(found), "new", added)
	}

	result.Discovered = len(urls)

	var records []models.PriceRecord
	index := make(map[string]int)

	for i, u := range urls {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("crawl run aborted: %w", err)
		}

		record, err := o.scrapeListing(ctx, u)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("crawl run aborted: %w", ctxErr)
			}

			if errors.Is(err, parser.ErrNotExtractable) {
				result.Skipped++
				o.logger.Debug("listing skipped", "url", u, "reason", err)
			} else {
				result.Failed++
				o.logger.Warn("listing fetch failed", "url", u, "error", err)
			}
			continue
		}

		result.Extracted++
		o.logger.Debug("listing extracted",
			"progress", fmt.Sprintf("%d/%d", i+1, len(urls)),
			"card", record.CardNumber,
			"rarity", record.Rarity,
			"price_jpy", record.PriceJPY,
			"in_stock", record.InStock)

		// First position wins, last write wins.
		key := record.Key()
		if pos, ok := index[key]; ok {
			records[pos] = *record
			continue
		}
		index[key] = len(records)
		records = append(records, *record)
	}

	result.Records = records
	result.Duration = o.now().Sub(result.StartedAt)

	if err := o.persist(ctx, result); err != nil {
		return result, err
	}

	o.logSummary(result)

	return result, nil
}

func (o *Orchestrator) scrapeListing(ctx context.Context, u string) (*models.PriceRecord, error) {
	html, err := o.fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return o.extractor.Extract(html, u)
}

func (o *Orchestrator) persist(ctx context.Context, result *RunResult) error {
	if o.store == nil {
		return nil
	}

	if rs, ok := o.store.(storage.RunStore); ok {
		run := storage.Run{
			ID:         result.RunID,
			Source:     result.Source,
			StartedAt:  result.StartedAt,
			FinishedAt: result.StartedAt.Add(result.Duration),
			Discovered: result.Discovered,
			Extracted:  result.Extracted,
			Skipped:    result.Skipped,
			Failed:     result.Failed,
		}
		if err := rs.SaveRun(ctx, run, result.Records); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		return nil
	}

	if err := o.store.Save(ctx, result.Source, result.Records); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (o *Orchestrator) logSummary(result *RunResult) {
	counts := make(map[string]int)
	inStock := 0
	for _, r := range result.Records {
		counts[r.SetCode+" "+r.Rarity]++
		if r.InStock {
			inStock++
		}
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		o.logger.Info("snapshot group", "group", k, "cards", counts[k])
	}

	o.logger.Info("crawl run completed",
		"run_id", result.RunID,
		"queries", result.Queries,
		"discovered", result.Discovered,
		"extracted", result.Extracted,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"records", len(result.Records),
		"in_stock", inStock,
		"duration", result.Duration)
}
