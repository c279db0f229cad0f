package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/toreca-arbitrage/internal/browser"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/config"
	"github.com/maltedev/toreca-arbitrage/internal/database"
	"github.com/maltedev/toreca-arbitrage/internal/fetcher"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/maltedev/toreca-arbitrage/internal/ratelimit"
	"github.com/maltedev/toreca-arbitrage/internal/scraper"
	"github.com/maltedev/toreca-arbitrage/internal/storage"
	"github.com/maltedev/toreca-arbitrage/pkg/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		source      = flag.String("source", "all", "Source to scrape: all, japan-toreca, torecacamp")
		fetcherKind = flag.String("fetcher", "", "Override SCRAPER_FETCHER: http or browser")
		maxPages    = flag.Int("max-pages", 0, "Override SCRAPER_MAX_PAGES")
		envFile     = flag.String("env", "", "Optional .env file (defaults to ./.env)")
	)
	flag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *fetcherKind != "" {
		cfg.Scraper.Fetcher = *fetcherKind
	}
	if *maxPages > 0 {
		cfg.Scraper.MaxPages = *maxPages
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	sources, err := selectSources(*source)
	if err != nil {
		log.Error("invalid source", "error", err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := database.OpenSnapshotStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open snapshot store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	f, closeFetcher, err := openFetcher(cfg, log)
	if err != nil {
		log.Error("failed to initialize fetcher", "fetcher", cfg.Scraper.Fetcher, "error", err)
		os.Exit(1)
	}
	defer closeFetcher()

	log.Info("starting crawl",
		"sources", sources,
		"fetcher", cfg.Scraper.Fetcher,
		"snapshot_backend", cfg.Storage.Backend)

	// One orchestrator per source; a failing source does not stop the other.
	var g errgroup.Group
	results := make([]*scraper.RunResult, len(sources))
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			result, err := runSource(ctx, src, cat, cfg, f, store, log)
			if err != nil {
				return fmt.Errorf("%s: %w", src, err)
			}
			results[i] = result
			return nil
		})
	}

	err = g.Wait()

	for _, r := range results {
		if r == nil {
			continue
		}
		log.Info("source finished",
			"source", r.Source,
			"run_id", r.RunID,
			"records", len(r.Records),
			"discovered", r.Discovered,
			"skipped", r.Skipped,
			"failed", r.Failed,
			"duration", r.Duration)
	}

	if err != nil {
		log.Error("crawl failed", "error", err)
		os.Exit(1)
	}

	log.Info("crawl completed")
}

func selectSources(name string) ([]models.Source, error) {
	if name == "all" {
		return models.Sources(), nil
	}
	src := models.Source(name)
	if !src.IsValid() {
		return nil, fmt.Errorf("%w: %q", scraper.ErrUnknownSource, name)
	}
	return []models.Source{src}, nil
}

func runSource(ctx context.Context, src models.Source, cat *catalog.Catalog, cfg *config.Config, f fetcher.Fetcher, store storage.SnapshotStore, log *slog.Logger) (*scraper.RunResult, error) {
	baseURL := cfg.Scraper.JapanTorecaBaseURL
	if src == models.SourceTorecacamp {
		baseURL = cfg.Scraper.TorecacampBaseURL
	}

	site, err := scraper.NewSite(src, baseURL, cat)
	if err != nil {
		return nil, err
	}

	extractor, err := scraper.NewExtractor(src, cat)
	if err != nil {
		return nil, err
	}

	orchestrator, err := scraper.NewOrchestrator(scraper.OrchestratorOptions{
		Site:      site,
		Extractor: extractor,
		Fetcher:   f,
		Limiter:   ratelimit.NewSimpleRateLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
		Store:     store,
		MaxPages:  cfg.Scraper.MaxPages,
	}, log)
	if err != nil {
		return nil, err
	}

	return orchestrator.Run(ctx)
}

func openFetcher(cfg *config.Config, log *slog.Logger) (fetcher.Fetcher, func(), error) {
	if cfg.Scraper.Fetcher != config.FetcherBrowser {
		return fetcher.NewHTTPFetcher(fetcher.Options{
			UserAgent: cfg.Scraper.UserAgent,
			Timeout:   cfg.Scraper.PageTimeout,
		}, log), func() {}, nil
	}

	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Scraper.PageTimeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	if cfg.Scraper.UserAgent != "" {
		opts.UserAgent = cfg.Scraper.UserAgent
	}

	b, err := browser.New(opts, log)
	if err != nil {
		return nil, nil, err
	}

	return b, func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close browser", "error", err)
		}
	}, nil
}
