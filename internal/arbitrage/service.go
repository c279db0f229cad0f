package arbitrage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/toreca-arbitrage/internal/market"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/maltedev/toreca-arbitrage/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Opportunity is a market card annotated with its cheapest retail listing.
type Opportunity struct {
	models.MarketCard
	Match        Match    `json:"match"`
	LowestUSD    *float64 `json:"lowestUsd"`
	ProfitMargin *float64 `json:"profitMargin"`
	Category     Category `json:"category,omitempty"`
	InStock      *bool    `json:"inStock"`
	ExchangeRate float64  `json:"exchangeRate"`
}

// Annotate matches every card against both snapshots and prices the lowest
// listing at rate.
func (m *Matcher) Annotate(cards []models.MarketCard, japanToreca, torecacamp []models.PriceRecord, rate float64) []Opportunity {
	out := make([]Opportunity, 0, len(cards))

	for _, card := range cards {
		o := Opportunity{
			MarketCard:   card,
			Match:        m.MatchBothSources(card.SetName, card.CardNumber, japanToreca, torecacamp),
			ExchangeRate: rate,
		}

		if o.Match.LowestPrice != nil {
			usd := ConvertJPY(*o.Match.LowestPrice, rate)
			margin := ProfitMargin(card.Prices.Market, *o.Match.LowestPrice, rate)
			o.LowestUSD = &usd
			o.ProfitMargin = &margin
			o.Category = CategoryFor(margin)
		}

		if lowest := o.Match.Lowest(); lowest != nil {
			inStock := lowest.InStock
			o.InStock = &inStock
		}

		out = append(out, o)
	}

	return out
}

// MarketFeed supplies sell-side prices.
type MarketFeed interface {
	FetchAll(ctx context.Context) (*market.Response, error)
}

// RateSource supplies the JPY to USD rate. It never fails.
type RateSource interface {
	Rate(ctx context.Context) float64
}

type Result struct {
	Items        []Opportunity       `json:"items"`
	Metadata     models.FeedMetadata `json:"metadata"`
	ExchangeRate float64             `json:"exchangeRate"`
	Snapshots    map[string]int      `json:"snapshots"`
}

type Service struct {
	matcher *Matcher
	store   storage.SnapshotStore
	feed    MarketFeed
	rates   RateSource
	logger  *slog.Logger
}

func NewService(matcher *Matcher, store storage.SnapshotStore, feed MarketFeed, rates RateSource, logger *slog.Logger) *Service {
	return &Service{
		matcher: matcher,
		store:   store,
		feed:    feed,
		rates:   rates,
		logger:  logger.With("component", "arbitrage_service"),
	}
}

// Opportunities loads both snapshots and the market feed concurrently and
// annotates every card. A missing or unreadable snapshot counts as empty. A
// feed failure is returned as is, with an empty result.
func (s *Service) Opportunities(ctx context.Context) (*Result, error) {
	var (
		japanToreca []models.PriceRecord
		torecacamp  []models.PriceRecord
		feed        *market.Response
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		japanToreca = s.loadSnapshot(gctx, models.SourceJapanToreca)
		return nil
	})
	g.Go(func() error {
		torecacamp = s.loadSnapshot(gctx, models.SourceTorecacamp)
		return nil
	})
	g.Go(func() error {
		resp, err := s.feed.FetchAll(gctx)
		if err != nil {
			return err
		}
		feed = resp
		return nil
	})

	if err := g.Wait(); err != nil {
		return &Result{Items: []Opportunity{}}, fmt.Errorf("failed to fetch market feed: %w", err)
	}

	rate := s.rates.Rate(ctx)
	items := s.matcher.Annotate(feed.Data, japanToreca, torecacamp, rate)

	matched := 0
	for _, item := range items {
		if item.Match.LowestSource != nil {
			matched++
		}
	}

	s.logger.Info("opportunities computed",
		"cards", len(items),
		"matched", matched,
		"japan_toreca_records", len(japanToreca),
		"torecacamp_records", len(torecacamp),
		"exchange_rate", rate)

	return &Result{
		Items:        items,
		Metadata:     feed.Metadata,
		ExchangeRate: rate,
		Snapshots: map[string]int{
			string(models.SourceJapanToreca): len(japanToreca),
			string(models.SourceTorecacamp):  len(torecacamp),
		},
	}, nil
}

func (s *Service) loadSnapshot(ctx context.Context, source models.Source) []models.PriceRecord {
	records, err := s.store.Load(ctx, source)
	if err != nil {
		s.logger.Error("failed to load snapshot", "source", source, "error", err)
		return []models.PriceRecord{}
	}
	return records
}
