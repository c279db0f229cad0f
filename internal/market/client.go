// Package market reads sell-side card prices from the market price feed.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://www.pokemonpricetracker.com/api/v2"

// Response is the feed payload for one or more merged queries.
type Response struct {
	Data     []models.MarketCard `json:"data"`
	Metadata models.FeedMetadata `json:"metadata"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Query selects cards of one set and rarity.
type Query struct {
	SetLabel    string
	RarityLabel string
}

type Options struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Language    string
	Limit       int
	HistoryDays int
	// RequestsPerSecond caps upstream calls; zero disables the limit.
	RequestsPerSecond float64
}

func DefaultOptions() Options {
	return Options{
		BaseURL:           DefaultBaseURL,
		Timeout:           30 * time.Second,
		Language:          "japanese",
		Limit:             50,
		HistoryDays:       30,
		RequestsPerSecond: 2,
	}
}

type Client struct {
	http    *resty.Client
	opts    Options
	limiter *rate.Limiter
	cache   ResponseCache
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewClient builds a feed client. cache may be nil.
func NewClient(opts Options, cat *catalog.Catalog, cache ResponseCache, logger *slog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	defaults := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Language == "" {
		opts.Language = defaults.Language
	}
	if opts.Limit <= 0 {
		opts.Limit = defaults.Limit
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = defaults.HistoryDays
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)
	client.SetAuthToken(opts.APIKey)
	client.SetHeader("Accept", "application/json")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		http:    client,
		opts:    opts,
		limiter: limiter,
		cache:   cache,
		catalog: cat,
		logger:  logger.With("component", "market_client"),
	}, nil
}

// Queries lists the feed queries configured in the catalog.
func (c *Client) Queries() []Query {
	var queries []Query
	for _, code := range c.catalog.Feed.Sets {
		set, ok := c.catalog.SetByCode(code)
		if !ok {
			continue
		}
		for _, rc := range c.catalog.Feed.Rarities {
			r, ok := c.catalog.Rarity(rc)
			if !ok {
				continue
			}
			queries = append(queries, Query{SetLabel: set.Label, RarityLabel: r.Label})
		}
	}
	return queries
}

func (c *Client) params(q Query) url.Values {
	return url.Values{
		"language":       {c.opts.Language},
		"search":         {q.SetLabel},
		"rarity":         {q.RarityLabel},
		"limit":          {strconv.Itoa(c.opts.Limit)},
		"includeHistory": {"true"},
		"days":           {strconv.Itoa(c.opts.HistoryDays)},
		"sortBy":         {"price"},
		"sortOrder":      {"desc"},
	}
}

// FetchAll runs every catalog query concurrently and merges the results:
// cards sorted by market price descending, usage metadata summed. Any failed
// query fails the whole call with an empty result.
func (c *Client) FetchAll(ctx context.Context) (*Response, error) {
	queries := c.Queries()
	responses := make([]*Response, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			resp, err := c.FetchCards(gctx, q)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &Response{Data: []models.MarketCard{}}, err
	}

	merged := &Response{Data: []models.MarketCard{}}
	for _, r := range responses {
		merged.Data = append(merged.Data, r.Data...)
		merged.Metadata.Add(r.Metadata)
	}

	sort.SliceStable(merged.Data, func(i, j int) bool {
		return merged.Data[i].Prices.Market > merged.Data[j].Prices.Market
	})
	merged.Metadata.Count = len(merged.Data)
	merged.Metadata.Offset = 0

	return merged, nil
}

// FetchCards runs one feed query, served from the response cache when
// possible. Invalid cards are dropped.
func (c *Client) FetchCards(ctx context.Context, q Query) (*Response, error) {
	params := c.params(q)
	key := cacheKey(params.Encode())
	label := q.String()

	body, cached := c.cachedBody(ctx, key)
	if !cached {
		var err error
		body, err = c.request(ctx, label, params)
		if err != nil {
			return nil, err
		}
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Query: label, Message: "invalid response body", Err: err}
	}

	resp.Data = c.validCards(label, resp.Data)

	if !cached {
		c.storeBody(ctx, key, body)
	}

	c.logger.Debug("market feed query done",
		"query", label,
		"cards", len(resp.Data),
		"cached", cached)

	return &resp, nil
}

func (c *Client) request(ctx context.Context, label string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Query: label, Err: err}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get("/cards")
	if err != nil {
		return nil, &FetchError{Query: label, Err: err}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		var eb errorBody
		_ = json.Unmarshal(resp.Body(), &eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		fe := classify(label, resp.StatusCode(), msg)
		c.logger.Error("market feed request failed", "query", label, "status", resp.StatusCode(), "message", msg)
		return nil, fe
	}

	return resp.Body(), nil
}

func (c *Client) cachedBody(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}

	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("market cache read failed", "key", key, "error", err)
		return nil, false
	}
	return body, ok
}

func (c *Client) storeBody(ctx context.Context, key string, body []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, body); err != nil {
		c.logger.Warn("market cache write failed", "key", key, "error", err)
	}
}

func (c *Client) validCards(label string, cards []models.MarketCard) []models.MarketCard {
	valid := make([]models.MarketCard, 0, len(cards))
	for _, card := range cards {
		if problems := card.Validate(); len(problems) > 0 {
			c.logger.Warn("dropping invalid market card",
				"query", label,
				"id", card.ID,
				"problems", problems)
			continue
		}
		valid = append(valid, card)
	}
	return valid
}

func (q Query) String() string {
	return fmt.Sprintf("%s (%s)", q.SetLabel, q.RarityLabel)
}
