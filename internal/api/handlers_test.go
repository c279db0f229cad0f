package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/toreca-arbitrage/internal/arbitrage"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/market"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/maltedev/toreca-arbitrage/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubService struct {
	result *arbitrage.Result
	err    error
	calls  int
}

func (s *stubService) Opportunities(ctx context.Context) (*arbitrage.Result, error) {
	s.calls++
	if s.err != nil {
		return &arbitrage.Result{}, s.err
	}
	return s.result, nil
}

type stubRates struct {
	rate      float64
	fetchedAt time.Time
}

func (s stubRates) Rate(ctx context.Context) float64 { return s.rate }

func (s stubRates) Snapshot() (float64, time.Time) { return s.rate, s.fetchedAt }

type historyStore struct {
	storage.SnapshotStore
	run *storage.Run
}

func (h *historyStore) LatestRun(ctx context.Context, source models.Source) (*storage.Run, error) {
	return h.run, nil
}

type pingStore struct {
	storage.SnapshotStore
	err error
}

func (p *pingStore) Ping(ctx context.Context) error { return p.err }

func opportunity(id, name, set string, price float64, margin *float64) arbitrage.Opportunity {
	return arbitrage.Opportunity{
		MarketCard: models.MarketCard{
			ID:         id,
			Name:       name,
			CardNumber: "171/086",
			Rarity:     "Special Art Rare",
			SetName:    set,
			Prices:     models.MarketPrice{Market: price},
		},
		ProfitMargin: margin,
	}
}

func sampleResult() *arbitrage.Result {
	high, low := 120.0, 10.0
	return &arbitrage.Result{
		Items: []arbitrage.Opportunity{
			opportunity("1", "Zekrom ex", "SV11B: Black Bolt", 45, &low),
			opportunity("2", "Reshiram ex", "SV11W: White Flare", 80, &high),
			opportunity("3", "Excadrill ex", "SV11B: Black Bolt", 20, nil),
		},
		Metadata:     models.FeedMetadata{Total: 3, Count: 3},
		ExchangeRate: 0.0067,
		Snapshots:    map[string]int{"japan-toreca": 2, "torecacamp": 1},
	}
}

type fixture struct {
	service *stubService
	store   storage.SnapshotStore
	server  *httptest.Server
}

func newFixture(t *testing.T, service *stubService, store storage.SnapshotStore) *fixture {
	if store == nil {
		fs, err := storage.NewFileStore(t.TempDir(), testLogger())
		require.NoError(t, err)
		store = fs
	}

	rates := stubRates{rate: 0.0066, fetchedAt: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	h := NewHandlers(service, catalog.Default(), store, rates, testLogger())
	server := httptest.NewServer(NewRouter(h, RouterOptions{}))
	t.Cleanup(server.Close)

	return &fixture{service: service, store: store, server: server}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, &stubService{}, nil)

	var body map[string]string
	resp := getJSON(t, f.server.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_PingsDatabaseStore(t *testing.T) {
	fs, err := storage.NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	t.Run("reachable", func(t *testing.T) {
		f := newFixture(t, &stubService{}, &pingStore{SnapshotStore: fs})

		var body map[string]string
		resp := getJSON(t, f.server.URL+"/health", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("unreachable", func(t *testing.T) {
		f := newFixture(t, &stubService{}, &pingStore{SnapshotStore: fs, err: errors.New("connection refused")})

		var body map[string]string
		resp := getJSON(t, f.server.URL+"/health", &body)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unreachable", body["database"])
	})
}

func TestListOpportunities(t *testing.T) {
	f := newFixture(t, &stubService{result: sampleResult()}, nil)

	t.Run("defaults sort by profit", func(t *testing.T) {
		var body OpportunitiesResponse
		resp := getJSON(t, f.server.URL+"/api/v1/opportunities", &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.Len(t, body.Items, 3)
		assert.Equal(t, "2", body.Items[0].ID)
		assert.Equal(t, "1", body.Items[1].ID)
		assert.Equal(t, "3", body.Items[2].ID)
		assert.Equal(t, 3, body.Total)
		assert.Equal(t, 0.0067, body.ExchangeRate)
		assert.Equal(t, 2, body.Snapshots["japan-toreca"])
		assert.Equal(t, "profit", body.Filter.SortBy)
	})

	t.Run("query narrows the list", func(t *testing.T) {
		var body OpportunitiesResponse
		resp := getJSON(t, f.server.URL+"/api/v1/opportunities?set=blackbolt&sortBy=price-asc&minPrice=10", &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, body.Items, 2)
		assert.Equal(t, "3", body.Items[0].ID)
		assert.Equal(t, "1", body.Items[1].ID)
		assert.Equal(t, 2, body.Count)
		assert.Equal(t, 3, body.Total)
	})

	t.Run("min profit", func(t *testing.T) {
		var body OpportunitiesResponse
		getJSON(t, f.server.URL+"/api/v1/opportunities?minProfit=50", &body)

		require.Len(t, body.Items, 2)
		assert.Equal(t, "2", body.Items[0].ID)
		assert.Equal(t, "3", body.Items[1].ID)
		require.NotNil(t, body.Filter.MinProfit)
		assert.Equal(t, 50.0, *body.Filter.MinProfit)
	})
}

func TestListOpportunities_BadFilter(t *testing.T) {
	service := &stubService{result: sampleResult()}
	f := newFixture(t, service, nil)

	for _, query := range []string{"set=jungle", "rarity=UR", "sortBy=random", "stock=maybe", "minPrice=cheap", "minProfit=lots"} {
		t.Run(query, func(t *testing.T) {
			var body map[string]any
			resp := getJSON(t, f.server.URL+"/api/v1/opportunities?"+query, &body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, body["error"], "invalid filter")
		})
	}

	assert.Zero(t, service.calls)
}

func TestListOpportunities_FeedErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		retryLater bool
	}{
		{"quota", &market.FetchError{StatusCode: 429, Err: market.ErrQuotaExceeded}, http.StatusServiceUnavailable, true},
		{"unauthorized", &market.FetchError{StatusCode: 401, Err: market.ErrUnauthorized}, http.StatusBadGateway, false},
		{"other", errors.New("connection reset"), http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &stubService{err: tt.err}, nil)

			var body map[string]any
			resp := getJSON(t, f.server.URL+"/api/v1/opportunities", &body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
			if tt.retryLater {
				assert.Equal(t, true, body["retryLater"])
			} else {
				assert.NotContains(t, body, "retryLater")
			}
		})
	}
}

func TestExportOpportunities(t *testing.T) {
	f := newFixture(t, &stubService{result: sampleResult()}, nil)

	resp, err := http.Get(f.server.URL + "/api/v1/opportunities.xlsx?sortBy=name")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "opportunities.xlsx")

	book, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Opportunities")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Excadrill ex", rows[1][0])
	assert.Equal(t, "Reshiram ex", rows[2][0])
	assert.Equal(t, "Zekrom ex", rows[3][0])
}

func TestGetSnapshot(t *testing.T) {
	fs, err := storage.NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	records := []models.PriceRecord{{
		CardNumber: "171/086",
		SetCode:    "SV11B",
		Rarity:     "SAR",
		PriceJPY:   5000,
		InStock:    true,
		URL:        "https://shop.japan-toreca.com/products/x",
	}}
	require.NoError(t, fs.Save(context.Background(), models.SourceJapanToreca, records))

	t.Run("file store", func(t *testing.T) {
		f := newFixture(t, &stubService{}, fs)

		var body SnapshotResponse
		resp := getJSON(t, f.server.URL+"/api/v1/snapshots/japan-toreca", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, models.SourceJapanToreca, body.Source)
		assert.Equal(t, 1, body.Count)
		assert.Equal(t, int64(5000), body.Records[0].PriceJPY)
		assert.Nil(t, body.Run)
	})

	t.Run("empty source", func(t *testing.T) {
		f := newFixture(t, &stubService{}, fs)

		var body SnapshotResponse
		resp := getJSON(t, f.server.URL+"/api/v1/snapshots/torecacamp", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 0, body.Count)
	})

	t.Run("unknown source", func(t *testing.T) {
		f := newFixture(t, &stubService{}, fs)

		resp := getJSON(t, f.server.URL+"/api/v1/snapshots/mercari", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("store with run history", func(t *testing.T) {
		run := &storage.Run{
			ID:         uuid.New(),
			Source:     models.SourceJapanToreca,
			Discovered: 4,
			Extracted:  1,
			Skipped:    3,
		}
		f := newFixture(t, &stubService{}, &historyStore{SnapshotStore: fs, run: run})

		var body SnapshotResponse
		getJSON(t, f.server.URL+"/api/v1/snapshots/japan-toreca", &body)
		require.NotNil(t, body.Run)
		assert.Equal(t, run.ID.String(), body.Run.ID)
		assert.Equal(t, 4, body.Run.Discovered)
		assert.Equal(t, 3, body.Run.Skipped)
	})
}

func TestGetExchangeRate(t *testing.T) {
	f := newFixture(t, &stubService{}, nil)

	var body ExchangeRateResponse
	resp := getJSON(t, f.server.URL+"/api/v1/exchange-rate", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.0066, body.Rate)
	assert.False(t, body.Fallback)
	require.NotNil(t, body.FetchedAt)
	assert.True(t, body.FetchedAt.Equal(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)))
}

func TestParseFilterSpec_Defaults(t *testing.T) {
	spec, err := ParseFilterSpec(nil)
	require.NoError(t, err)
	assert.Equal(t, "all", spec.Set)
	assert.Equal(t, 10000.0, spec.MaxPrice)
	assert.Nil(t, spec.MinProfit)
}
