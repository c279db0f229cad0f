package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/toreca-arbitrage/internal/arbitrage"
	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/market"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/maltedev/toreca-arbitrage/internal/pipeline"
	"github.com/maltedev/toreca-arbitrage/internal/report"
	"github.com/maltedev/toreca-arbitrage/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// OpportunityService computes the annotated opportunity list.
type OpportunityService interface {
	Opportunities(ctx context.Context) (*arbitrage.Result, error)
}

// RateReader exposes the exchange rate cache.
type RateReader interface {
	Rate(ctx context.Context) float64
	Snapshot() (float64, time.Time)
}

type Handlers struct {
	service  OpportunityService
	pipeline *pipeline.Pipeline
	catalog  *catalog.Catalog
	store    storage.SnapshotStore
	rates    RateReader
	logger   *slog.Logger
}

func NewHandlers(service OpportunityService, cat *catalog.Catalog, store storage.SnapshotStore, rates RateReader, logger *slog.Logger) *Handlers {
	return &Handlers{
		service:  service,
		pipeline: pipeline.New(cat),
		catalog:  cat,
		store:    store,
		rates:    rates,
		logger:   logger.With("component", "api"),
	}
}

// OpportunitiesResponse is the filtered opportunity list
type OpportunitiesResponse struct {
	Items        []arbitrage.Opportunity `json:"items"`
	Count        int                     `json:"count"`
	Total        int                     `json:"total"`
	Filter       pipeline.FilterSpec     `json:"filter"`
	Metadata     models.FeedMetadata     `json:"metadata"`
	ExchangeRate float64                 `json:"exchangeRate"`
	Snapshots    map[string]int          `json:"snapshots"`
}

// SnapshotResponse is one source snapshot with its last crawl run
type SnapshotResponse struct {
	Source  models.Source        `json:"source"`
	Count   int                  `json:"count"`
	Records []models.PriceRecord `json:"records"`
	Run     *RunResponse         `json:"run,omitempty"`
}

type RunResponse struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Discovered int       `json:"discovered"`
	Extracted  int       `json:"extracted"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

type ExchangeRateResponse struct {
	Rate      float64    `json:"rate"`
	FetchedAt *time.Time `json:"fetchedAt,omitempty"`
	Fallback  bool       `json:"fallback"`
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryLater bool   `json:"retryLater,omitempty"`
}

// pinger is implemented by stores backed by a database connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /health. Stores with a database connection are pinged.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.Warn("snapshot store unreachable", "error", err)
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": "unreachable",
			})
			return
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListOpportunities handles GET /api/v1/opportunities
func (h *Handlers) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	spec, result, ok := h.filtered(w, r)
	if !ok {
		return
	}

	items := h.pipeline.Apply(result.Items, spec)

	h.respondJSON(w, http.StatusOK, OpportunitiesResponse{
		Items:        items,
		Count:        len(items),
		Total:        len(result.Items),
		Filter:       spec,
		Metadata:     result.Metadata,
		ExchangeRate: result.ExchangeRate,
		Snapshots:    result.Snapshots,
	})
}

// ExportOpportunities handles GET /api/v1/opportunities.xlsx
func (h *Handlers) ExportOpportunities(w http.ResponseWriter, r *http.Request) {
	spec, result, ok := h.filtered(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, h.pipeline.Apply(result.Items, spec)); err != nil {
		h.logger.Error("failed to build report", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to build report")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="opportunities.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write report", "error", err)
	}
}

// GetSnapshot handles GET /api/v1/snapshots/{source}
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	source := models.Source(chi.URLParam(r, "source"))
	if !source.IsValid() {
		h.respondError(w, http.StatusNotFound, "unknown source")
		return
	}

	records, err := h.store.Load(r.Context(), source)
	if err != nil {
		h.logger.Error("failed to load snapshot", "source", source, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	resp := SnapshotResponse{
		Source:  source,
		Count:   len(records),
		Records: records,
	}

	if history, ok := h.store.(storage.RunHistory); ok {
		run, err := history.LatestRun(r.Context(), source)
		if err != nil {
			h.logger.Warn("failed to load latest run", "source", source, "error", err)
		} else if run != nil {
			resp.Run = &RunResponse{
				ID:         run.ID.String(),
				StartedAt:  run.StartedAt,
				FinishedAt: run.FinishedAt,
				Discovered: run.Discovered,
				Extracted:  run.Extracted,
				Skipped:    run.Skipped,
				Failed:     run.Failed,
			}
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// GetExchangeRate handles GET /api/v1/exchange-rate
func (h *Handlers) GetExchangeRate(w http.ResponseWriter, r *http.Request) {
	rate := h.rates.Rate(r.Context())
	_, fetchedAt := h.rates.Snapshot()

	resp := ExchangeRateResponse{Rate: rate, Fallback: fetchedAt.IsZero()}
	if !fetchedAt.IsZero() {
		resp.FetchedAt = &fetchedAt
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// filtered parses the filter, runs the service and writes the error response
// itself when either fails.
func (h *Handlers) filtered(w http.ResponseWriter, r *http.Request) (pipeline.FilterSpec, *arbitrage.Result, bool) {
	spec, err := ParseFilterSpec(r.URL.Query())
	if err == nil {
		err = spec.Validate(h.catalog)
	}
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return spec, nil, false
	}

	result, err := h.service.Opportunities(r.Context())
	if err != nil {
		h.respondFeedError(w, err)
		return spec, nil, false
	}

	return spec, result, true
}

func (h *Handlers) respondFeedError(w http.ResponseWriter, err error) {
	h.logger.Error("failed to compute opportunities", "error", err)

	switch {
	case market.IsQuota(err):
		h.respondJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:      "market feed quota exceeded, try again later",
			RetryLater: true,
		})
	case errors.Is(err, market.ErrUnauthorized):
		h.respondError(w, http.StatusBadGateway, "market feed rejected credentials")
	default:
		h.respondError(w, http.StatusBadGateway, "market feed unavailable")
	}
}

// ParseFilterSpec reads a FilterSpec from query parameters on top of the
// defaults. It does not validate catalog keys.
func ParseFilterSpec(q url.Values) (pipeline.FilterSpec, error) {
	spec := pipeline.DefaultFilterSpec()

	if v := q.Get("set"); v != "" {
		spec.Set = v
	}
	if v := q.Get("rarity"); v != "" {
		spec.Rarity = v
	}
	if v := q.Get("stock"); v != "" {
		spec.Stock = v
	}
	if v := q.Get("sortBy"); v != "" {
		spec.SortBy = v
	}
	spec.Search = q.Get("search")

	var err error
	if spec.MinPrice, err = floatParam(q, "minPrice", spec.MinPrice); err != nil {
		return spec, err
	}
	if spec.MaxPrice, err = floatParam(q, "maxPrice", spec.MaxPrice); err != nil {
		return spec, err
	}
	if q.Has("minProfit") {
		minProfit, err := floatParam(q, "minProfit", 0)
		if err != nil {
			return spec, err
		}
		spec.MinProfit = &minProfit
	}

	return spec, nil
}

func floatParam(q url.Values, key string, def float64) (float64, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%w: %s must be a number", pipeline.ErrInvalidFilter, key)
	}
	return f, nil
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}
