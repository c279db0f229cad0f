package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/maltedev/toreca-arbitrage/internal/storage"
)

var errNotFound = errors.New("not found")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]error
	calls    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:    make(map[string]string),
		failures: make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, url)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := f.failures[url]; ok {
		return "", err
	}
	if html, ok := f.pages[url]; ok {
		return html, nil
	}
	return "", errNotFound
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return ctx.Err()
}

type memoryStore struct {
	mu    sync.Mutex
	saved map[models.Source][]models.PriceRecord
	saves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[models.Source][]models.PriceRecord)}
}

func (s *memoryStore) Save(ctx context.Context, source models.Source, records []models.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.saved[source] = records
	return nil
}

func (s *memoryStore) Load(ctx context.Context, source models.Source) ([]models.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[source], nil
}

type runRecordingStore struct {
	*memoryStore
	runs []storage.Run
}

func (s *runRecordingStore) SaveRun(ctx context.Context, run storage.Run, records []models.PriceRecord) error {
	s.runs = append(s.runs, run)
	return s.Save(ctx, run.Source, records)
}
