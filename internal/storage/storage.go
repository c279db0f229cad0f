package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/toreca-arbitrage/internal/models"
)

var ErrUnknownSource = errors.New("unknown source")

// SnapshotStore persists one price snapshot per source. Save replaces the
// previous snapshot wholesale.
type SnapshotStore interface {
	Save(ctx context.Context, source models.Source, records []models.PriceRecord) error
	Load(ctx context.Context, source models.Source) ([]models.PriceRecord, error)
}

// Run describes one crawl run that produced a snapshot.
type Run struct {
	ID         uuid.UUID
	Source     models.Source
	StartedAt  time.Time
	FinishedAt time.Time
	Discovered int
	Extracted  int
	Skipped    int
	Failed     int
}

// RunStore is implemented by stores that also keep a crawl run history.
type RunStore interface {
	SnapshotStore
	SaveRun(ctx context.Context, run Run, records []models.PriceRecord) error
}

// RunHistory is implemented by stores that can report the last crawl run.
type RunHistory interface {
	LatestRun(ctx context.Context, source models.Source) (*Run, error)
}

var snapshotFiles = map[models.Source]string{
	models.SourceJapanToreca: "toreca-prices.json",
	models.SourceTorecacamp:  "torecacamp-prices.json",
}

// FileName returns the snapshot file name used for source.
func FileName(source models.Source) (string, error) {
	name, ok := snapshotFiles[source]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return name, nil
}

// FileStore keeps snapshots as flat JSON arrays inside dir.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	logger *slog.Logger
}

func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	return &FileStore{
		dir:    dir,
		logger: logger.With("component", "file_store"),
	}, nil
}

func (fs *FileStore) path(source models.Source) (string, error) {
	name, err := FileName(source)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.dir, name), nil
}

func (fs *FileStore) Save(ctx context.Context, source models.Source, records []models.PriceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := fs.path(source)
	if err != nil {
		return err
	}

	if records == nil {
		records = []models.PriceRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Write to temp file first so readers never see a partial snapshot
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	fs.logger.Info("snapshot saved", "source", source, "records", len(records), "path", path)
	return nil
}

// Load returns the snapshot for source. A missing file is an empty snapshot;
// records failing validation are dropped.
func (fs *FileStore) Load(ctx context.Context, source models.Source) ([]models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := fs.path(source)
	if err != nil {
		return nil, err
	}

	fs.mu.RLock()
	data, err := os.ReadFile(path)
	fs.mu.RUnlock()

	if errors.Is(err, os.ErrNotExist) {
		return []models.PriceRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var records []models.PriceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}

	return ValidRecords(records, source, fs.logger), nil
}

// ValidRecords filters out records that fail validation and logs each drop.
func ValidRecords(records []models.PriceRecord, source models.Source, logger *slog.Logger) []models.PriceRecord {
	valid := make([]models.PriceRecord, 0, len(records))
	for _, r := range records {
		if problems := r.Validate(); len(problems) > 0 {
			logger.Warn("dropping invalid snapshot record",
				"source", source,
				"url", r.URL,
				"problems", problems)
			continue
		}
		valid = append(valid, r)
	}
	return valid
}
