package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/uvuchan/chanchu/domain/file"
)

const jsonFormatVersion = 1

type jsonDocument struct {
	Version int           `json:"version"`
	Files   []file.Record `json:"files"`
}

// JSONFileStore keeps all records in one flat JSON file that is rewritten
// atomically on every Persist.
type JSONFileStore struct {
	path   string
	logger types.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewJSONFileStore creates a store backed by the file at path. The parent
// directory is created if needed.
func NewJSONFileStore(path string, logger types.Logger) (*JSONFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metadata directory: %w", err)
	}
	return &JSONFileStore{path: path, logger: logger, now: time.Now}, nil
}

// LoadAll reads the file. A missing file yields no records; an unparseable
// one is moved aside and also yields no records.
func (s *JSONFileStore) LoadAll(_ context.Context) ([]file.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []file.Record{}, nil
		}
		s.logger.Warn("Failed to read metadata file, starting empty",
			"path", s.path,
			"error", err)
		return []file.Record{}, nil
	}

	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.quarantine(err)
		return []file.Record{}, nil
	}
	if doc.Version != jsonFormatVersion {
		s.quarantine(fmt.Errorf("unsupported format version %d", doc.Version))
		return []file.Record{}, nil
	}

	records := make([]file.Record, 0, len(doc.Files))
	seen := make(map[string]struct{}, len(doc.Files))
	for _, rec := range doc.Files {
		if rec.ID == "" {
			s.logger.Warn("Skipping metadata entry without id", "path", s.path)
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			s.logger.Warn("Skipping duplicate metadata entry", "path", s.path, "id", rec.ID)
			continue
		}
		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	}
	return records, nil
}

// quarantine renames a corrupt file so the next Persist does not overwrite it.
func (s *JSONFileStore) quarantine(cause error) {
	aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Warn("Metadata file is corrupt, starting empty",
			"path", s.path,
			"error", cause,
			"rename_error", err)
		return
	}
	s.logger.Warn("Metadata file is corrupt, moved aside and starting empty",
		"path", s.path,
		"moved_to", aside,
		"error", cause)
}

// Persist writes records to a temp file, syncs it and renames it over the
// target.
func (s *JSONFileStore) Persist(ctx context.Context, records []file.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(jsonDocument{
		Version: jsonFormatVersion,
		Files:   file.CloneList(records),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return writeFileAtomic(s.path, data)
}

// Close is a no-op.
func (s *JSONFileStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes a rename to disk where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
