package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/carwatch/olx-monitor/internal/models"
)

const (
	seenFileName    = "olx_seen_ads.json"
	archiveFileName = "olx_accumulated_ads.json"
)

// FileStore keeps the ledger and archive as two JSON files in one directory.
// Mark and append are separate writes; a crash between them can leave an ad
// marked seen but missing from the archive.
type FileStore struct {
	mu          sync.Mutex
	seenPath    string
	archivePath string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{
		seenPath:    filepath.Join(dir, seenFileName),
		archivePath: filepath.Join(dir, archiveFileName),
	}, nil
}

func (s *FileStore) IsSeen(_ context.Context, adID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, err := s.loadSeen()
	if err != nil {
		return false, err
	}
	return slices.Contains(seen, adID), nil
}

func (s *FileStore) MarkSeen(_ context.Context, adID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, err := s.loadSeen()
	if err != nil {
		return err
	}
	if slices.Contains(seen, adID) {
		return nil
	}
	return writeJSON(s.seenPath, append(seen, adID))
}

func (s *FileStore) Reset(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, err := s.loadSeen()
	if err != nil {
		return 0, err
	}
	if err := writeJSON(s.seenPath, []string{}); err != nil {
		return 0, err
	}
	return len(seen), nil
}

func (s *FileStore) Append(_ context.Context, ad models.AdRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ads, err := s.loadArchive()
	if err != nil {
		return err
	}
	if slices.ContainsFunc(ads, func(a models.AdRecord) bool { return a.ID == ad.ID }) {
		return nil
	}
	return writeJSON(s.archivePath, append([]models.AdRecord{ad}, ads...))
}

func (s *FileStore) ListAll(_ context.Context) ([]models.AdRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadArchive()
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) loadSeen() ([]string, error) {
	seen := []string{}
	return seen, readJSON(s.seenPath, &seen)
}

func (s *FileStore) loadArchive() ([]models.AdRecord, error) {
	ads := []models.AdRecord{}
	return ads, readJSON(s.archivePath, &ads)
}

// readJSON leaves v untouched when the file does not exist.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path atomically through a temp file in the same directory.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
