package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/brojonat/poolsniper/service/ledger"
)

// FileStore persists the open position set as a JSON array on local disk.
// Saves go through a temporary file and a rename so a crash never leaves a torn file.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger.With("component", "file_store")}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// LoadPositions reads the persisted set. A missing or empty file yields no positions.
// A corrupt file is moved aside to <path>.corrupt and also yields no positions.
func (s *FileStore) LoadPositions(ctx context.Context) ([]ledger.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []ledger.Position{}, nil
		}
		return nil, fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%w: state path %s is a directory", ErrInvalidInput, s.path)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return []ledger.Position{}, nil
	}

	var positions []ledger.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		corrupt := s.path + ".corrupt"
		s.logger.ErrorContext(ctx, "state file is corrupt, starting empty",
			"path", s.path,
			"moved_to", corrupt,
			"error", err,
		)
		if rerr := os.Rename(s.path, corrupt); rerr != nil {
			s.logger.WarnContext(ctx, "failed to move corrupt state file", "error", rerr)
		}
		return []ledger.Position{}, nil
	}
	if positions == nil {
		positions = []ledger.Position{}
	}
	return positions, nil
}

// SavePositions replaces the persisted set with positions.
func (s *FileStore) SavePositions(ctx context.Context, positions []ledger.Position) error {
	if positions == nil {
		positions = []ledger.Position{}
	}
	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	if err := writeSynced(tmpPath, data); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
