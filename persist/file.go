package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileStore persists snapshots to a single JSON file. Saves write to a
// temporary file and rename into place, so a crash mid-save never leaves a
// truncated snapshot behind.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a file store at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   path,
		logger: logger.With(zap.String("component", "file_store")),
	}
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(ctx context.Context, snapshot *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := snapshot.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved",
		zap.String("path", filepath.Base(s.path)),
		zap.Int("bytes", len(data)))
	return nil
}

// Load reads the latest snapshot, or (nil, nil) when none exists.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(data)
}
