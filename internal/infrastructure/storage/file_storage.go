package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/application/port"
)

// LocalFileStorage implements port.FileStorage on the local filesystem.
// Keys are slash-separated paths relative to baseDir.
type LocalFileStorage struct {
	baseDir string
	baseURL string
	logger  *zap.Logger
}

// NewLocalFileStorage creates a new LocalFileStorage. baseURL is the prefix
// under which stored files are served.
func NewLocalFileStorage(baseDir, baseURL string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Put stores content under a fresh key of the form receipts/<uuid>.<ext>
func (s *LocalFileStorage) Put(ctx context.Context, filename string, content []byte) (string, error) {
	key := "receipts/" + uuid.NewString()
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		key += ext
	}

	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("key", key),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File stored",
		zap.String("key", key),
		zap.String("original_name", filename),
		zap.Int("size", len(content)))
	return key, nil
}

// Get reads a stored file; missing files yield port.ErrNotFound
func (s *LocalFileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file %s: %w", key, port.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// URL returns the address a stored file is served from
func (s *LocalFileStorage) URL(key string) string {
	return s.baseURL + "/" + strings.TrimPrefix(key, "/")
}

// Delete removes a stored file. Deleting a missing file succeeds.
func (s *LocalFileStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("Failed to delete file",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// resolve maps a key to a path inside baseDir, rejecting traversal
func (s *LocalFileStorage) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty storage key")
	}
	cleaned := path.Clean("/" + key)
	if cleaned != "/"+strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("path escapes base directory: %s", key)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	fullPath := filepath.Join(absBase, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(fullPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", key)
	}
	return fullPath, nil
}
