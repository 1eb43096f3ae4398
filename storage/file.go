package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileSuffix = ".json"

// fileStorage stores one file per key under a directory. Key names are
// base64url-encoded so raw tokens never appear in the file system.
type fileStorage struct {
	path string
	mu   sync.RWMutex
}

// NewFileStorage returns a Storage persisting to the given directory
func NewFileStorage(path string) Storage {
	return &fileStorage{path: path}
}

func (f *fileStorage) Init(ctx context.Context) error {
	if f.path == "" {
		return fmt.Errorf("file storage: path is required")
	}
	return os.MkdirAll(f.path, 0o700)
}

func (f *fileStorage) Stop() error {
	return nil
}

func (f *fileStorage) filename(key string) string {
	encoded := base64.URLEncoding.EncodeToString([]byte(key))
	return filepath.Join(f.path, encoded+fileSuffix)
}

func (f *fileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.filename(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file storage: read %q: %w", key, err)
	}
	return data, nil
}

func (f *fileStorage) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Write-then-rename so a crash mid-write never leaves a torn value
	target := f.filename(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("file storage: write %q: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("file storage: rename %q: %w", key, err)
	}
	return nil
}

func (f *fileStorage) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.filename(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file storage: remove %q: %w", key, err)
	}
	return nil
}

func (f *fileStorage) Keys(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, fmt.Errorf("file storage: list: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		decoded, err := base64.URLEncoding.DecodeString(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			continue
		}
		keys = append(keys, string(decoded))
	}
	return keys, nil
}
