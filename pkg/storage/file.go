package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	dirPerms  = 0o700
	filePerms = 0o600
)

// FileStorage stores one record per file under a root directory.
//
// Put writes to a temporary file in the same directory and renames it over
// the record, which gives the atomic-replace guarantee the token's DO store
// relies on.
type FileStorage struct {
	mu      sync.RWMutex
	rootDir string
}

// NewFile creates a file-backed Backend rooted at dir, creating it with
// owner-only permissions if needed.
func NewFile(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}
	return &FileStorage{rootDir: dir}, nil
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.rootDir, key+".rec")
}

// Get retrieves the value for the given key.
func (f *FileStorage) Get(key string) ([]byte, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("file storage: invalid key %q", key)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("file storage: read %q: %w", key, err)
	}
	return data, nil
}

// Put stores the value under the key via temp-file + rename.
func (f *FileStorage) Put(key string, value []byte) error {
	if !ValidKey(key) {
		return fmt.Errorf("file storage: invalid key %q", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.rootDir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("file storage: create temp for %q: %w", key, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := tmp.Chmod(filePerms); err != nil {
		cleanup()
		return fmt.Errorf("file storage: chmod temp for %q: %w", key, err)
	}
	if _, err := tmp.Write(value); err != nil {
		cleanup()
		return fmt.Errorf("file storage: write %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("file storage: sync %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file storage: close %q: %w", key, err)
	}

	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file storage: replace %q: %w", key, err)
	}
	return nil
}

// Delete removes the record.
func (f *FileStorage) Delete(key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("file storage: invalid key %q", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file storage: delete %q: %w", key, err)
	}
	return nil
}

// List returns all present keys.
func (f *FileStorage) List() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.rootDir)
	if err != nil {
		return nil, fmt.Errorf("file storage: list: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".rec") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".rec"))
	}
	return keys, nil
}
