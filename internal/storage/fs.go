package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/pantry/internal/apperr"
)

const (
	fileExt    = ".json"
	tempPrefix = ".pantry-tmp-"
)

// Compile-time interface check.
var _ Provider = (*FS)(nil)

// FS implements Provider with one file per key under a root directory.
type FS struct {
	root string // absolute path to the data directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute data directory.
func (f *FS) Root() string {
	return f.root
}

// keyPath maps a key to its file, rejecting keys that could escape the root.
func (f *FS) keyPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("storage: invalid key: %s", key)
	}
	return filepath.Join(f.root, key+fileExt), nil
}

// KeyForPath returns the key stored at path, or ok=false for files that
// are not key files (temp files, other extensions, subdirectories).
func (f *FS) KeyForPath(path string) (string, bool) {
	if filepath.Dir(path) != f.root {
		return "", false
	}
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	return strings.TrimSuffix(name, fileExt), true
}

// Get returns the bytes stored under key.
func (f *FS) Get(key string) ([]byte, error) {
	p, err := f.keyPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("storage: get %s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return data, nil
}

// Put atomically writes value: tmp file → fsync → rename.
func (f *FS) Put(key string, value []byte) error {
	p, err := f.keyPath(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the file for key.
func (f *FS) Delete(key string) error {
	p, err := f.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys in lexical order.
func (f *FS) Keys() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if key, ok := f.KeyForPath(filepath.Join(f.root, e.Name())); ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}
