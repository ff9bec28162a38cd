package internal

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const fileStoreExt = ".json"

// FileStore keeps one JSON file per key under a directory
type FileStore struct {
	fs   afero.Fs
	root string
}

// NewFileStore creates a FileStore on the OS filesystem
func NewFileStore(root string) *FileStore {
	return NewFileStoreFs(afero.NewOsFs(), root)
}

// NewFileStoreFs creates a FileStore on any afero filesystem
func NewFileStoreFs(fs afero.Fs, root string) *FileStore {
	return &FileStore{fs: fs, root: root}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, url.PathEscape(key)+fileStoreExt)
}

// Get returns the value stored under key
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, &StorageError{Key: key, Op: "get", Err: err}
	}
	return data, nil
}

// Put writes value to a temp file and renames it over the key's file
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return &StorageError{Key: key, Op: "put", Err: err}
	}

	tmp, err := afero.TempFile(s.fs, s.root, ".tmp-*")
	if err != nil {
		return &StorageError{Key: key, Op: "put", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return &StorageError{Key: key, Op: "put", Err: err}
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return &StorageError{Key: key, Op: "put", Err: err}
	}

	if err := s.fs.Rename(tmpName, s.path(key)); err != nil {
		s.fs.Remove(tmpName)
		return &StorageError{Key: key, Op: "put", Err: err}
	}
	return nil
}

// Delete removes key
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := s.fs.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return &StorageError{Key: key, Op: "delete", Err: err}
	}
	return nil
}

// Keys lists keys with the given prefix in sorted order
func (s *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Key: prefix, Op: "keys", Err: err}
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileStoreExt) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileStoreExt))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}
