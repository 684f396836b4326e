package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArtifactCache is a flat, content-addressed store of output files: one
// file per distinct content hash, filename = hash string.
//
// The cache is a shared, unsynchronized key space. Concurrent writers for
// the same hash are safe without locking: content at a given hash is by
// definition identical, so last-writer-wins costs only redundant work.
type ArtifactCache struct {
	dir string
}

// OpenCache opens (creating if needed) a directory-backed artifact cache.
func OpenCache(dir string) (*ArtifactCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open artifact cache: %w", err)
	}
	return &ArtifactCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *ArtifactCache) Dir() string { return c.dir }

func (c *ArtifactCache) path(hash string) string {
	return filepath.Join(c.dir, hash)
}

// Save stores bytes under a content hash. Writes go through a temp file
// and rename, so a half-written entry is never visible under the key.
func (c *ArtifactCache) Save(hash string, data []byte) error {
	if hash == "" {
		return fmt.Errorf("save artifact: empty hash")
	}
	tmp, err := os.CreateTemp(c.dir, ".artifact*")
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", hash, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save artifact %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save artifact %s: %w", hash, err)
	}
	if err := os.Rename(tmpName, c.path(hash)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save artifact %s: %w", hash, err)
	}
	return nil
}

// SaveFile copies an existing file into the cache under its content hash.
// Already-present entries are left alone.
func (c *ArtifactCache) SaveFile(path, hash string) error {
	if c.Exists(hash) {
		return nil
	}
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", hash, err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", hash, err)
	}
	return c.Save(hash, data)
}

// Exists reports whether the cache holds content for the hash.
func (c *ArtifactCache) Exists(hash string) bool {
	info, err := os.Stat(c.path(hash))
	return err == nil && info.Mode().IsRegular()
}

// Fetch returns the cached content for a hash.
func (c *ArtifactCache) Fetch(hash string) ([]byte, error) {
	data, err := os.ReadFile(c.path(hash))
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", hash, err)
	}
	return data, nil
}

// FetchTo copies the cached content for a hash to a destination file.
func (c *ArtifactCache) FetchTo(hash, dest string) error {
	data, err := c.Fetch(hash)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("fetch artifact %s: %w", hash, err)
	}
	return nil
}
