// Package store provides durable storage for step records and cached
// artifacts. The record store is append-only and multi-writer: every record
// file has a checksum-qualified unique name, so concurrent recorders never
// need coordination.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the metadata store holding one serialized record per step.
// Implementations map a single location string to a flat namespace of
// record files; a local directory is the common case, but anything
// mountable (remote object storage exposed through a filesystem) works.
type Store interface {
	// Location returns the location string identifying this store.
	Location() string

	// List enumerates the record filenames currently in the store.
	// The listing is a point-in-time snapshot: records written while the
	// listing is consumed may or may not appear.
	List(ctx context.Context) ([]string, error)

	// Read returns the contents of one record file.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write creates a record file. Names are unique by construction
	// (step id + content checksum), so Write never overwrites.
	Write(ctx context.Context, name string, data []byte) error
}

// DirStore is a Store backed by a flat directory.
type DirStore struct {
	dir string
}

// Open opens (creating if needed) a directory-backed record store.
func Open(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Location returns the store directory.
func (s *DirStore) Location() string { return s.dir }

// List returns the names of all record files (".json") in the store.
func (s *DirStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list record store: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Read returns the contents of one record file.
func (s *DirStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", name, err)
	}
	return data, nil
}

// Write creates a record file via a temp file and rename, so a concurrent
// reader never observes a partial record.
func (s *DirStore) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp*")
	if err != nil {
		return fmt.Errorf("write record %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write record %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write record %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write record %s: %w", name, err)
	}
	return nil
}
