package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/secrepo/secrepo/types"
)

const lockRetryInterval = 10 * time.Millisecond

// File is a directory-backed Store: one JSON file per entry under
// root/<keyspace>/<id>.json. Writes are serialized across processes with
// a file lock next to the data, so several tools can share one directory.
type File struct {
	root string
	lock *flock.Flock
}

// NewFile creates a file store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	return &File{
		root: dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
	}, nil
}

// List implements Store.
func (f *File) List(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(f.root, filepath.FromSlash(path)))
	if os.IsNotExist(err) {
		return nil, types.ErrPathNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w: %v", path, types.ErrStoreUnavailable, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Read implements Store.
func (f *File) Read(ctx context.Context, path string) (types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.entryPath(path))
	if os.IsNotExist(err) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w: %v", path, types.ErrStoreUnavailable, err)
	}
	var doc types.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return doc, nil
}

// Write implements Store. The document is written whole through a
// temporary file and rename, so a reader never observes a partial entry.
func (f *File) Write(ctx context.Context, path string, doc types.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.withLock(ctx, func() error {
		target := f.entryPath(path)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		tmp := target + ".tmp"
		if err := os.WriteFile(tmp, raw, 0o600); err != nil {
			return err
		}
		return os.Rename(tmp, target)
	}); err != nil {
		return fmt.Errorf("writing %s: %w: %v", path, types.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete implements Store.
func (f *File) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.withLock(ctx, func() error {
		err := os.Remove(f.entryPath(path))
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}); err != nil {
		return fmt.Errorf("deleting %s: %w: %v", path, types.ErrStoreUnavailable, err)
	}
	return nil
}

func (f *File) entryPath(path string) string {
	return filepath.Join(f.root, filepath.FromSlash(path)+".json")
}

func (f *File) withLock(ctx context.Context, fn func() error) error {
	locked, err := f.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("could not acquire store lock")
	}
	defer func() { _ = f.lock.Unlock() }()
	return fn()
}
