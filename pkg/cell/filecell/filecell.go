// Package filecell implements cell.Cell directly against the filesystem,
// following the literal durability protocol from spec.md: serialize to a
// temporary file in the same directory as the target, fsync it, then
// rename it over the target (rename is atomic within one filesystem). On
// startup, a leftover temp file from an interrupted write is discarded.
package filecell

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/warren-agent/pkg/cell"
)

const currentVersion = 1

// Cell is a filesystem-backed cell.Cell[T].
type Cell[T any] struct {
	mu   sync.Mutex
	path string
	tmp  string

	cached T
}

// Open reads path if it exists (version-checking its contents) and
// discards any leftover "<path>.tmp" from an interrupted prior write.
func Open[T any](path string, initial T) (*Cell[T], error) {
	c := &Cell[T]{
		path:   path,
		tmp:    path + ".tmp",
		cached: initial,
	}

	if err := os.Remove(c.tmp); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("filecell: discard stale temp file %s: %w", c.tmp, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("filecell: read %s: %w", path, err)
	}

	var env cell.Envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", cell.ErrStateIncompatible, err)
	}
	if env.Version != currentVersion {
		return nil, fmt.Errorf("%w: stored version %d, expected %d", cell.ErrStateIncompatible, env.Version, currentVersion)
	}
	c.cached = env.Data
	return c, nil
}

// Get returns the last successfully Set value, or the initial value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

// Set writes v to a temp file, flushes it, and renames it over the target
// path. Any failure at any step leaves the previously persisted value
// untouched and returns an error wrapping cell.ErrPersistenceFailure.
func (c *Cell[T]) Set(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	env := cell.Envelope[T]{Version: currentVersion, Data: v}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", cell.ErrPersistenceFailure, err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %v", cell.ErrPersistenceFailure, err)
	}

	f, err := os.OpenFile(c.tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", cell.ErrPersistenceFailure, err)
	}

	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(c.tmp)
		return fmt.Errorf("%w: write temp file: %v", cell.ErrPersistenceFailure, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(c.tmp)
		return fmt.Errorf("%w: fsync temp file: %v", cell.ErrPersistenceFailure, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(c.tmp)
		return fmt.Errorf("%w: close temp file: %v", cell.ErrPersistenceFailure, err)
	}

	if err := os.Rename(c.tmp, c.path); err != nil {
		return fmt.Errorf("%w: rename into place: %v", cell.ErrPersistenceFailure, err)
	}

	c.cached = v
	return nil
}

// Close is a no-op: filecell holds no open file handle between calls to
// Set. It exists so callers can treat filecell and boltcell identically.
func (c *Cell[T]) Close() error {
	return nil
}
