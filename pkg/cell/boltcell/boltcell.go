// Package boltcell implements cell.Cell on top of go.etcd.io/bbolt.
//
// A single bucket holds a single key, whose value is a version-prefixed
// JSON envelope. bbolt's own commit protocol (copy-on-write B+tree pages,
// mmap, fsync on transaction commit) already gives the durability protocol
// spec.md's AtomicPersistentCell asks for -- write to a new location, flush,
// then atomically swap the pointer to it. Re-implementing tmp-file+rename
// on top of that would fight the library instead of using it, so this
// backend does not; pkg/cell/filecell is kept alongside it for callers who
// want the literal filesystem-level protocol instead.
package boltcell

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/warren-agent/pkg/cell"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("cell")

var keyName = []byte("current")

const currentVersion = 1

// Cell is a bbolt-backed cell.Cell[T].
type Cell[T any] struct {
	mu     sync.Mutex
	db     *bolt.DB
	cached T
}

// Open opens (creating if necessary) a bbolt database at path and wraps its
// single value as a Cell[T]. If the store already holds a value, it is read
// and version-checked immediately; a mismatched version makes Open fail
// with cell.ErrStateIncompatible rather than silently misinterpreting the
// bytes. If the store is empty, initial seeds the returned cell's first
// Get().
func Open[T any](path string, initial T) (*Cell[T], error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltcell: open %s: %w", path, err)
	}

	c := &Cell[T]{db: db, cached: initial}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		raw := b.Get(keyName)
		if raw == nil {
			return nil
		}
		var env cell.Envelope[T]
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("%w: %v", cell.ErrStateIncompatible, err)
		}
		if env.Version != currentVersion {
			return fmt.Errorf("%w: stored version %d, expected %d", cell.ErrStateIncompatible, env.Version, currentVersion)
		}
		c.cached = env.Data
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

// Get returns the last successfully Set value, or the initial value passed
// to Open if Set has never been called.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

// Set atomically replaces the stored value. On success, every subsequent
// Get() in this process observes v, and the write survives a crash. On
// failure it returns an error wrapping cell.ErrPersistenceFailure and
// leaves the previously persisted value intact.
func (c *Cell[T]) Set(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	env := cell.Envelope[T]{Version: currentVersion, Data: v}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", cell.ErrPersistenceFailure, err)
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put(keyName, raw)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", cell.ErrPersistenceFailure, err)
	}

	c.cached = v
	return nil
}

// Close releases the underlying bbolt database handle.
func (c *Cell[T]) Close() error {
	return c.db.Close()
}
