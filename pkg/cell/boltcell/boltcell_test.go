package boltcell

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cuemby/warren-agent/pkg/cell"
	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltCellGetSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.db")

	c, err := Open[map[string]int](path, nil)
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Get())

	require.NoError(t, c.Set(map[string]int{"a": 1}))
	assert.Equal(t, map[string]int{"a": 1}, c.Get())
}

func TestBoltCellSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.db")

	c, err := Open[map[string]int](path, nil)
	require.NoError(t, err)
	require.NoError(t, c.Set(map[string]int{"a": 1}))
	require.NoError(t, c.Close())

	reopened, err := Open[map[string]int](path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, map[string]int{"a": 1}, reopened.Get())
}

func TestBoltCellVersionMismatchFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.db")

	// Seed the bucket with an envelope from a future version, simulating an
	// on-disk layout newer than this binary understands.
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	raw, err := json.Marshal(cell.Envelope[map[string]int]{Version: 999, Data: map[string]int{"a": 1}})
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put(keyName, raw)
	}))
	require.NoError(t, db.Close())

	_, err = Open[map[string]int](path, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cell.ErrStateIncompatible))
}
