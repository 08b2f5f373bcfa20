package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// DefaultDBPath is the default relative path of the fit cache.
// Open creates the parent directory.
const DefaultDBPath = ".marstat/cache.db"

// ErrNotFound is returned by Get on a cache miss.
var ErrNotFound = errors.New("cache entry not found")

// Key identifies a fit by everything that determines it: the bytes of the
// input dataset, the canonical model configuration and the seed.
type Key struct {
	DatasetHash string `json:"dataset_hash"`
	SpecHash    string `json:"spec_hash"`
	Seed        uint64 `json:"seed"`
}

// ID is the content address of k.
func (k Key) ID() string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%d", k.DatasetHash, k.SpecHash, k.Seed))
	return hex.EncodeToString(sum[:])
}

// Entry is one cached fit artifact.
type Entry struct {
	Key       Key    `json:"key"`
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
	Payload   []byte `json:"-"`
	Size      int    `json:"size"`
}

// Store is the fit cache. Implementations are SQLite or in-memory.
type Store interface {
	// Get returns the entry for k, or ErrNotFound.
	Get(k Key) (*Entry, error)
	// Put inserts or replaces the entry for e.Key.
	Put(e *Entry) error
	// List returns entry metadata, newest first, without payloads.
	List() ([]*Entry, error)
	// InvalidateDataset removes every entry fitted on the dataset hash and
	// returns how many were removed.
	InvalidateDataset(datasetHash string) (int, error)
	// Clear removes every entry and returns how many were removed.
	Clear() (int, error)
	Close() error
}
