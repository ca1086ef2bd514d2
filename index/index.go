// Package index holds the in-memory metadata index of the asset store.
//
// The index maps a recipe identifier to the next unused image sequence
// number. Every method is atomic on its own; callers that chain several calls
// get no atomicity across them.
package index

import (
	"errors"
	"math"
	"sync"

	"github.com/tidwall/btree"
)

var (
	ErrNotExist  = errors.New("index: entry does not exist")
	ErrExist     = errors.New("index: entry already exists")
	ErrExhausted = errors.New("index: sequence exhausted")
)

// Index is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries *btree.Map[string, uint32]
}

func New() *Index {
	return &Index{
		entries: btree.NewMap[string, uint32](0),
	}
}

// FromSnapshot builds an index holding a copy of snapshot.
func FromSnapshot(snapshot map[string]uint32) *Index {
	idx := New()
	for key, next := range snapshot {
		idx.entries.Set(key, next)
	}

	return idx
}

func (idx *Index) Contains(key string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, exists := idx.entries.Get(key)
	return exists
}

// Get returns the next sequence number of key without consuming it.
func (idx *Index) Get(key string) (uint32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.entries.Get(key)
}

// Insert adds key with the given counter unless it is already present.
func (idx *Index) Insert(key string, next uint32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.entries.Get(key); exists {
		return ErrExist
	}

	idx.entries.Set(key, next)
	return nil
}

// Set stores the counter for key, creating the entry if required.
// Used by reconciliation, which may only raise counters.
func (idx *Index) Set(key string, next uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if current, exists := idx.entries.Get(key); exists && current > next {
		return
	}

	idx.entries.Set(key, next)
}

func (idx *Index) Remove(key string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.entries.Delete(key); !ok {
		return ErrNotExist
	}

	return nil
}

// Next reads the counter of key and increments it in one step.
// The returned value is unique for key for the lifetime of the entry.
func (idx *Index) Next(key string) (uint32, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current, exists := idx.entries.Get(key)
	if !exists {
		return 0, ErrNotExist
	}
	if current == math.MaxUint32 {
		return 0, ErrExhausted
	}

	idx.entries.Set(key, current+1)
	return current, nil
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.entries.Len()
}

// Keys returns all identifiers in ascending order.
func (idx *Index) Keys() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.entries.Keys()
}

// Snapshot returns a point-in-time copy of the whole index.
func (idx *Index) Snapshot() map[string]uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	snapshot := make(map[string]uint32, idx.entries.Len())
	idx.entries.Scan(func(key string, next uint32) bool {
		snapshot[key] = next
		return true
	})

	return snapshot
}
