// Package cache implements the indexed persistent key-value store used
// as the offline mirror of synchronized state.
//
// Values live under composite keys "<prefix>-<id>". A side index at
// "__index__:<prefix>" holds a JSON array of every composite key written
// under the prefix, so membership can be enumerated without scanning the
// whole keyspace. Every indexed key has a stored value unless the value
// was removed out-of-band; the reverse is not checked.
//
// The cache is independent of the in-memory sync state: callers write it
// directly and read it back with no network interaction. A single active
// writer per directory is assumed (pebble enforces this with its own
// directory lock).
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

var (
	// ErrNotFound is returned by Get when no value is stored for the id.
	ErrNotFound = errors.New("cache entry not found")

	// ErrClosed is returned by all operations after Close.
	ErrClosed = errors.New("cache is closed")
)

const indexKeyPrefix = "__index__:"

// Cache is a prefix-scoped view over a pebble store. All operations are
// synchronous and local.
type Cache struct {
	prefix string

	mu sync.Mutex
	db *pebble.DB
}

// Open opens (creating if necessary) the store in dir, scoped to prefix.
func Open(dir, prefix string) (*Cache, error) {
	if prefix == "" {
		return nil, fmt.Errorf("prefix is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache at %s: %w", dir, err)
	}
	return &Cache{prefix: prefix, db: db}, nil
}

// Close releases the underlying store. Safe to call more than once.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	return nil
}

// Set persists value under id and records the composite key in the
// prefix's index. Re-setting an id overwrites the value and leaves the
// index unchanged (set semantics).
func (c *Cache) Set(id string, value []byte) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}

	key := c.compositeKey(id)
	if err := c.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}

	index, err := c.readIndex()
	if err != nil {
		return err
	}
	for _, k := range index {
		if k == key {
			return nil
		}
	}
	return c.writeIndex(append(index, key))
}

// Get returns the value stored under id, or ErrNotFound.
func (c *Cache) Get(id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, ErrClosed
	}
	return c.get(c.compositeKey(id))
}

// All enumerates the index and returns every resolvable entry keyed by
// id. Index keys whose value has disappeared are skipped silently.
func (c *Cache) All() (map[string][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, ErrClosed
	}

	index, err := c.readIndex()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(index))
	for _, key := range index {
		value, err := c.get(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[key[len(c.prefix)+1:]] = value
	}
	return out, nil
}

// Remove deletes the value for id and drops its key from the index.
// Removing an absent id is a no-op.
func (c *Cache) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}

	key := c.compositeKey(id)
	if err := c.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	index, err := c.readIndex()
	if err != nil {
		return err
	}
	kept := index[:0]
	for _, k := range index {
		if k != key {
			kept = append(kept, k)
		}
	}
	if len(kept) == len(index) {
		return nil
	}
	return c.writeIndex(kept)
}

// Clear deletes every indexed value, then the index itself.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}

	index, err := c.readIndex()
	if err != nil {
		return err
	}
	for _, key := range index {
		if err := c.db.Delete([]byte(key), pebble.Sync); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	if err := c.db.Delete([]byte(c.indexKey()), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	return nil
}

func (c *Cache) compositeKey(id string) string {
	return c.prefix + "-" + id
}

func (c *Cache) indexKey() string {
	return indexKeyPrefix + c.prefix
}

// get reads a raw key, copying the value out of pebble's buffer.
func (c *Cache) get(key string) ([]byte, error) {
	value, closer, err := c.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

// readIndex returns the prefix's composite keys in insertion order. A
// missing index reads as empty.
func (c *Cache) readIndex() ([]string, error) {
	raw, err := c.get(c.indexKey())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var index []string
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("corrupt index for prefix %s: %w", c.prefix, err)
	}
	return index, nil
}

func (c *Cache) writeIndex(keys []string) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := c.db.Set([]byte(c.indexKey()), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store index: %w", err)
	}
	return nil
}
