package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Storage provides a simple key-value store backed by Pebble.
// The database lives on an in-memory filesystem and is gone when the
// process exits.
type Storage struct {
	db *pebble.DB // db is the underlying Pebble database
}

// NewMemory opens a Pebble database on a fresh in-memory filesystem.
func NewMemory() (*Storage, error) {
	opts := &pebble.Options{
		FS:                          vfs.NewMem(),
		Cache:                       pebble.NewCache(8 << 20), // 8 MB cache
		MemTableSize:                4 << 20,                  // 4 MB memtable
		MemTableStopWritesThreshold: 2,
	}
	defer opts.Cache.Unref()

	db, err := pebble.Open("", opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Get retrieves the value for the given key.
// Returns nil if the key does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Has reports whether key is present.
func (s *Storage) Has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, closer.Close()
}

// Set stores a key-value pair.
// Nothing is fsynced since the filesystem is in memory.
func (s *Storage) Set(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

// IteratePrefix calls fn for each key-value pair with the given prefix.
// Keys are visited in lexicographic order. key and value are only valid
// for the duration of the call.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil // all 0xFF, unbounded
}

// Close closes the database and releases the in-memory filesystem.
func (s *Storage) Close() error {
	return s.db.Close()
}
