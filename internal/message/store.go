package message

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"Casper/internal/storage"
)

const (
	// defaultCacheSize is the number of decoded records kept in memory.
	defaultCacheSize = 4096
)

// prefixRecord namespaces message records in storage: m:<hash> -> record bytes.
var prefixRecord = []byte("m:")

// ErrUnknownHash is returned when a hash is not present in the store.
var ErrUnknownHash = errors.New("unknown message hash")

// Store is the content-addressed message DAG.
// Records are keyed by the blake3 hash of their canonical encoding, so
// structurally identical subtrees are stored once. It is safe for
// concurrent use and is meant to be shared by every validator of a scenario.
type Store struct {
	db    *storage.Storage
	owned bool // owned is true when Close must close db

	mu    sync.Mutex // mu serialises inserts so count stays exact
	count int

	cache *lru.Cache[Hash, Record] // decoded records, never handed out directly
}

// StoreOption configures a Store during creation.
type StoreOption func(*storeConfig)

type storeConfig struct {
	cacheSize int
}

// WithCacheSize sets the number of decoded records cached in memory.
func WithCacheSize(n int) StoreOption {
	return func(c *storeConfig) {
		c.cacheSize = n
	}
}

// NewStore creates a message store on top of db.
// The caller keeps ownership of db.
func NewStore(db *storage.Storage, opts ...StoreOption) (*Store, error) {
	cfg := storeConfig{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := lru.New[Hash, Record](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create record cache:\n%w", err)
	}

	s := &Store{db: db, cache: cache}

	err = db.IteratePrefix(prefixRecord, func(_, _ []byte) error {
		s.count++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count records:\n%w", err)
	}

	return s, nil
}

// NewMemoryStore creates a store backed by its own in-memory database.
func NewMemoryStore(opts ...StoreOption) (*Store, error) {
	db, err := storage.NewMemory()
	if err != nil {
		return nil, fmt.Errorf("open storage:\n%w", err)
	}

	s, err := NewStore(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	s.owned = true

	return s, nil
}

// Close releases the underlying database if the store owns it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Exists reports whether hash is stored.
func (s *Store) Exists(hash Hash) bool {
	if s.cache.Contains(hash) {
		return true
	}

	ok, err := s.db.Has(makeRecordKey(hash))
	return err == nil && ok
}

// Store stores m and, first, every message in its justification.
// It returns the hash of m. The input is not modified.
// A subtree reached twice through the same Justification element, as in
// trees built by Decompress, is hashed once.
func (s *Store) Store(m Message) (Hash, error) {
	return s.store(m, make(map[*Message]Hash))
}

func (s *Store) store(m Message, seen map[*Message]Hash) (Hash, error) {
	rec := Record{Sender: m.Sender, Estimate: m.Estimate}

	if len(m.Justification) > 0 {
		rec.Justification = make([]Hash, len(m.Justification))

		for i := range m.Justification {
			child := &m.Justification[i]

			h, ok := seen[child]
			if !ok {
				var err error
				if h, err = s.store(*child, seen); err != nil {
					return Hash{}, err
				}
				seen[child] = h
			}

			rec.Justification[i] = h
		}
	}

	return s.insert(rec)
}

// Put stores a shallow record. Every justification hash must already be
// stored, which keeps the DAG acyclic.
func (s *Store) Put(rec Record) (Hash, error) {
	for _, j := range rec.Justification {
		if !s.Exists(j) {
			return Hash{}, fmt.Errorf("%w: justification %s", ErrUnknownHash, j)
		}
	}

	return s.insert(rec.Clone())
}

// Retrieve returns the shallow record for hash.
// The returned value is a copy; changing it does not affect the store.
func (s *Store) Retrieve(hash Hash) (Record, error) {
	if rec, ok := s.cache.Get(hash); ok {
		return rec.Clone(), nil
	}

	data, err := s.db.Get(makeRecordKey(hash))
	if err != nil {
		return Record{}, fmt.Errorf("read record %s:\n%w", hash.Short(), err)
	}
	if data == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownHash, hash)
	}

	rec, err := Decode(data)
	if err != nil {
		return Record{}, fmt.Errorf("decode record %s:\n%w", hash.Short(), err)
	}

	s.cache.Add(hash, rec)

	return rec.Clone(), nil
}

// Decompress expands hash into a full message tree down to the leaves.
// It fails with ErrUnknownHash if any hash in the closure is missing.
// Each hash is expanded once; repeated subtrees share their Justification
// slices, so the result must be treated as read-only.
func (s *Store) Decompress(hash Hash) (Message, error) {
	return s.decompress(hash, make(map[Hash]Message))
}

func (s *Store) decompress(hash Hash, seen map[Hash]Message) (Message, error) {
	if m, ok := seen[hash]; ok {
		return m, nil
	}

	rec, err := s.Retrieve(hash)
	if err != nil {
		return Message{}, err
	}

	m := Message{Sender: rec.Sender, Estimate: rec.Estimate}

	if len(rec.Justification) > 0 {
		m.Justification = make([]Message, len(rec.Justification))

		for i, j := range rec.Justification {
			child, err := s.decompress(j, seen)
			if err != nil {
				return Message{}, err
			}
			m.Justification[i] = child
		}
	}

	seen[hash] = m

	return m, nil
}

// Raw returns the canonical bytes stored for hash.
func (s *Store) Raw(hash Hash) ([]byte, error) {
	data, err := s.db.Get(makeRecordKey(hash))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHash, hash)
	}
	return data, nil
}

// Hashes returns every stored hash in ascending byte order.
func (s *Store) Hashes() ([]Hash, error) {
	var hashes []Hash

	err := s.db.IteratePrefix(prefixRecord, func(key, _ []byte) error {
		if len(key) != len(prefixRecord)+HashSize {
			return nil
		}

		var h Hash
		copy(h[:], key[len(prefixRecord):])
		hashes = append(hashes, h)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return hashes, nil
}

// Len returns the number of distinct records stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

// insert writes rec if its hash is not yet stored and returns the hash.
func (s *Store) insert(rec Record) (Hash, error) {
	data := Encode(rec)
	hash := hashRecord(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Exists(hash) {
		return hash, nil
	}

	if err := s.db.Set(makeRecordKey(hash), data); err != nil {
		return Hash{}, fmt.Errorf("write record %s:\n%w", hash.Short(), err)
	}

	s.cache.Add(hash, rec)
	s.count++

	return hash, nil
}

// makeRecordKey creates a storage key for a record.
func makeRecordKey(hash Hash) []byte {
	key := make([]byte, len(prefixRecord)+HashSize)
	copy(key, prefixRecord)
	copy(key[len(prefixRecord):], hash[:])
	return key
}
