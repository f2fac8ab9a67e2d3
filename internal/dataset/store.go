package dataset

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	ldb_storage "github.com/syndtr/goleveldb/leveldb/storage"
)

// Store defines the interface for dataset storage.
type Store interface {
	// Get returns a copy of the dataset, or nil if none is held.
	Get(kind Kind) (*Dataset, error)
	// Put replaces the dataset unconditionally.
	Put(kind Kind, d *Dataset) error
	// Close releases any resources held by the store.
	Close() error
}

// InMemoryStore is an in-memory implementation of Store.
// It's thread-safe.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[Kind]*Dataset
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[Kind]*Dataset),
	}
}

// Get retrieves a dataset by kind.
func (s *InMemoryStore) Get(kind Kind) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to avoid external modifications
	return s.data[kind].Copy(), nil
}

// Put stores a copy of d.
func (s *InMemoryStore) Put(kind Kind, d *Dataset) error {
	if d == nil {
		return fmt.Errorf("put %s: nil dataset", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[kind] = d.Copy()
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}

// LevelStore keeps datasets in a LevelDB database so they survive restarts.
type LevelStore struct {
	db *leveldb.DB
}

var levelKeys = map[Kind][]byte{
	Active:  []byte("dataset/active"),
	Pending: []byte("dataset/pending"),
}

// OpenLevelStore opens (creating if necessary) a LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	opt := &ldb_opt.Options{
		ErrorIfExist: false,
		NoSync:       false,
	}
	db, err := leveldb.OpenFile(path, opt)
	if err != nil {
		return nil, fmt.Errorf("open dataset database %s: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

// OpenMemLevelStore opens a LevelDB database backed by memory.
func OpenMemLevelStore() (*LevelStore, error) {
	db, err := leveldb.Open(ldb_storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory dataset database: %w", err)
	}
	return &LevelStore{db: db}, nil
}

// Get reads the dataset of the given kind.
func (s *LevelStore) Get(kind Kind) (*Dataset, error) {
	key, err := levelKey(kind)
	if err != nil {
		return nil, err
	}

	data, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s dataset: %w", kind, err)
	}

	d, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s dataset: %w", kind, err)
	}
	return d, nil
}

// Put writes the dataset with a synced write.
func (s *LevelStore) Put(kind Kind, d *Dataset) error {
	if d == nil {
		return fmt.Errorf("put %s: nil dataset", kind)
	}
	key, err := levelKey(kind)
	if err != nil {
		return err
	}

	if err := s.db.Put(key, encode(d), &ldb_opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("write %s dataset: %w", kind, err)
	}
	return nil
}

// Close closes the database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

func levelKey(kind Kind) ([]byte, error) {
	key, ok := levelKeys[kind]
	if !ok {
		return nil, fmt.Errorf("unknown dataset kind %d", uint8(kind))
	}
	return key, nil
}
