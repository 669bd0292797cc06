// Package kvstore implements a small persistent key-value cache backed by JSON files.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/zerr"
)

// entry is the on-disk form of one key. The key is kept so hash collisions are detected.
type entry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Store implements ports.KVStore as one JSON file per key, fronted by an expiring LRU.
type Store struct {
	dir   string
	mu    sync.Mutex
	front *expirable.LRU[string, []byte]
}

// NewStore creates a store rooted at dir. size and ttl bound the in-memory front.
func NewStore(dir string, size int, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrStoreWriteFailed), "create store directory"), "dir", dir)
	}
	if size <= 0 {
		size = 1
	}
	return &Store{
		dir:   filepath.Clean(dir),
		front: expirable.NewLRU[string, []byte](size, nil, ttl),
	}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) ([]byte, bool, error) {
	if v, ok := s.front.Get(key); ok {
		return clone(v), true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	//nolint:gosec // Path is derived from a hash inside the store directory
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrStoreReadFailed), "read entry"), "key", key)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrStoreReadFailed), "decode entry"), "key", key)
	}
	if e.Key != key {
		return nil, false, nil
	}

	s.front.Add(key, e.Value)
	return clone(e.Value), true, nil
}

// Put stores value under key, on disk first.
func (s *Store) Put(key string, value []byte) error {
	data, err := json.Marshal(entry{Key: key, Value: value})
	if err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrStoreWriteFailed), "encode entry"), "key", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := atomicWriteFile(s.path(key), data); err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrStoreWriteFailed), "write entry"), "key", key)
	}
	s.front.Add(key, clone(value))
	return nil
}

// Delete removes key from memory and disk.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.front.Remove(key)
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrStoreWriteFailed), "delete entry"), "key", key)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%016x.json", xxhash.Sum64String(key)))
}

func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
