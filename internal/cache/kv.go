// Package cache implements the semantic result cache: exact-match lookups
// over a TTL'd key-value store, plus embedding-similarity lookups so a
// rephrased question can reuse a previous answer's retrieval set.
package cache

import (
	"encoding/binary"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/clearlaw/lexengine/internal/errors"
	"github.com/clearlaw/lexengine/internal/storage"
)

// KVStore is a thin TTL-aware wrapper over badger. The cache is the only
// writer in the engine; everything else reads object storage.
type KVStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenKV opens (or creates) the cache database at path. An empty path opens
// an in-memory database, used by tests and by deployments that treat the
// cache as purely per-process.
func OpenKV(path string, logger *slog.Logger) (*KVStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCacheStore, "open cache database", err)
	}
	return &KVStore{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *KVStore) Close() error {
	return s.db.Close()
}

// Get reads the value at key. Returns storage.ErrNotFound when the key is
// absent or its TTL has expired.
func (s *KVStore) Get(key string) ([]byte, error) {
	value, _, err := s.GetWithTTL(key)
	return value, err
}

// GetWithTTL reads the value at key along with its remaining time-to-live.
// A zero duration means the entry never expires.
func (s *KVStore) GetWithTTL(key string) ([]byte, time.Duration, error) {
	var (
		value     []byte
		expiresAt uint64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		expiresAt = item.ExpiresAt()
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, 0, storage.ErrNotFound
	}
	if err != nil {
		return nil, 0, errors.New(errors.ErrCodeCacheStore, "cache read", err)
	}

	var remaining time.Duration
	if expiresAt > 0 {
		remaining = time.Until(time.Unix(int64(expiresAt), 0))
		if remaining <= 0 {
			// Expired between the iterator check and here.
			return nil, 0, storage.ErrNotFound
		}
	}
	return value, remaining, nil
}

// SetTTL writes value at key with the given time-to-live.
func (s *KVStore) SetTTL(key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return errors.New(errors.ErrCodeCacheStore, "cache write", err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *KVStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return errors.New(errors.ErrCodeCacheStore, "cache delete", err)
	}
	return nil
}

// IncrCounter atomically increments a uint64 counter at key and returns the
// new value. Counters share the entry TTL semantics of SetTTL.
func (s *KVStore) IncrCounter(key string, ttl time.Duration) (uint64, error) {
	var count uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		switch {
		case err == badger.ErrKeyNotFound:
			count = 1
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				if len(val) == 8 {
					count = binary.BigEndian.Uint64(val)
				}
				return nil
			}); err != nil {
				return err
			}
			count++
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		entry := badger.NewEntry([]byte(key), buf)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return 0, errors.New(errors.ErrCodeCacheStore, "cache counter", err)
	}
	return count, nil
}

// Counter reads a counter without incrementing. Absent counters read zero.
func (s *KVStore) Counter(key string) uint64 {
	data, err := s.Get(key)
	if err != nil || len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// ScanPrefix visits every live entry under prefix. The callback receives a
// copy of each value, so it may retain them.
func (s *KVStore) ScanPrefix(prefix string, fn func(key string, value []byte) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.KeyCopy(nil)), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.New(errors.ErrCodeCacheStore, "cache scan", err)
	}
	return nil
}
