package storage

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemStore is an in-memory ObjectStore used by tests and the doctor command.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// Gets counts Get calls, letting tests assert fetch deduplication.
	Gets atomic.Int64

	// Fail, when set, makes every Get return this error.
	Fail error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Put stores a blob under key.
func (m *MemStore) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
}

// Get reads the blob at key.
func (m *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.Gets.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Fail != nil {
		return nil, m.Fail
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

var _ ObjectStore = (*MemStore)(nil)
