package cachestore

import (
	"strings"
	"sync"
)

// MemoryBackend is a volatile in-process backend. Entries do not survive the
// process; everything else matches the durable backends.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]map[string][]byte // namespace path -> key -> record
}

// NewMemoryBackend returns an empty volatile backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]map[string][]byte)}
}

func nsKey(namespace []string) string {
	return strings.Join(namespace, "/")
}

func (b *MemoryBackend) Load(namespace []string, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bucket, ok := b.records[nsKey(namespace)]
	if !ok {
		return nil, false, nil
	}
	data, ok := bucket[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (b *MemoryBackend) Store(namespace []string, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns := nsKey(namespace)
	bucket, ok := b.records[ns]
	if !ok {
		bucket = make(map[string][]byte)
		b.records[ns] = bucket
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	bucket[key] = stored
	return nil
}

func (b *MemoryBackend) Delete(namespace []string, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bucket, ok := b.records[nsKey(namespace)]; ok {
		delete(bucket, key)
	}
	return nil
}

func (b *MemoryBackend) Clear(namespace []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, nsKey(namespace))
	return nil
}

func (b *MemoryBackend) Keys(namespace []string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bucket, ok := b.records[nsKey(namespace)]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	return keys, nil
}

func (b *MemoryBackend) Close() error { return nil }
