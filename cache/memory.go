package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	storedAt time.Time
	bytes    []byte
}

// MemCache is an in-memory Provider, mainly for tests.
type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]memEntry
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]memEntry),
	}
}

func (m MemCache) Get(key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	if !ok {
		return nil, false, nil
	}
	return entry.bytes, true, nil
}

func (m MemCache) Put(key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = memEntry{time.Now(), bytes}
	return nil
}

func (m MemCache) Purge(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
}

func (m MemCache) Has(key string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.db[key]
	return ok
}

func (m MemCache) Keys(prefix string, cb func(string)) {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db))
	for key := range m.db {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mutex.RUnlock()
	for _, key := range keys {
		cb(key)
	}
}

func (m MemCache) Trim(prefix string, max int) error {
	if max <= 0 {
		return nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	keys := make([]string, 0)
	for key := range m.db {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if len(keys) <= max {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool {
		return m.db[keys[i]].storedAt.Before(m.db[keys[j]].storedAt)
	})
	for _, key := range keys[:len(keys)-max] {
		delete(m.db, key)
	}
	return nil
}
