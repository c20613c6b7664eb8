package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Cache stores JSON-serializable values with an independent TTL per entry.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get unmarshals the entry for key into out and reports whether a live
	// entry existed.
	Get(key string, out any) (bool, error)
	// Set stores value under key, expiring after ttl.
	Set(key string, value any, ttl time.Duration) error
}

// Badger is a disk-backed Cache. Badger handles per-entry expiry natively, so
// stale entries vanish without a sweeper.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger-backed cache at dir.
func OpenBadger(dir string) (*Badger, error) {
	db, err := badger.Open(
		badger.DefaultOptions(dir).
			WithNumVersionsToKeep(0).
			WithValueLogFileSize(64 * 1024 * 1024).
			WithLogger(quietLogger{}),
	)
	if err != nil {
		return nil, fmt.Errorf("open cache at %s: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(key string, out any) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return true, nil
}

func (b *Badger) Set(key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), payload)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Close flushes pending updates to disk.
func (b *Badger) Close() error {
	return b.db.Close()
}

// quietLogger routes badger's chatter through the standard logger.
type quietLogger struct{}

func (quietLogger) Errorf(format string, args ...any)   { log.Printf("[cache] "+format, args...) }
func (quietLogger) Warningf(format string, args ...any) { log.Printf("[cache] "+format, args...) }
func (quietLogger) Infof(string, ...any)                {}
func (quietLogger) Debugf(string, ...any)               {}

// Memory is an in-process Cache used by tests and cache-free operation.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// Now is swappable so tests can control expiry.
	Now func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		Now:     time.Now,
	}
}

func (m *Memory) Get(key string, out any) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && m.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Set(key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = m.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}
