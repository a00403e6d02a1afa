package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/stackmesh/tradepilot/pkg/errors"
)

// MemoryStore is an in-process Store used by tests and the backtest runtime.
// It mirrors the Redis semantics the rest of the system depends on: absent
// keys return ErrCodeKeyNotFound, TTLs expire lazily, and pub/sub fans out
// to every active subscriber.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string]memoryEntry
	subscribers map[string][]chan string
	now         func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]memoryEntry),
		subscribers: make(map[string][]chan string),
		now:         time.Now,
	}
}

// SetClock overrides the store's clock. Test use only.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	now := m.now()
	m.mu.RUnlock()

	if !ok || entry.expired(now) {
		return "", errors.Newf(errors.ErrCodeKeyNotFound, "key %s not found", key)
	}

	return entry.value, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = m.newEntry(value, ttl)

	return nil
}

// SetNX implements Store.
func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok && !entry.expired(m.now()) {
		return false, nil
	}

	m.entries[key] = m.newEntry(value, ttl)

	return true, nil
}

// GetJSON implements Store.
func (m *MemoryStore) GetJSON(ctx context.Context, key string, dest any) error {
	value, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return errors.Wrapf(errors.ErrCodeDecodeFailed, err, "failed to decode key %s", key)
	}

	return nil
}

// SetJSON implements Store.
func (m *MemoryStore) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeDecodeFailed, err, "failed to encode key %s", key)
	}

	return m.Set(ctx, key, string(data), ttl)
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}

	return nil
}

// Keys implements Store.
func (m *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()

	var keys []string

	for key, entry := range m.entries {
		if entry.expired(now) {
			continue
		}

		if globMatch(pattern, key) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Publish implements Store.
func (m *MemoryStore) Publish(_ context.Context, channel, message string) error {
	m.mu.RLock()
	subs := make([]chan string, len(m.subscribers[channel]))
	copy(subs, m.subscribers[channel])
	m.mu.RUnlock()

	for _, sub := range subs {
		sub <- message
	}

	return nil
}

// Subscribe implements Store.
func (m *MemoryStore) Subscribe(_ context.Context, channel string) (<-chan string, func(), error) {
	sub := make(chan string, 16)

	m.mu.Lock()
	m.subscribers[channel] = append(m.subscribers[channel], sub)
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			subs := m.subscribers[channel]
			for i, s := range subs {
				if s == sub {
					m.subscribers[channel] = append(subs[:i], subs[i+1:]...)

					break
				}
			}
			m.mu.Unlock()

			close(sub)
		})
	}

	return sub, cancel, nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStore) newEntry(value string, ttl time.Duration) memoryEntry {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	return entry
}

// globMatch matches Redis-style glob patterns where "*" spans any run of
// characters. path.Match would stop "*" at separators, but store keys embed
// symbols like BTC/USD, so the wildcard has to cross them.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}

	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(s, last) {
		return false
	}
	s = s[:len(s)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}

	return true
}

// Verify MemoryStore implements the Store interface.
var _ Store = (*MemoryStore)(nil)
