// Package cache is a namespaced TTL cache with a bounded in-memory tier and an
// optional persistent tier. Values are stored JSON-encoded, so every read hands
// out a fresh copy.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/giygas/medicaments-search/interfaces"
	"github.com/giygas/medicaments-search/logging"
	"github.com/giygas/medicaments-search/metrics"
	"github.com/giygas/medicaments-search/protocol"
)

const (
	DefaultTTL      = 10 * time.Minute
	DefaultMaxItems = 1000

	tierMemory     = "memory"
	tierPersistent = "persistent"
)

// Options configures a Manager
type Options struct {
	Namespace  string
	DefaultTTL time.Duration    // <= 0 means DefaultTTL
	MaxItems   int              // in-memory bound, <= 0 means DefaultMaxItems
	Store      Store            // nil keeps the cache memory-only
	Now        func() time.Time // clock override for tests
}

// Producer computes a value on a cache miss
type Producer = func(ctx context.Context) (any, error)

// Compile-time check to ensure Manager implements Cache
var _ interfaces.Cache = (*Manager)(nil)

// Manager caches values under one namespace. Reads do not refresh an entry's
// position, so the item bound evicts in insertion order.
type Manager struct {
	namespace string
	ttl       time.Duration
	mem       *lru.Cache[string, Entry]
	store     Store
	now       func() time.Time
	flights   singleflight.Group

	// writes hold mu for reading; Clear and expiry cleanup hold it exclusively
	mu  sync.RWMutex
	gen atomic.Uint64 // bumped by Clear
}

// New creates a Manager
func New(opts Options) (*Manager, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("cache namespace cannot be empty")
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	mem, err := lru.New[string, Entry](opts.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory tier: %w", err)
	}

	return &Manager{
		namespace: opts.Namespace,
		ttl:       opts.DefaultTTL,
		mem:       mem,
		store:     opts.Store,
		now:       opts.Now,
	}, nil
}

// Namespace returns the manager's key prefix
func (m *Manager) Namespace() string {
	return m.namespace
}

// Len returns the number of entries in the memory tier, expired ones included
func (m *Manager) Len() int {
	return m.mem.Len()
}

func (m *Manager) storeKey(key string) string {
	return m.namespace + ":" + key
}

// Set stores value for ttl (the default TTL when ttl <= 0). Only an encoding
// error is returned: a failed persistent write leaves the memory copy in charge.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.put(ctx, key, data, ttl)
	return nil
}

// putIfCurrent stores data unless Clear ran since gen was read
func (m *Manager) putIfCurrent(ctx context.Context, key string, data []byte, ttl time.Duration, gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.gen.Load() != gen {
		return false
	}
	m.put(ctx, key, data, ttl)
	return true
}

// put must run with mu held
func (m *Manager) put(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	now := m.now()
	e := Entry{Data: data, CreatedAt: now, ExpiresAt: now.Add(ttl)}

	// Remove first so that re-setting a key counts as a new insertion
	m.mem.Remove(key)
	if m.mem.Add(key, e) {
		metrics.CacheEvictions.WithLabelValues(m.namespace).Inc()
	}

	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, m.storeKey(key), e); err != nil {
		metrics.CachePersistFailures.WithLabelValues(m.namespace).Inc()
		logging.Warn("Cache persistent write failed, keeping memory copy only",
			"namespace", m.namespace,
			"key", key,
			"error", protocol.NewError(protocol.KindStoreWriteFailed, "save", err),
		)
	}
}

// Get decodes the cached value for key into dest and reports whether it was found
func (m *Manager) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, ok := m.lookup(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache value for %s: %w", key, err)
	}
	return true, nil
}

// lookup returns the encoded value for key, checking memory then the store.
// Expired entries are removed from both tiers.
func (m *Manager) lookup(ctx context.Context, key string) ([]byte, bool) {
	now := m.now()

	if e, ok := m.mem.Peek(key); ok {
		if !e.Expired(now) {
			metrics.CacheHits.WithLabelValues(m.namespace, tierMemory).Inc()
			return e.Data, true
		}
		m.removeExpired(ctx, key)
		metrics.CacheMisses.WithLabelValues(m.namespace).Inc()
		return nil, false
	}

	if m.store != nil {
		e, ok, err := m.store.Load(ctx, m.storeKey(key))
		switch {
		case err != nil:
			logging.Warn("Cache persistent read failed", "namespace", m.namespace, "key", key, "error", err)
		case ok && e.Expired(now):
			m.removeExpired(ctx, key)
		case ok:
			if m.mem.Add(key, e) {
				metrics.CacheEvictions.WithLabelValues(m.namespace).Inc()
			}
			metrics.CacheHits.WithLabelValues(m.namespace, tierPersistent).Inc()
			return e.Data, true
		}
	}

	metrics.CacheMisses.WithLabelValues(m.namespace).Inc()
	return nil, false
}

// GetOrSet decodes the cached value for key into dest, or runs producer, caches
// its result and decodes that. Concurrent callers on one key share a single
// producer run.
func (m *Manager) GetOrSet(ctx context.Context, key string, dest any, producer Producer, ttl time.Duration) error {
	if data, ok := m.lookup(ctx, key); ok {
		return decodeInto(key, data, dest)
	}

	// Callers arriving after a Clear must not join a flight started before it
	gen := m.gen.Load()
	v, err, _ := m.flights.Do(fmt.Sprintf("%d:%s", gen, key), func() (any, error) {
		// A flight that just finished may have filled the key
		if data, ok := m.lookup(ctx, key); ok {
			return data, nil
		}

		value, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cache value for %s: %w", key, err)
		}
		if !m.putIfCurrent(ctx, key, data, ttl, gen) {
			logging.Debug("Cache cleared during producer run, result not stored",
				"namespace", m.namespace,
				"key", key,
			)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return decodeInto(key, v.([]byte), dest)
}

func decodeInto(key string, data []byte, dest any) error {
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode cache value for %s: %w", key, err)
	}
	return nil
}

// removeExpired drops key from both tiers unless a fresh entry replaced the
// expired one in the meantime
func (m *Manager) removeExpired(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.mem.Peek(key); ok && !e.Expired(m.now()) {
		return
	}
	m.Delete(ctx, key)
}

// Delete removes key from both tiers
func (m *Manager) Delete(ctx context.Context, key string) {
	m.mem.Remove(key)
	if m.store == nil {
		return
	}
	if err := m.store.Delete(ctx, m.storeKey(key)); err != nil {
		logging.Warn("Cache persistent delete failed", "namespace", m.namespace, "key", key, "error", err)
	}
}

// Clear removes every entry of this namespace. Other managers sharing the
// store keep theirs.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen.Add(1)
	m.mem.Purge()
	if m.store == nil {
		return
	}
	if err := m.store.DeletePrefix(ctx, m.namespace+":"); err != nil {
		logging.Warn("Cache persistent clear failed", "namespace", m.namespace, "error", err)
	}
}
