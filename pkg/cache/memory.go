// Package cache holds resolved signing keys in process memory, keyed by kid.
//
// The cache is unbounded unless MaxEntries or MaxAge are set. A MaxEntries
// bound evicts the least recently used key (github.com/hashicorp/golang-lru/v2);
// otherwise keys are kept in a github.com/pmylund/go-cache store, which
// expires them after MaxAge when one is configured.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pmylund/go-cache"

	"github.com/jetstack/jwks-resolver/api"
)

// Options bounds the cache. The zero value means unbounded.
type Options struct {
	// MaxAge is how long a key stays cached after it was set. Zero means
	// forever.
	MaxAge time.Duration
	// MaxEntries caps the number of cached keys, evicting the least
	// recently used one. Zero means no cap.
	MaxEntries int
}

type store interface {
	get(kid string) (api.KeyRecord, bool)
	set(kid string, record api.KeyRecord)
	len() int
	purge()
}

// Memory is a kid to KeyRecord cache. It is safe for concurrent use.
type Memory struct {
	store store
}

// New creates a cache bounded by opts.
func New(opts Options) *Memory {
	if opts.MaxEntries > 0 {
		return &Memory{store: &lruStore{
			lru: expirable.NewLRU[string, api.KeyRecord](opts.MaxEntries, nil, opts.MaxAge),
		}}
	}

	expiration := cache.NoExpiration
	cleanupInterval := time.Duration(0)
	if opts.MaxAge > 0 {
		expiration = opts.MaxAge
		cleanupInterval = opts.MaxAge
	}
	return &Memory{store: &ttlStore{
		c: cache.New(expiration, cleanupInterval),
	}}
}

// Get returns the cached key for kid.
func (m *Memory) Get(kid string) (api.KeyRecord, bool) {
	return m.store.get(kid)
}

// Set caches record under kid.
func (m *Memory) Set(kid string, record api.KeyRecord) {
	m.store.set(kid, record)
}

// SetAll caches every record under its own KID.
func (m *Memory) SetAll(records []api.KeyRecord) {
	for _, r := range records {
		m.store.set(r.KID, r)
	}
}

// Len returns the number of cached keys, which may include expired keys that
// were not cleaned up yet.
func (m *Memory) Len() int {
	return m.store.len()
}

// Purge drops every cached key.
func (m *Memory) Purge() {
	m.store.purge()
}

type ttlStore struct {
	c *cache.Cache
}

func (s *ttlStore) get(kid string) (api.KeyRecord, bool) {
	v, ok := s.c.Get(kid)
	if !ok {
		return api.KeyRecord{}, false
	}
	record, ok := v.(api.KeyRecord)
	return record, ok
}

func (s *ttlStore) set(kid string, record api.KeyRecord) {
	s.c.Set(kid, record, cache.DefaultExpiration)
}

func (s *ttlStore) len() int {
	return s.c.ItemCount()
}

func (s *ttlStore) purge() {
	s.c.Flush()
}

type lruStore struct {
	lru *expirable.LRU[string, api.KeyRecord]
}

func (s *lruStore) get(kid string) (api.KeyRecord, bool) {
	return s.lru.Get(kid)
}

func (s *lruStore) set(kid string, record api.KeyRecord) {
	s.lru.Add(kid, record)
}

func (s *lruStore) len() int {
	return s.lru.Len()
}

func (s *lruStore) purge() {
	s.lru.Purge()
}
