package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"expiring-cache/internal/expiry"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// Store keeps values and their expiration records in two maps keyed by the
// same string. Every key in one map is in the other. Expiration is lazy: an
// entry is removed when it is read after its ttl, or by PurgeExpired (which
// Flush always runs first). There is no background sweeper.
type Store struct {
	// If muPtr is nil, the store is NOT goroutine-safe.
	// If muPtr is non-nil, it guards all operations.
	muPtr *sync.RWMutex

	values  map[string]any
	records map[string]expiry.Record

	opts   Options
	logger *log.Logger
	loads  singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	expirations atomic.Int64
}

// NewStore constructs a new Store with the given options.
func NewStore(opts Options) *Store {
	var mu *sync.RWMutex
	if opts.ConcurrencySafe {
		mu = &sync.RWMutex{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		muPtr:   mu,
		values:  make(map[string]any),
		records: make(map[string]expiry.Record),
		opts:    opts,
		logger:  logger,
	}
}

func (s *Store) lockR() func() {
	if s.muPtr == nil {
		return func() {}
	}
	s.muPtr.RLock()
	return s.muPtr.RUnlock
}

func (s *Store) lockW() func() {
	if s.muPtr == nil {
		return func() {}
	}
	s.muPtr.Lock()
	return s.muPtr.Unlock
}

// now is a small indirection to allow test stubbing if needed.
var now = time.Now

// set and del are the only writers of the two maps.
func (s *Store) set(key string, value any, rec expiry.Record) {
	s.values[key] = value
	s.records[key] = rec
}

func (s *Store) del(key string) {
	delete(s.values, key)
	delete(s.records, key)
}

// lookup returns the live value for key, evicting it if it has expired.
// Must be called with the write lock held.
func (s *Store) lookup(key string, ts time.Time) (any, bool) {
	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	if rec.Expired(ts) {
		s.del(key)
		s.expirations.Add(1)
		s.logger.Debug("cache entry expired", "key", key)
		return nil, false
	}
	return s.values[key], true
}

// Get implements Cache.Get.
func (s *Store) Get(key string) (any, bool) {
	unlock := s.lockW()
	defer unlock()

	v, ok := s.lookup(key, now())
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return v, true
}

// GetInto decodes the live value for key into dst through its JSON form, which
// turns structured values loaded from a snapshot back into typed structs.
func (s *Store) GetInto(key string, dst any) (bool, error) {
	v, ok := s.Get(key)
	if !ok {
		return false, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return true, fmt.Errorf("failed to encode cached value %q: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("failed to decode cached value %q: %w", key, err)
	}
	return true, nil
}

// Put implements Cache.Put.
func (s *Store) Put(key string, value any) {
	s.PutTTL(key, value, expiry.Never)
}

// PutTTL implements Cache.PutTTL.
func (s *Store) PutTTL(key string, value any, ttl time.Duration) {
	unlock := s.lockW()
	defer unlock()
	s.set(key, value, expiry.New(now(), ttl))
}

// PutRecord implements Cache.PutRecord.
func (s *Store) PutRecord(key string, value any, rec expiry.Record) {
	unlock := s.lockW()
	defer unlock()
	s.set(key, value, rec)
}

// Contains implements Cache.Contains. It applies the same expiration rule as
// Get, including eviction, so the two never disagree.
func (s *Store) Contains(key string) bool {
	unlock := s.lockW()
	defer unlock()
	_, ok := s.lookup(key, now())
	return ok
}

// Record returns the expiration record stored for key without evaluating it.
// Unlike Get it tells a never-set key from an expired one that is still stored.
func (s *Store) Record(key string) (expiry.Record, bool) {
	unlock := s.lockR()
	defer unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// GetOrInsert implements Cache.GetOrInsert.
func (s *Store) GetOrInsert(key string, value any) any {
	return s.GetOrInsertTTL(key, value, expiry.Never)
}

// GetOrInsertTTL implements Cache.GetOrInsertTTL. In concurrency-safe mode the
// lookup and the insert happen under one lock.
func (s *Store) GetOrInsertTTL(key string, value any, ttl time.Duration) any {
	unlock := s.lockW()
	defer unlock()

	ts := now()
	if v, ok := s.lookup(key, ts); ok {
		s.hits.Add(1)
		return v
	}
	s.misses.Add(1)
	s.set(key, value, expiry.New(ts, ttl))
	return value
}

// GetOrLoad returns the live value for key or stores the result of load with
// the given ttl. Concurrent callers for the same key share one load call.
// A failed load stores nothing.
func (s *Store) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) (any, error)) (any, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	v, err, _ := s.loads.Do(key, func() (any, error) {
		// Another caller may have stored it while we queued.
		if v, ok := s.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return s.GetOrInsertTTL(key, v, ttl), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", key, err)
	}
	return v, nil
}

// Remove implements Cache.Remove.
func (s *Store) Remove(key string) {
	unlock := s.lockW()
	defer unlock()
	s.del(key)
}

// Len implements Cache.Len.
func (s *Store) Len() int {
	unlock := s.lockR()
	defer unlock()
	return len(s.values)
}

// Keys returns the sorted keys of live entries. Expired entries are skipped
// but not evicted.
func (s *Store) Keys() []string {
	unlock := s.lockR()
	defer unlock()

	ts := now()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		if rec, ok := s.records[k]; ok && !rec.Expired(ts) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clear implements Cache.Clear.
func (s *Store) Clear() {
	unlock := s.lockW()
	defer unlock()
	s.values = make(map[string]any)
	s.records = make(map[string]expiry.Record)
}

// PurgeExpired implements Cache.PurgeExpired. It returns the number of
// evicted entries.
func (s *Store) PurgeExpired() int {
	unlock := s.lockW()
	defer unlock()
	return s.purgeLocked(now())
}

// purgeLocked evicts expired keys and keys whose record is missing.
func (s *Store) purgeLocked(ts time.Time) int {
	if len(s.values) == 0 && len(s.records) == 0 {
		return 0
	}

	var stale []string
	for k := range s.values {
		rec, ok := s.records[k]
		if !ok || rec.Expired(ts) {
			stale = append(stale, k)
		}
	}
	for k := range s.records {
		if _, ok := s.values[k]; !ok {
			stale = append(stale, k)
		}
	}

	for _, k := range stale {
		s.del(k)
	}
	if len(stale) > 0 {
		s.expirations.Add(int64(len(stale)))
		s.logger.Debug("purged expired cache entries", "count", len(stale))
	}
	return len(stale)
}
