// Package cache is an in-process expiring key/value store that can be
// persisted to a snapshot and reseeded from declarations on load.
package cache

import (
	"context"
	"time"

	"expiring-cache/internal/expiry"
)

// Cache defines the key-value API of a Store with optional TTL per entry.
// Implementations may or may not be goroutine-safe depending on configuration.
type Cache interface {
	// Get returns the value and whether it was present and not expired.
	// An expired entry is removed as a side effect.
	Get(key string) (any, bool)

	// Put stores a never-expiring value, replacing any existing entry.
	Put(key string, value any)

	// PutTTL stores the value with a ttl. expiry.Never behaves like Put.
	PutTTL(key string, value any, ttl time.Duration)

	// PutRecord stores the value with the given expiration record verbatim.
	PutRecord(key string, value any, rec expiry.Record)

	// Contains reports whether a key is present and not expired.
	Contains(key string) bool

	// GetOrInsert returns the live value, or stores and returns value.
	GetOrInsert(key string, value any) any

	// GetOrInsertTTL is GetOrInsert with a ttl for the inserted value.
	GetOrInsertTTL(key string, value any, ttl time.Duration) any

	// Remove removes a key if present.
	Remove(key string)

	// Len returns the number of stored entries, including expired entries
	// that have not been observed or purged yet.
	Len() int

	// Clear removes all entries.
	Clear()

	// PurgeExpired scans and removes expired entries.
	PurgeExpired() int
}

// Persistent is a Cache backed by a snapshot.
type Persistent interface {
	Cache

	// Load reads the snapshot, drops expired entries and applies declarations.
	Load(ctx context.Context) error

	// Flush purges expired entries and writes the live set to the snapshot.
	Flush(ctx context.Context) error
}

// Ensure Store implements Persistent at compile time.
var _ Persistent = (*Store)(nil)
