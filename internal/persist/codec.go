// Package persist reads and writes whole cache snapshots. A snapshot is the
// full set of live entries; every write replaces the previous one.
package persist

import (
	"context"
	"errors"
	"sort"

	"expiring-cache/internal/models"
)

// Common errors for snapshot codecs
var (
	// ErrCorrupt is returned when a snapshot exists but cannot be parsed
	ErrCorrupt = errors.New("cache snapshot corrupted")

	// ErrUnrepresentable is returned when a value cannot be encoded by the codec
	ErrUnrepresentable = errors.New("cache value not representable")
)

// Codec is a whole-snapshot round trip: Read(Write(E)) == E.
type Codec interface {
	// Read returns every persisted entry. A missing snapshot is an empty
	// slice, not an error.
	Read(ctx context.Context) ([]models.Entry, error)

	// Write replaces the snapshot with entries.
	Write(ctx context.Context, entries []models.Entry) error
}

// sortEntries orders entries by key so snapshots are stable across flushes.
func sortEntries(entries []models.Entry) []models.Entry {
	out := make([]models.Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
