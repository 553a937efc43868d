package expiry

import "time"

// Never is the ttl sentinel for entries that do not expire.
const Never time.Duration = -1

// neverMillis is the persisted form of Never.
const neverMillis int64 = -1

// Record is the insertion time and time-to-live attached to a single key.
// Records are values; a stored record is never mutated.
type Record struct {
	InsertedAt time.Time
	TTL        time.Duration
}

// New returns a record stamped at insertedAt. Any negative ttl is treated as Never.
// The monotonic clock reading is dropped; the wall time keeps full precision.
func New(insertedAt time.Time, ttl time.Duration) Record {
	if ttl < 0 {
		ttl = Never
	}
	return Record{
		InsertedAt: insertedAt.Round(0),
		TTL:        ttl,
	}
}

// Forever returns a never-expiring record stamped at insertedAt.
func Forever(insertedAt time.Time) Record {
	return New(insertedAt, Never)
}

// FromMillis rebuilds a record from its persisted form (epoch ms, ttl ms).
func FromMillis(insertAt, exp int64) Record {
	if exp < 0 {
		return New(time.UnixMilli(insertAt), Never)
	}
	return New(time.UnixMilli(insertAt), time.Duration(exp)*time.Millisecond)
}

// Millis returns the persisted form of r: insertion epoch ms and ttl ms (-1 for never).
// Both are rounded up, so a reloaded record never expires before r does.
func (r Record) Millis() (insertAt, exp int64) {
	insertAt = ceilMillis(r.InsertedAt.UnixNano())
	if r.Never() {
		return insertAt, neverMillis
	}
	return insertAt, ceilMillis(int64(r.TTL))
}

func ceilMillis(ns int64) int64 {
	ms := ns / int64(time.Millisecond)
	if ns%int64(time.Millisecond) > 0 {
		ms++
	}
	return ms
}

// Never reports whether r carries the never-expire sentinel.
func (r Record) Never() bool {
	return r.TTL < 0
}

// Expired reports whether now - InsertedAt >= TTL for a record that can expire.
func (r Record) Expired(now time.Time) bool {
	if r.Never() {
		return false
	}
	return now.Sub(r.InsertedAt) >= r.TTL
}

// Remaining returns the time left before expiry, zero once expired and Never
// for never-expiring records.
func (r Record) Remaining(now time.Time) time.Duration {
	if r.Never() {
		return Never
	}
	left := r.TTL - now.Sub(r.InsertedAt)
	if left < 0 {
		return 0
	}
	return left
}

// ExpiresAt returns the absolute expiry time and false for never-expiring records.
func (r Record) ExpiresAt() (time.Time, bool) {
	if r.Never() {
		return time.Time{}, false
	}
	return r.InsertedAt.Add(r.TTL), true
}
