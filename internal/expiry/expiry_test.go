package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecord_Expired(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	r := New(base, 100*time.Millisecond)

	require.False(t, r.Expired(base))
	require.False(t, r.Expired(base.Add(99*time.Millisecond)))
	require.True(t, r.Expired(base.Add(100*time.Millisecond)), "elapsed == ttl is expired")
	require.True(t, r.Expired(base.Add(time.Hour)))
}

func TestRecord_NeverExpires(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	r := Forever(base)

	require.True(t, r.Never())
	require.False(t, r.Expired(base.Add(100*365*24*time.Hour)))
	_, ok := r.ExpiresAt()
	require.False(t, ok)
	require.Equal(t, Never, r.Remaining(base))
}

func TestRecord_NegativeTTLIsNever(t *testing.T) {
	r := New(time.Now(), -42*time.Second)
	require.Equal(t, Never, r.TTL)
}

func TestRecord_ZeroTTLExpiresImmediately(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	r := New(base, 0)
	require.True(t, r.Expired(base))
}

func TestRecord_Millis(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_123)

	insertAt, exp := New(base, 1500*time.Millisecond).Millis()
	require.Equal(t, int64(1_700_000_000_123), insertAt)
	require.Equal(t, int64(1500), exp)

	_, exp = Forever(base).Millis()
	require.Equal(t, int64(-1), exp)

	require.Equal(t, New(base, 1500*time.Millisecond), FromMillis(1_700_000_000_123, 1500))
	require.Equal(t, Forever(base), FromMillis(1_700_000_000_123, -1))
}

func TestRecord_SubMillisecondInsertion(t *testing.T) {
	t0 := time.UnixMilli(1000).Add(900 * time.Microsecond)
	r := New(t0, 100*time.Millisecond)
	require.Equal(t, t0, r.InsertedAt)

	require.False(t, r.Expired(t0.Add(99500*time.Microsecond)), "live until t0+ttl")
	require.False(t, r.Expired(t0.Add(100*time.Millisecond-time.Nanosecond)))
	require.True(t, r.Expired(t0.Add(100*time.Millisecond)))
}

func TestRecord_MillisRoundsUp(t *testing.T) {
	t0 := time.UnixMilli(1000).Add(900 * time.Microsecond)
	r := New(t0, 1500*time.Microsecond)

	insertAt, exp := r.Millis()
	require.Equal(t, int64(1001), insertAt)
	require.Equal(t, int64(2), exp)

	reloaded := FromMillis(insertAt, exp)
	at, _ := r.ExpiresAt()
	reloadedAt, _ := reloaded.ExpiresAt()
	require.False(t, reloadedAt.Before(at), "a reloaded record must not expire early")
	require.False(t, reloaded.Expired(at.Add(-time.Nanosecond)))
}

func TestRecord_StripsMonotonicReading(t *testing.T) {
	ts := time.Now()
	r := New(ts, time.Second)
	require.Equal(t, ts.UnixNano(), r.InsertedAt.UnixNano())
	require.Equal(t, ts.Round(0), r.InsertedAt)
}

func TestRecord_Remaining(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	r := New(base, time.Second)

	require.Equal(t, 600*time.Millisecond, r.Remaining(base.Add(400*time.Millisecond)))
	require.Equal(t, time.Duration(0), r.Remaining(base.Add(2*time.Second)))

	at, ok := r.ExpiresAt()
	require.True(t, ok)
	require.Equal(t, base.Add(time.Second), at)
}
