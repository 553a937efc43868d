package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"expiring-cache/internal/declare"
	"expiring-cache/internal/expiry"
	"expiring-cache/internal/models"
	"expiring-cache/internal/persist"
	"expiring-cache/internal/testutil"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const snapshotPath = "/cache/cache.json"

func memCodec(fsys afero.Fs) *persist.JSONFile {
	return persist.NewJSONFile(snapshotPath, persist.WithFs(fsys))
}

func newPersistentStore(codec persist.Codec, src declare.Source, mutate ...func(*Options)) *Store {
	opts := Options{
		Codec:        codec,
		Declarations: src,
		Logger:       log.New(io.Discard),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewStore(opts)
}

// failingCodec fails every read and write.
type failingCodec struct{ err error }

func (f failingCodec) Read(context.Context) ([]models.Entry, error) { return nil, f.err }
func (f failingCodec) Write(context.Context, []models.Entry) error  { return f.err }

func TestStore_FlushLoadRoundTrip(t *testing.T) {
	freezeClock(t)
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	values := map[string]any{
		"int":    int64(10),
		"float":  2.5,
		"str":    "hello world disposed",
		"bool":   true,
		"object": map[string]any{"key1": "11", "nested": map[string]any{"n": int64(1)}},
		"list":   []any{"a", int64(2)},
	}

	first := newPersistentStore(memCodec(fsys), nil)
	require.NoError(t, first.Load(ctx))
	for k, v := range values {
		first.PutTTL(k, v, time.Hour)
	}
	first.Put("forever", "x")
	require.NoError(t, first.Flush(ctx))

	second := newPersistentStore(memCodec(fsys), nil)
	require.NoError(t, second.Load(ctx))

	require.Equal(t, first.Keys(), second.Keys())
	for k, v := range values {
		got, ok := second.Get(k)
		require.True(t, ok, k)
		require.Equal(t, v, got, k)

		want, _ := first.Record(k)
		rec, _ := second.Record(k)
		require.Equal(t, want, rec, "records must survive the round trip for %s", k)
	}
}

func TestStore_RoundTripNeverExpiresEarly(t *testing.T) {
	clock := freezeClock(t)
	*clock = clock.Add(900 * time.Microsecond)
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	first := newPersistentStore(memCodec(fsys), nil)
	first.PutTTL("k", "v", 100*time.Millisecond)
	require.NoError(t, first.Flush(ctx))

	second := newPersistentStore(memCodec(fsys), nil)
	require.NoError(t, second.Load(ctx))

	want, _ := first.Record("k")
	got, ok := second.Record("k")
	require.True(t, ok)
	wantAt, _ := want.ExpiresAt()
	gotAt, _ := got.ExpiresAt()
	require.False(t, gotAt.Before(wantAt))
	require.Less(t, gotAt.Sub(wantAt), 2*time.Millisecond)

	*clock = wantAt.Add(-time.Nanosecond)
	_, ok = second.Get("k")
	require.True(t, ok)
}

func TestStore_LargeIntegersSurviveRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)

	for name, codec := range map[string]persist.Codec{
		"json":   memCodec(afero.NewMemMapFs()),
		"sqlite": persist.NewSQLite(db),
	} {
		t.Run(name, func(t *testing.T) {
			const id = int64(1<<53 + 1)

			first := newPersistentStore(codec, nil)
			first.Put("id", id)
			first.Put("ratio", 0.25)
			first.Put("nested", map[string]any{"id": id})
			require.NoError(t, first.Flush(ctx))

			second := newPersistentStore(codec, nil)
			require.NoError(t, second.Load(ctx))

			v, ok := second.Get("id")
			require.True(t, ok)
			require.Equal(t, id, v)

			var got int64
			ok, err := second.GetInto("id", &got)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, id, got)

			v, _ = second.Get("ratio")
			require.Equal(t, 0.25, v)
			v, _ = second.Get("nested")
			require.Equal(t, map[string]any{"id": id}, v)
		})
	}
}

func TestStore_LoadDropsExpired(t *testing.T) {
	clock := freezeClock(t)
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	ms := clock.UnixMilli()
	require.NoError(t, memCodec(fsys).Write(ctx, []models.Entry{
		{Key: "stale", Value: "old", InsertAt: ms - 1000, Exp: 500},
		{Key: "fresh", Value: "new", InsertAt: ms - 1000, Exp: 5000},
		{Key: "forever", Value: "x", InsertAt: ms - 1_000_000, Exp: -1},
		{Key: "", Value: "no key", InsertAt: ms, Exp: -1},
	}))

	s := newPersistentStore(memCodec(fsys), nil)
	require.NoError(t, s.Load(ctx))
	require.Equal(t, []string{"forever", "fresh"}, s.Keys())
	require.Equal(t, 2, s.Len())

	*clock = clock.Add(4 * time.Second)
	_, ok := s.Get("fresh")
	require.False(t, ok, "ttl counts from the persisted insertion time")
}

func TestStore_FlushPurgesFirst(t *testing.T) {
	clock := freezeClock(t)
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	s := newPersistentStore(memCodec(fsys), nil)
	s.PutTTL("short", 1, time.Second)
	s.Put("keep", 2)

	*clock = clock.Add(time.Second)
	require.NoError(t, s.Flush(ctx))
	require.Equal(t, 1, s.Len(), "flush evicts unread expired entries")

	entries, err := memCodec(fsys).Read(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "keep", entries[0].Key)
}

func TestStore_LoadCreatesMissingSnapshot(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	s := newPersistentStore(memCodec(fsys), nil)
	require.NoError(t, s.Load(ctx))
	require.Zero(t, s.Len())

	exists, err := afero.Exists(fsys, snapshotPath)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestStore_DeclarationsOverwritePersisted(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	first := newPersistentStore(memCodec(fsys), nil)
	first.Put("K", "A")
	first.Put("other", "persisted")
	require.NoError(t, first.Flush(ctx))

	reg := declare.NewRegistry()
	reg.Register("field", "B", declare.WithKey("K"))

	second := newPersistentStore(memCodec(fsys), reg)
	require.NoError(t, second.Load(ctx))

	v, ok := second.Get("K")
	require.True(t, ok)
	require.Equal(t, "B", v)

	v, ok = second.Get("other")
	require.True(t, ok)
	require.Equal(t, "persisted", v)
}

func TestStore_DeclarationsPreservePersisted(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	first := newPersistentStore(memCodec(fsys), nil)
	first.Put("K", "A")
	require.NoError(t, first.Flush(ctx))

	reg := declare.NewRegistry()
	reg.Register("K", "B")
	reg.Register("fresh", "seeded", declare.WithExpiration(time.Hour))

	second := newPersistentStore(memCodec(fsys), reg, func(o *Options) {
		o.DeclarationPolicy = DeclarationsPreservePersisted
	})
	require.NoError(t, second.Load(ctx))

	v, _ := second.Get("K")
	require.Equal(t, "A", v)
	v, _ = second.Get("fresh")
	require.Equal(t, "seeded", v)

	rec, ok := second.Record("fresh")
	require.True(t, ok)
	require.Equal(t, time.Hour, rec.TTL)
}

func TestStore_DeclarationsWithoutCodec(t *testing.T) {
	type statics struct {
		TestValue  int    `cache:"key_test,ttl=100s"`
		TestValue2 string `cache:"key2"`
	}
	src, err := declare.FromStruct(&statics{TestValue: 10, TestValue2: "hello world disposed"})
	require.NoError(t, err)

	s := newPersistentStore(nil, src)
	require.NoError(t, s.Load(context.Background()))

	v, ok := s.Get("key_test")
	require.True(t, ok)
	require.Equal(t, 10, v)

	rec, _ := s.Record("key2")
	require.Equal(t, expiry.Never, rec.TTL)

	require.NoError(t, s.Flush(context.Background()))
}

func TestStore_DeclarationReadsStore(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	seed := newPersistentStore(memCodec(fsys), nil)
	seed.Put("base", "persisted")
	require.NoError(t, seed.Flush(ctx))

	var s *Store
	reg := declare.NewRegistry()
	reg.RegisterFunc("derived", func() (any, error) {
		v, _ := s.Get("base")
		return v, nil
	})
	s = newPersistentStore(memCodec(fsys), reg, func(o *Options) { o.ConcurrencySafe = true })
	s.Put("base", "in-memory")

	done := make(chan error, 1)
	go func() { done <- s.Load(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Load did not return while a declaration read the store")
	}

	v, ok := s.Get("derived")
	require.True(t, ok)
	require.Equal(t, "in-memory", v, "declarations see the store as it was before the load")
	v, _ = s.Get("base")
	require.Equal(t, "persisted", v)
}

func TestStore_SkippedDeclarations(t *testing.T) {
	reg := declare.NewRegistry()
	reg.RegisterFunc("broken", func() (any, error) { return nil, declare.ErrAccessDenied })
	reg.Register("ok", 1)

	degrade := newPersistentStore(nil, reg)
	require.NoError(t, degrade.Load(context.Background()))
	require.True(t, degrade.Contains("ok"))

	propagate := newPersistentStore(nil, reg, func(o *Options) { o.ErrorPolicy = ErrorsPropagate })
	err := propagate.Load(context.Background())
	require.ErrorIs(t, err, ErrDeclarations)
	require.ErrorIs(t, err, declare.ErrAccessDenied)
	require.True(t, propagate.Contains("ok"), "scanning continues past a failed declaration")
}

func TestStore_CorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, snapshotPath, []byte("{definitely not an array"), 0o600))

	reg := declare.NewRegistry()
	reg.Register("seed", "v")

	degrade := newPersistentStore(memCodec(fsys), reg)
	require.NoError(t, degrade.Load(ctx))
	require.Equal(t, []string{"seed"}, degrade.Keys(), "corrupt snapshot loads as empty")

	propagate := newPersistentStore(memCodec(fsys), reg, func(o *Options) { o.ErrorPolicy = ErrorsPropagate })
	err := propagate.Load(ctx)
	require.ErrorIs(t, err, ErrLoad)
	require.ErrorIs(t, err, persist.ErrCorrupt)
	require.Equal(t, []string{"seed"}, propagate.Keys())
}

func TestStore_FlushFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	degrade := newPersistentStore(failingCodec{boom}, nil)
	degrade.Put("k", "v")
	require.NoError(t, degrade.Flush(ctx))
	require.True(t, degrade.Contains("k"))

	propagate := newPersistentStore(failingCodec{boom}, nil, func(o *Options) { o.ErrorPolicy = ErrorsPropagate })
	propagate.Put("k", "v")
	err := propagate.Flush(ctx)
	require.ErrorIs(t, err, ErrFlush)
	require.ErrorIs(t, err, boom)
	require.True(t, propagate.Contains("k"))

	require.ErrorIs(t, propagate.Load(ctx), ErrLoad)
	require.True(t, propagate.Contains("k"), "a failed load keeps existing entries")
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)

	first := newPersistentStore(persist.NewSQLite(db), nil, func(o *Options) { o.ErrorPolicy = ErrorsPropagate })
	require.NoError(t, first.Load(ctx))
	first.PutTTL("greeting", "hi", time.Hour)
	first.Put("count", 3)
	require.NoError(t, first.Flush(ctx))

	second := newPersistentStore(persist.NewSQLite(db), nil, func(o *Options) { o.ErrorPolicy = ErrorsPropagate })
	require.NoError(t, second.Load(ctx))
	require.Equal(t, []string{"count", "greeting"}, second.Keys())

	v, ok := second.Get("count")
	require.True(t, ok)
	require.Equal(t, int64(3), v)
}
