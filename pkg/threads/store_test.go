package threads

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn, err := DSNForFile(filepath.Join(t.TempDir(), "nested", "threads.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestStore_CreateGetTouch(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			th, err := s.Create(ctx, " aapl ")
			require.NoError(t, err)
			_, err = uuid.Parse(th.ID)
			require.NoError(t, err)
			require.Equal(t, "AAPL", th.Ticker)
			require.Zero(t, th.Turns)

			got, ok, err := s.Get(ctx, th.ID)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, th.ID, got.ID)
			require.True(t, th.CreatedAt.Equal(got.CreatedAt))

			require.NoError(t, s.Touch(ctx, th.ID))
			require.NoError(t, s.Touch(ctx, th.ID))
			got, _, err = s.Get(ctx, th.ID)
			require.NoError(t, err)
			require.Equal(t, 2, got.Turns)

			_, ok, err = s.Get(ctx, "missing")
			require.NoError(t, err)
			require.False(t, ok)

			_, _, err = s.Get(ctx, " ")
			require.Error(t, err)

			require.ErrorIs(t, s.Touch(ctx, "missing"), ErrNotFound)
		})
	}
}

func TestStore_ListOrdersByLastUse(t *testing.T) {
	clock := time.UnixMilli(1_700_000_000_000)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	mem := NewInMemoryStore()
	mem.now = tick
	sq := newSQLiteStore(t)
	sq.now = tick

	for name, s := range map[string]Store{"memory": mem, "sqlite": sq} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := s.Create(ctx, "A")
			require.NoError(t, err)
			b, err := s.Create(ctx, "B")
			require.NoError(t, err)
			c, err := s.Create(ctx, "C")
			require.NoError(t, err)
			require.NoError(t, s.Touch(ctx, a.ID))

			all, err := s.List(ctx, 0)
			require.NoError(t, err)
			require.Equal(t, []string{a.ID, c.ID, b.ID}, ids(all))

			two, err := s.List(ctx, 2)
			require.NoError(t, err)
			require.Equal(t, []string{a.ID, c.ID}, ids(two))
		})
	}
}

func TestSQLiteStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threads.db")
	dsn, err := DSNForFile(path)
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	th, err := s.Create(context.Background(), "MSFT")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	s, err = NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, ok, err := s.Get(context.Background(), th.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "MSFT", got.Ticker)
}

func TestNewSQLiteStore_EmptyDSN(t *testing.T) {
	_, err := NewSQLiteStore("")
	require.Error(t, err)
	_, err = DSNForFile("")
	require.Error(t, err)
}

func TestSession_StableID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	s := NewSession(store, "", "nvda")
	require.Empty(t, s.Current())

	id1, err := s.ThreadID(ctx)
	require.NoError(t, err)
	id2, err := s.ThreadID(ctx)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, id1, s.Current())

	th, ok, err := store.Get(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, th.Turns)
	require.Equal(t, "NVDA", th.Ticker)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSession_Resume(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	th, err := store.Create(ctx, "AAPL")
	require.NoError(t, err)

	id, err := NewSession(store, th.ID, "").ThreadID(ctx)
	require.NoError(t, err)
	require.Equal(t, th.ID, id)

	_, err = NewSession(store, "nope", "").ThreadID(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func ids(ths []Thread) []string {
	out := make([]string, 0, len(ths))
	for _, th := range ths {
		out = append(out, th.ID)
	}
	return out
}
