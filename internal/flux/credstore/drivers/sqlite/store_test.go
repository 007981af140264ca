package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/internal/flux/credstore/storetest"
	"github.com/aussiebroadwan/flux/pkg/idx"
)

func openTestStore(t *testing.T, path string, opts ...Option) *Store {
	t.Helper()

	opts = append([]Option{WithPollInterval(10 * time.Millisecond)}, opts...)
	s, err := NewStore(DSN(path), opts...)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (credstore.Store, credstore.Store) {
		path := filepath.Join(t.TempDir(), "flux.db")
		a := openTestStore(t, path)
		b := openTestStore(t, path)
		return a, b
	})
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "flux.db"))
	require.NoError(t, s.ApplyMigrations())
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flux.db")
	ctx := context.Background()

	s, err := NewStore(DSN(path))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Set(ctx, credstore.KeyUser, `{"id":"u1"}`, idx.New()))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	v, err := reopened.Get(ctx, credstore.KeyUser)
	require.NoError(t, err)
	require.Equal(t, `{"id":"u1"}`, v)
}

func TestSubscribeSkipsHistory(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "flux.db"))
	ctx := context.Background()
	tab := idx.New()

	require.NoError(t, s.Set(ctx, "k", "old", tab))

	rec := &storetest.Recorder{}
	cancel, err := s.Subscribe(rec.Record)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Set(ctx, "k", "new", tab))
	rec.WaitFor(t, 1)
	require.Equal(t, "new", rec.Events()[0].Value)
}

func TestPruneEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, filepath.Join(t.TempDir(), "flux.db"), WithNow(func() time.Time { return now }))
	ctx := context.Background()
	tab := idx.New()

	require.NoError(t, s.Set(ctx, "a", "1", tab))
	require.NoError(t, s.Set(ctx, "b", "1", tab))

	now = now.Add(2 * time.Hour)
	require.NoError(t, s.Set(ctx, "c", "1", tab))

	n, err := s.PruneEvents(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	// Current values are untouched.
	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", v)
}
