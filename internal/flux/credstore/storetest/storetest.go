// Package storetest holds the behaviour every credstore driver must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/pkg/idx"
)

// Factory returns two handles onto the same backing store, standing in for
// two processes of one profile.
type Factory func(t *testing.T) (a, b credstore.Store)

const waitFor = 5 * time.Second

// Run exercises a driver.
func Run(t *testing.T, open Factory) {
	t.Run("GetMissing", func(t *testing.T) {
		a, _ := open(t)
		_, err := a.Get(context.Background(), "nope")
		require.ErrorIs(t, err, credstore.ErrNotFound)
	})

	t.Run("SetGetDelete", func(t *testing.T) {
		a, b := open(t)
		ctx := context.Background()
		tab := idx.New()

		require.NoError(t, a.Set(ctx, credstore.KeyToken, "tok", tab))

		v, err := b.Get(ctx, credstore.KeyToken)
		require.NoError(t, err)
		require.Equal(t, "tok", v)

		require.NoError(t, a.Set(ctx, credstore.KeyToken, "tok2", tab))
		v, err = b.Get(ctx, credstore.KeyToken)
		require.NoError(t, err)
		require.Equal(t, "tok2", v)

		require.NoError(t, b.Delete(ctx, credstore.KeyToken, tab))
		_, err = a.Get(ctx, credstore.KeyToken)
		require.ErrorIs(t, err, credstore.ErrNotFound)

		// Deleting again is not an error.
		require.NoError(t, b.Delete(ctx, credstore.KeyToken, tab))
	})

	t.Run("SubscribeSeesOtherHandle", func(t *testing.T) {
		a, b := open(t)
		ctx := context.Background()
		writer := idx.New()

		rec := &Recorder{}
		cancel, err := b.Subscribe(rec.Record)
		require.NoError(t, err)
		defer cancel()

		require.NoError(t, a.Set(ctx, credstore.KeyLastActivity, "1000", writer))
		require.NoError(t, a.Delete(ctx, credstore.KeyLastActivity, writer))

		rec.WaitFor(t, 2)
		events := rec.Events()
		require.Equal(t, credstore.KeyLastActivity, events[0].Key)
		require.Equal(t, "1000", events[0].Value)
		require.Equal(t, writer, events[0].Origin)
		require.False(t, events[0].Deleted)
		require.True(t, events[1].Deleted)
	})

	t.Run("UnchangedWritesAreSilent", func(t *testing.T) {
		a, b := open(t)
		ctx := context.Background()
		tab := idx.New()

		rec := &Recorder{}
		cancel, err := b.Subscribe(rec.Record)
		require.NoError(t, err)
		defer cancel()

		require.NoError(t, a.Set(ctx, "k", "v", tab))
		require.NoError(t, a.Set(ctx, "k", "v", tab))
		require.NoError(t, a.Delete(ctx, "missing", tab))
		require.NoError(t, a.Set(ctx, "k", "w", tab))

		rec.WaitFor(t, 2)
		events := rec.Events()
		require.Len(t, events, 2)
		require.Equal(t, "v", events[0].Value)
		require.Equal(t, "w", events[1].Value)
	})

	t.Run("CancelStopsDelivery", func(t *testing.T) {
		a, b := open(t)
		ctx := context.Background()
		tab := idx.New()

		rec := &Recorder{}
		cancel, err := b.Subscribe(rec.Record)
		require.NoError(t, err)

		require.NoError(t, a.Set(ctx, "k", "1", tab))
		rec.WaitFor(t, 1)

		cancel()
		cancel()

		require.NoError(t, a.Set(ctx, "k", "2", tab))

		// A second subscriber proves the write was published.
		other := &Recorder{}
		cancelOther, err := b.Subscribe(other.Record)
		require.NoError(t, err)
		defer cancelOther()
		require.NoError(t, a.Set(ctx, "k", "3", tab))
		other.WaitFor(t, 1)

		require.Len(t, rec.Events(), 1)
	})

	t.Run("ConcurrentWritersLastWins", func(t *testing.T) {
		a, b := open(t)
		ctx := context.Background()

		const writers, writes = 4, 50
		errs := make(chan error, writers*writes)
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			st := a
			if w%2 == 1 {
				st = b
			}
			wg.Add(1)
			go func(st credstore.Store, w int) {
				defer wg.Done()
				tab := idx.New()
				for i := 0; i < writes; i++ {
					errs <- st.Set(ctx, credstore.KeyLastActivity, fmt.Sprintf("%d-%d", w, i), tab)
				}
			}(st, w)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		va, err := a.Get(ctx, credstore.KeyLastActivity)
		require.NoError(t, err)
		vb, err := b.Get(ctx, credstore.KeyLastActivity)
		require.NoError(t, err)
		require.Equal(t, va, vb)
		require.Regexp(t, fmt.Sprintf(`^\d-%d$`, writes-1), va, "only a final write survives")
	})
}

// Recorder collects events from a subscription.
type Recorder struct {
	mu     sync.Mutex
	events []credstore.Event
}

func (r *Recorder) Record(ev credstore.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []credstore.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]credstore.Event(nil), r.events...)
}

// WaitFor blocks until at least n events arrived.
func (r *Recorder) WaitFor(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.Events()) >= n
	}, waitFor, 5*time.Millisecond, "expected %d events", n)
}
