package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/internal/flux/credstore/storetest"
	"github.com/aussiebroadwan/flux/pkg/idx"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (credstore.Store, credstore.Store) {
		s := NewStore()
		t.Cleanup(func() { _ = s.Close() })
		return s, s
	})
}

func TestDeliveryIsSynchronous(t *testing.T) {
	s := NewStore()
	var got []string
	_, err := s.Subscribe(func(ev credstore.Event) { got = append(got, ev.Value) })
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "k", "a", idx.New()))
	require.Equal(t, []string{"a"}, got)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Set(context.Background(), "k", "v", idx.New()), credstore.ErrClosed)
	_, err := s.Subscribe(func(credstore.Event) {})
	require.ErrorIs(t, err, credstore.ErrClosed)
}
