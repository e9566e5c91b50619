package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavirtualzone/transfers/internal/domain"
)

func TestOfferStore_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewOfferStore()

	require.NoError(t, s.Put(ctx, domain.Offer{ID: "a", Amount: 1}))
	require.NoError(t, s.Put(ctx, domain.Offer{ID: "b", Amount: 2}))
	require.NoError(t, s.Put(ctx, domain.Offer{ID: "c", Amount: 3}))
	require.NoError(t, s.Put(ctx, domain.Offer{ID: "a", Amount: 10}))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, 10.0, list[0].Amount)

	require.NoError(t, s.Delete(ctx, "b"))
	got, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Amount)

	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "b"), domain.ErrNotFound)
}

func TestBus_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBus()
	ch, err := b.Subscribe(ctx, "x")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "x", []byte("hello")))
	require.NoError(t, b.Publish(ctx, "y", []byte("other")))

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}
