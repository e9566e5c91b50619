package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavirtualzone/transfers/internal/domain"
)

type mapCache struct {
	items  map[string]domain.Player
	getErr error
	sets   int
}

func (m *mapCache) Set(_ context.Context, p domain.Player) error {
	m.sets++
	m.items[p.ID] = p
	return nil
}

func (m *mapCache) Get(_ context.Context, id string) (domain.Player, error) {
	if m.getErr != nil {
		return domain.Player{}, m.getErr
	}
	p, ok := m.items[id]
	if !ok {
		return domain.Player{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *mapCache) Invalidate(_ context.Context, id string) error {
	delete(m.items, id)
	return nil
}

type countingDirectory struct {
	players map[string]domain.Player
	calls   int
}

func (d *countingDirectory) GetPlayer(_ context.Context, id string) (domain.Player, error) {
	d.calls++
	p, ok := d.players[id]
	if !ok {
		return domain.Player{}, domain.ErrNotFound
	}
	return p, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCachedDirectory_ReadThrough(t *testing.T) {
	ctx := context.Background()
	cache := &mapCache{items: map[string]domain.Player{}}
	backing := &countingDirectory{players: map[string]domain.Player{"p1": {ID: "p1", BasePrice: 100}}}
	d := NewCachedDirectory(cache, backing, discardLogger())

	p, err := d.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.BasePrice)
	p, err = d.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.calls, "second lookup served from cache")
	assert.Equal(t, 1, cache.sets)

	_, err = d.GetPlayer(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCachedDirectory_CacheErrorFallsThrough(t *testing.T) {
	cache := &mapCache{items: map[string]domain.Player{}, getErr: errors.New("connection refused")}
	backing := &countingDirectory{players: map[string]domain.Player{"p1": {ID: "p1"}}}

	_, err := NewCachedDirectory(cache, backing, discardLogger()).GetPlayer(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.calls)
}

// setupTestClient connects to LVZ_TEST_REDIS_ADDR and skips when it is unset
// or unreachable. Keys are namespaced per test run.
func setupTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("LVZ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LVZ_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, PoolSize: 4, KeyPrefix: "lvztest:" + uuid.NewString() + ":"})
	if err != nil {
		t.Skipf("could not connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLockManager_Integration(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "expiry-scan", 5*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "expiry-scan", 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "expiry-scan", 5*time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestRateLimiter_Integration(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "client", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "client", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignalBus_Integration(t *testing.T) {
	c := setupTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c)

	ch, err := bus.Subscribe(ctx, domain.ChannelNotifications)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelNotifications, []byte(`{"id":"1"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"id":"1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	require.NoError(t, bus.StreamAppend(ctx, domain.ChannelOffers, []byte(`{}`)))
}
