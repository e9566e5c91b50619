package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lavirtualzone/transfers/internal/domain"
	"github.com/lavirtualzone/transfers/internal/store/jsonstore"
	"github.com/lavirtualzone/transfers/internal/store/memory"
)

func newNotes(t *testing.T, maxItems int, opts ...Option) (*NotificationService, *memory.NotificationStore) {
	t.Helper()
	store := memory.NewNotificationStore()
	opts = append([]Option{WithIDGenerator(sequentialIDs("n"))}, opts...)
	return NewNotificationService(store, nil, nil, maxItems, discardLogger(), opts...), store
}

func TestNotificationService_CapKeepsNewest(t *testing.T) {
	notes, store := newNotes(t, 50)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := notes.Emit(ctx, domain.NotifyOfferReceived, "t", fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}

	items, unread := notes.List()
	require.Len(t, items, 50)
	assert.Equal(t, 50, unread)
	assert.Equal(t, "m59", items[0].Message)
	assert.Equal(t, "m10", items[49].Message)

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, persisted)
}

func TestNotificationService_ReadAndRemove(t *testing.T) {
	notes, _ := newNotes(t, 10)
	ctx := context.Background()

	a, err := notes.Emit(ctx, domain.NotifyOfferReceived, "a", "a", nil)
	require.NoError(t, err)
	b, err := notes.Emit(ctx, domain.NotifyOfferAccepted, "b", "b", nil)
	require.NoError(t, err)

	require.NoError(t, notes.MarkAsRead(ctx, a.ID))
	assert.Equal(t, 1, notes.UnreadCount())
	require.NoError(t, notes.MarkAsRead(ctx, a.ID), "marking twice is harmless")

	assert.ErrorIs(t, notes.MarkAsRead(ctx, "missing"), domain.ErrNotFound)
	assert.ErrorIs(t, notes.Remove(ctx, "missing"), domain.ErrNotFound)

	require.NoError(t, notes.Remove(ctx, b.ID))
	items, unread := notes.List()
	require.Len(t, items, 1)
	assert.Equal(t, 0, unread)

	_, err = notes.Emit(ctx, domain.NotifyOfferRejected, "c", "c", nil)
	require.NoError(t, err)
	require.NoError(t, notes.MarkAllAsRead(ctx))
	assert.Equal(t, 0, notes.UnreadCount())

	require.NoError(t, notes.ClearAll(ctx))
	items, unread = notes.List()
	assert.Empty(t, items)
	assert.Equal(t, 0, unread)
}

func TestNotificationService_LoadTruncates(t *testing.T) {
	notes, store := newNotes(t, 3)
	ctx := context.Background()

	seed := make([]domain.Notification, 5)
	for i := range seed {
		seed[i] = domain.Notification{ID: fmt.Sprint(i), Read: i%2 == 0}
	}
	require.NoError(t, store.Save(ctx, seed))

	require.NoError(t, notes.Load(ctx))
	items, unread := notes.List()
	require.Len(t, items, 3)
	assert.Equal(t, "0", items[0].ID)
	assert.Equal(t, 1, unread)
}

type failingStore struct{ *memory.NotificationStore }

func (*failingStore) Save(context.Context, []domain.Notification) error {
	return fmt.Errorf("disk full: %w", domain.ErrPersistence)
}

func TestNotificationService_SaveFailureLeavesStateUnchanged(t *testing.T) {
	notes := NewNotificationService(&failingStore{memory.NewNotificationStore()}, nil, nil, 10, discardLogger())

	_, err := notes.Emit(context.Background(), domain.NotifyOfferReceived, "t", "m", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))

	items, unread := notes.List()
	assert.Empty(t, items)
	assert.Equal(t, 0, unread)
}

func TestNotificationService_SharedDocumentKeepsBothWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notifications.json")
	server := NewNotificationService(jsonstore.NewNotificationStore(jsonstore.NewFileDocument(path)),
		nil, nil, 50, discardLogger(), WithIDGenerator(sequentialIDs("s")))
	worker := NewNotificationService(jsonstore.NewNotificationStore(jsonstore.NewFileDocument(path)),
		nil, nil, 50, discardLogger(), WithIDGenerator(sequentialIDs("w")))
	require.NoError(t, server.Load(ctx))
	require.NoError(t, worker.Load(ctx))

	_, err := server.Emit(ctx, domain.NotifyOfferReceived, "Nueva oferta", "a", nil)
	require.NoError(t, err)
	expired, err := worker.Emit(ctx, domain.NotifyOfferExpired, "Oferta expirada", "b", nil)
	require.NoError(t, err)

	require.NoError(t, server.Refresh(ctx))
	items, unread := server.List()
	require.Len(t, items, 2)
	assert.Equal(t, expired.ID, items[0].ID)
	assert.Equal(t, 2, unread)

	// The next server write keeps the worker's entry.
	_, err = server.Emit(ctx, domain.NotifyOfferReceived, "Nueva oferta", "c", nil)
	require.NoError(t, err)
	require.NoError(t, server.MarkAsRead(ctx, expired.ID))

	persisted, err := jsonstore.NewNotificationStore(jsonstore.NewFileDocument(path)).Load(ctx)
	require.NoError(t, err)
	types := make([]domain.NotificationType, 0, len(persisted))
	for _, n := range persisted {
		types = append(types, n.Type)
	}
	assert.Equal(t, []domain.NotificationType{
		domain.NotifyOfferReceived, domain.NotifyOfferExpired, domain.NotifyOfferReceived,
	}, types)
	assert.True(t, persisted[1].Read)
}

type recordingForwarder struct {
	mu   sync.Mutex
	seen []domain.Notification
}

func (r *recordingForwarder) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
	return nil
}

func TestNotificationService_ForwardsAndPublishes(t *testing.T) {
	bus := memory.NewBus()
	fwd := &recordingForwarder{}
	notes := NewNotificationService(memory.NewNotificationStore(), bus, fwd, 10, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, domain.ChannelNotifications)
	require.NoError(t, err)

	n, err := notes.Emit(ctx, domain.NotifyOfferExpired, "t", "m", &domain.NotificationData{OfferID: "o1"})
	require.NoError(t, err)
	notes.Wait()

	fwd.mu.Lock()
	require.Len(t, fwd.seen, 1)
	assert.Equal(t, n.ID, fwd.seen[0].ID)
	fwd.mu.Unlock()

	select {
	case payload := <-sub:
		assert.Contains(t, string(payload), n.ID)
	default:
		t.Fatal("notification was not published")
	}
}

// The unread count always equals the number of unread items, whatever
// sequence of operations produced the list.
func TestNotificationService_UnreadCountTracksReadFlags(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxItems := rapid.IntRange(1, 8).Draw(rt, "max")
		notes := NewNotificationService(memory.NewNotificationStore(), nil, nil, maxItems, discardLogger(),
			WithIDGenerator(sequentialIDs("n")))
		ctx := context.Background()

		ops := rapid.SliceOfN(rapid.IntRange(0, 4), 1, 40).Draw(rt, "ops")
		for i, op := range ops {
			items, _ := notes.List()
			switch op {
			case 0:
				_, err := notes.Emit(ctx, domain.NotifyOfferReceived, "t", fmt.Sprint(i), nil)
				if err != nil {
					rt.Fatalf("emit: %v", err)
				}
			case 1:
				if len(items) > 0 {
					idx := rapid.IntRange(0, len(items)-1).Draw(rt, "read")
					_ = notes.MarkAsRead(ctx, items[idx].ID)
				}
			case 2:
				if len(items) > 0 {
					idx := rapid.IntRange(0, len(items)-1).Draw(rt, "remove")
					_ = notes.Remove(ctx, items[idx].ID)
				}
			case 3:
				_ = notes.MarkAllAsRead(ctx)
			case 4:
				_ = notes.ClearAll(ctx)
			}

			items, unread := notes.List()
			if len(items) > maxItems {
				rt.Fatalf("list grew to %d past cap %d", len(items), maxItems)
			}
			if unread != domain.CountUnread(items) || unread != notes.UnreadCount() {
				rt.Fatalf("unread %d does not match items", unread)
			}
		}
	})
}
