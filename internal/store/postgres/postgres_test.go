package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavirtualzone/transfers/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/lvz?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "lvz"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	assert.Equal(t, "postgres://u:p@db:6543/lvz?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "lvz", SSLMode: "require"}))
	assert.Equal(t, "postgres://u:p%40ss%2Fw%3Ard@db:5432/lvz?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p@ss/w:rd", Database: "lvz"}))
}

// setupTestClient connects to LVZ_TEST_POSTGRES_DSN and skips when it is
// unset or unreachable.
func setupTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("LVZ_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LVZ_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Skipf("could not connect to postgres: %v", err)
	}
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(ctx))
	return c
}

func TestOfferStore_Integration(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()
	s := NewOfferStore(c.Pool())

	now := time.Now().UTC().Truncate(time.Microsecond)
	a := domain.Offer{ID: uuid.NewString(), PlayerID: "p1", Amount: 10, Status: domain.OfferPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	b := domain.Offer{ID: uuid.NewString(), PlayerID: "p2", Amount: 20, Status: domain.OfferPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	t.Cleanup(func() {
		_ = s.Delete(ctx, a.ID)
		_ = s.Delete(ctx, b.ID)
	})

	require.NoError(t, s.PutBatch(ctx, []domain.Offer{a, b}))
	a.Status = domain.OfferRejected
	a.RejectReason = "low"
	require.NoError(t, s.Put(ctx, a))

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferRejected, got.Status)
	assert.Equal(t, "low", got.RejectReason)
	assert.True(t, now.Equal(got.CreatedAt))

	list, err := s.List(ctx)
	require.NoError(t, err)
	var order []string
	for _, o := range list {
		if o.ID == a.ID || o.ID == b.ID {
			order = append(order, o.ID)
		}
	}
	assert.Equal(t, []string{a.ID, b.ID}, order)

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotificationStore_Integration(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()
	s := NewNotificationStore(c.Pool())

	items := []domain.Notification{
		{ID: uuid.NewString(), Type: domain.NotifyOfferExpired, Title: "t", Message: "m", Timestamp: time.Now().UTC(),
			Data: &domain.NotificationData{OfferID: "o1", Amount: 5}},
		{ID: uuid.NewString(), Type: domain.NotifyMarketOpened, Title: "t2", Message: "m2", Timestamp: time.Now().UTC(), Read: true},
	}
	require.NoError(t, s.Save(ctx, items))
	t.Cleanup(func() { _ = s.Save(ctx, nil) })

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, items[0].ID, got[0].ID)
	require.NotNil(t, got[0].Data)
	assert.Equal(t, "o1", got[0].Data.OfferID)
	assert.Nil(t, got[1].Data)
	assert.True(t, got[1].Read)
}

func TestBuildAuditQuery(t *testing.T) {
	q, args := buildAuditQuery(domain.AuditQuery{})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log ORDER BY created_at DESC, id DESC", q)
	assert.Empty(t, args)

	since := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	q, args = buildAuditQuery(domain.AuditQuery{
		Limit:       10,
		Offset:      20,
		Since:       &since,
		EventPrefix: "offer.",
		OfferID:     "o-1",
	})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log"+
		" WHERE created_at >= $1 AND starts_with(event, $2) AND detail->>'offer_id' = $3"+
		" ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5", q)
	assert.Equal(t, []any{since, "offer.", "o-1", 10, 20}, args)
}

func TestAuditStore_Integration(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()
	s := NewAuditStore(c.Pool())

	offerID := uuid.NewString()
	require.NoError(t, s.Log(ctx, "offer.created", map[string]any{"offer_id": offerID, "status": "pending"}))
	require.NoError(t, s.Log(ctx, "offer.approved", map[string]any{"offer_id": offerID, "status": "approved"}))
	require.NoError(t, s.Log(ctx, "archive.offers", map[string]any{"count": 0}))

	entries, err := s.List(ctx, domain.AuditQuery{OfferID: offerID, EventPrefix: "offer."})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "offer.approved", entries[0].Event)
	assert.Equal(t, "approved", entries[0].Detail["status"])
}
