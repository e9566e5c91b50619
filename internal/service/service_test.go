package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavirtualzone/transfers/internal/domain"
	"github.com/lavirtualzone/transfers/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type fixture struct {
	clock   *fakeClock
	offers  *OfferService
	notes   *NotificationService
	market  *MarketService
	checker *ExpiryChecker
	store   *memory.OfferStore
	bus     *memory.Bus
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testRules = TransferRules{
	OfferExpiry:        48 * time.Hour,
	MinOfferPercentage: 0.5,
	MaxOfferPercentage: 2.0,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	logger := discardLogger()
	bus := memory.NewBus()
	store := memory.NewOfferStore()
	players := memory.NewPlayerDirectory(
		domain.Player{ID: "p1", Name: "Lionel Messi", ClubID: "barca", ClubName: "FC Barcelona", BasePrice: 1_000_000},
		domain.Player{ID: "p2", Name: "Pedri", ClubID: "barca", ClubName: "FC Barcelona", BasePrice: 800_000},
	)

	notes := NewNotificationService(memory.NewNotificationStore(), bus, nil, 50, logger,
		WithClock(clock.Now), WithIDGenerator(sequentialIDs("n")))
	market := NewMarketService(notes, bus, true, 0, logger, WithClock(clock.Now))
	offers := NewOfferService(store, players, notes, market, bus, nil, testRules, logger,
		WithClock(clock.Now), WithIDGenerator(sequentialIDs("o")))
	checker := NewExpiryChecker(offers, notes, market, nil, 0, time.Minute, logger, WithClock(clock.Now))

	return &fixture{
		clock:   clock,
		offers:  offers,
		notes:   notes,
		market:  market,
		checker: checker,
		store:   store,
		bus:     bus,
	}
}

func validOffer(amount float64) domain.NewOffer {
	return domain.NewOffer{
		PlayerID:     "p1",
		FromClubID:   "madrid",
		FromClubName: "Real Madrid",
		ToClubID:     "barca",
		Amount:       amount,
	}
}

func TestOfferService_CreateFillsDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.offers.Create(ctx, validOffer(1_500_000))
	require.NoError(t, err)

	assert.Equal(t, "o-1", o.ID)
	assert.Equal(t, domain.OfferPending, o.Status)
	assert.Equal(t, "Lionel Messi", o.PlayerName)
	assert.Equal(t, "FC Barcelona", o.ToClubName)
	assert.Equal(t, f.clock.Now(), o.CreatedAt)
	assert.Equal(t, f.clock.Now().Add(48*time.Hour), o.ExpiresAt)

	items, unread := f.notes.List()
	require.Len(t, items, 1)
	assert.Equal(t, 1, unread)
	assert.Equal(t, domain.NotifyOfferReceived, items[0].Type)
	assert.Contains(t, items[0].Message, "1.500.000 €")
	require.NotNil(t, items[0].Data)
	assert.Equal(t, o.ID, items[0].Data.OfferID)

	assert.Equal(t, 1, f.bus.StreamLen(domain.StreamOfferEvents))
}

func TestOfferService_CreateBounds(t *testing.T) {
	cases := []struct {
		name   string
		amount float64
		ok     bool
	}{
		{"at minimum", 500_000, true},
		{"at maximum", 2_000_000, true},
		{"below minimum", 499_999, false},
		{"above maximum", 2_000_001, false},
		{"negative", -1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.offers.Create(context.Background(), validOffer(tc.amount))
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestOfferService_CreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validOffer(1_000_000)
	in.ToClubID = in.FromClubID
	_, err := f.offers.Create(ctx, in)
	assert.ErrorIs(t, err, domain.ErrValidation)

	in = validOffer(1_000_000)
	in.PlayerID = "ghost"
	_, err = f.offers.Create(ctx, in)
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := f.offers.List(ctx, domain.OfferFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOfferService_CreateWhileMarketClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.market.Close(ctx)
	require.NoError(t, err)

	_, err = f.offers.Create(ctx, validOffer(1_000_000))
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	_, err = f.market.Open(ctx)
	require.NoError(t, err)
	_, err = f.offers.Create(ctx, validOffer(1_000_000))
	assert.NoError(t, err)
}

func TestOfferService_ApproveAndReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.offers.Create(ctx, validOffer(1_000_000))
	require.NoError(t, err)
	b, err := f.offers.Create(ctx, validOffer(1_200_000))
	require.NoError(t, err)

	approved, err := f.offers.Approve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferApproved, approved.Status)

	rejected, err := f.offers.Reject(ctx, b.ID, "  Precio insuficiente ")
	require.NoError(t, err)
	assert.Equal(t, domain.OfferRejected, rejected.Status)
	assert.Equal(t, "Precio insuficiente", rejected.RejectReason)

	items, _ := f.notes.List()
	require.Len(t, items, 4)
	assert.Equal(t, domain.NotifyOfferRejected, items[0].Type)
	assert.Contains(t, items[0].Message, "Motivo: Precio insuficiente")
	assert.Equal(t, domain.NotifyOfferAccepted, items[1].Type)

	_, err = f.offers.Approve(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.offers.Reject(ctx, a.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, err := f.offers.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferRejected, stored.Status)

	items, _ = f.notes.List()
	assert.Len(t, items, 4, "failed transitions emit nothing")
}

func TestOfferService_ApproveUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.offers.Approve(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOfferService_TransitionToPendingIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.offers.Create(ctx, validOffer(1_000_000))
	require.NoError(t, err)

	_, err = f.offers.Transition(ctx, o.ID, domain.OfferPending, domain.TransitionExtra{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestOfferService_ListFilterAndSort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.offers.Create(ctx, validOffer(1_000_000))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	in := validOffer(900_000)
	in.PlayerID = "p2"
	second, err := f.offers.Create(ctx, in)
	require.NoError(t, err)
	_, err = f.offers.Approve(ctx, first.ID)
	require.NoError(t, err)

	all, err := f.offers.List(ctx, domain.OfferFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID, "insertion order")

	recent, err := f.offers.List(ctx, domain.OfferFilter{SortRecent: true})
	require.NoError(t, err)
	assert.Equal(t, second.ID, recent[0].ID)

	pending, err := f.offers.List(ctx, domain.OfferFilter{Status: domain.OfferPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	byPlayer, err := f.offers.List(ctx, domain.OfferFilter{PlayerID: "p2", ClubID: "madrid"})
	require.NoError(t, err)
	assert.Len(t, byPlayer, 1)
}

func TestOfferService_OnChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	calls := 0
	f.offers.OnChange(func() { calls++ })

	o, err := f.offers.Create(ctx, validOffer(1_000_000))
	require.NoError(t, err)
	_, err = f.offers.Reject(ctx, o.ID, "")
	require.NoError(t, err)
	_, err = f.offers.Reject(ctx, o.ID, "")
	require.Error(t, err)

	assert.Equal(t, 2, calls)
}

func TestExpiryChecker_48HourScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.offers.Create(ctx, validOffer(1_000_000))
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	report, err := f.checker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired, "exactly at the deadline the offer is still live")

	f.clock.Advance(time.Second)
	report, err = f.checker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Expired)

	got, err := f.offers.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferExpired, got.Status)

	items, _ := f.notes.List()
	assert.Equal(t, domain.NotifyOfferExpired, items[0].Type)
	assert.Equal(t, o.ID, items[0].Data.OfferID)

	report, err = f.checker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)
	after, _ := f.notes.List()
	assert.Len(t, after, len(items), "second scan emits nothing")

	_, err = f.offers.Approve(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestExpiryChecker_SkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.offers.Create(ctx, validOffer(1_000_000))
	require.NoError(t, err)
	f.clock.Advance(72 * time.Hour)

	checker := NewExpiryChecker(f.offers, f.notes, nil, heldLock{}, time.Second, time.Minute, discardLogger(),
		WithClock(f.clock.Now))
	report, err := checker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, 0, report.Expired)
}

func TestExpiryChecker_ClosesMarketWhenDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	market := NewMarketService(f.notes, nil, true, 24*time.Hour, discardLogger(), WithClock(f.clock.Now))
	checker := NewExpiryChecker(f.offers, f.notes, market, nil, 0, time.Minute, discardLogger(), WithClock(f.clock.Now))

	report, err := checker.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, report.MarketClosed)

	f.clock.Advance(24 * time.Hour)
	assert.False(t, market.IsOpen(ctx))
	report, err = checker.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, report.MarketClosed)
	assert.False(t, market.State(ctx).Open)

	items, _ := f.notes.List()
	assert.Equal(t, domain.NotifyMarketClosed, items[0].Type)
}

func TestExpiryChecker_RunTriggersAndStops(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	o, err := f.offers.Create(ctx, validOffer(1_000_000))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.checker.Run(ctx) }()

	f.clock.Advance(49 * time.Hour)
	f.checker.Trigger()

	require.Eventually(t, func() bool {
		got, err := f.offers.Get(context.Background(), o.ID)
		return err == nil && got.Status == domain.OfferExpired
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop")
	}
}

func rawItems(t *testing.T, items ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestOfferService_ImportNormalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.offers.Import(ctx, rawItems(t,
		map[string]any{"id": "x1", "playerId": "p1", "amount": "abc", "status": "bogus"},
		map[string]any{"id": "x2", "playerId": "p2", "fee": "750000", "status": "APPROVED",
			"createdAt": "2025-06-01T10:00:00Z", "expiresAt": "2025-05-01T10:00:00Z"},
		map[string]any{"id": "x3", "amount": -5, "createdAt": 1748772000000},
		"not an object",
		42,
	))
	require.NoError(t, err)
	assert.Equal(t, domain.ImportResult{Inserted: 3, Updated: 0, Total: 3}, res)

	x1, err := f.offers.Get(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, x1.Amount)
	assert.Equal(t, domain.OfferPending, x1.Status)
	assert.Equal(t, f.clock.Now(), x1.CreatedAt)
	assert.Equal(t, f.clock.Now().Add(48*time.Hour), x1.ExpiresAt)

	x2, err := f.offers.Get(ctx, "x2")
	require.NoError(t, err)
	assert.Equal(t, 750_000.0, x2.Amount)
	assert.Equal(t, domain.OfferApproved, x2.Status)
	assert.Equal(t, x2.CreatedAt.Add(48*time.Hour), x2.ExpiresAt, "expiry before creation is repaired")

	x3, err := f.offers.Get(ctx, "x3")
	require.NoError(t, err)
	assert.Equal(t, 0.0, x3.Amount)
	assert.Equal(t, time.UnixMilli(1748772000000).UTC(), x3.CreatedAt)
}

func TestOfferService_ImportMergesExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live, err := f.offers.Create(ctx, validOffer(1_000_000))
	require.NoError(t, err)
	done, err := f.offers.Create(ctx, validOffer(1_100_000))
	require.NoError(t, err)
	_, err = f.offers.Approve(ctx, done.ID)
	require.NoError(t, err)

	res, err := f.offers.Import(ctx, rawItems(t,
		map[string]any{"id": live.ID, "amount": 1_250_000, "status": "rejected", "rejectReason": "tarde"},
		map[string]any{"id": done.ID, "status": "pending", "playerName": "Leo"},
		map[string]any{"playerId": "p2", "amount": 900_000},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 3, res.Total)

	gotLive, err := f.offers.Get(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, 1_250_000.0, gotLive.Amount)
	assert.Equal(t, domain.OfferRejected, gotLive.Status)
	assert.Equal(t, "tarde", gotLive.RejectReason)
	assert.Equal(t, live.FromClubID, gotLive.FromClubID, "absent fields are kept")

	gotDone, err := f.offers.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferApproved, gotDone.Status, "terminal offers stay terminal")
	assert.Equal(t, "Leo", gotDone.PlayerName)

	all, err := f.offers.List(ctx, domain.OfferFilter{})
	require.NoError(t, err)
	assert.Equal(t, "o-3", all[2].ID)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0 €", formatAmount(0))
	assert.Equal(t, "999 €", formatAmount(999))
	assert.Equal(t, "1.000 €", formatAmount(1000))
	assert.Equal(t, "1.500.000 €", formatAmount(1_500_000))
	assert.Equal(t, "12.345.679 €", formatAmount(12_345_678.9))
}
