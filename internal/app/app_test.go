package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavirtualzone/transfers/internal/config"
	"github.com/lavirtualzone/transfers/internal/domain"
	"github.com/lavirtualzone/transfers/internal/server/middleware"
	"github.com/lavirtualzone/transfers/internal/store/memory"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	players := filepath.Join(dir, "players.json")
	require.NoError(t, os.WriteFile(players, []byte(`[
		{"id":"p1","name":"Lionel Test","clubId":"c1","clubName":"Club Uno","basePrice":1000000}
	]`), 0o600))

	cfg := config.Defaults()
	cfg.Store.Backend = "memory"
	cfg.Store.PlayersPath = players
	return &cfg
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWire_InProcessFallbacks(t *testing.T) {
	ctx := context.Background()
	deps, cleanup, err := Wire(ctx, testConfig(t), quiet())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.Bus{}, deps.Bus)
	assert.IsType(t, &middleware.LocalLimiter{}, deps.Limiter)
	assert.Nil(t, deps.Locks)
	assert.Nil(t, deps.Archiver)
	assert.Nil(t, deps.Audit)
	assert.Empty(t, deps.HealthChecks)

	p, err := deps.Players.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Club Uno", p.ClubName)
}

func TestWire_FileBackend(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Store.Backend = "file"
	cfg.Store.OffersPath = filepath.Join(dir, "offers.json")
	cfg.Store.NotificationsPath = filepath.Join(dir, "notifications.json")

	deps, cleanup, err := Wire(context.Background(), cfg, quiet())
	require.NoError(t, err)
	defer cleanup()

	offers, err := deps.Offers.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestWire_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "floppy"
	_, _, err := Wire(context.Background(), cfg, quiet())
	assert.ErrorContains(t, err, "unknown store backend")

	cfg = testConfig(t)
	cfg.Archive.Enabled = true
	_, _, err = Wire(context.Background(), cfg, quiet())
	assert.ErrorContains(t, err, "archive requires")

	cfg = testConfig(t)
	cfg.Store.Backend = "s3"
	_, _, err = Wire(context.Background(), cfg, quiet())
	assert.ErrorContains(t, err, "s3 backend requires")
}

func TestBuildServices_Snapshot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	deps, cleanup, err := Wire(ctx, cfg, quiet())
	require.NoError(t, err)
	defer cleanup()

	a := New(cfg, quiet())
	svc, err := a.buildServices(ctx, deps)
	require.NoError(t, err)

	_, err = svc.offers.Create(ctx, domain.NewOffer{
		PlayerID:   "p1",
		FromClubID: "c2",
		ToClubID:   "c1",
		Amount:     1200000,
	})
	require.NoError(t, err)
	svc.notes.Wait()

	snap, ok := snapshot(svc)(ctx).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, snap["pendingOffers"])
	assert.Equal(t, 1, snap["unreadCount"])
	assert.True(t, snap["market"].(domain.MarketState).Open)
}
