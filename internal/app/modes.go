package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lavirtualzone/transfers/internal/domain"
	"github.com/lavirtualzone/transfers/internal/pipeline"
	"github.com/lavirtualzone/transfers/internal/server"
	"github.com/lavirtualzone/transfers/internal/server/handler"
	"github.com/lavirtualzone/transfers/internal/server/ws"
	"github.com/lavirtualzone/transfers/internal/service"
)

const shutdownTimeout = 10 * time.Second

// services holds the domain services shared by every mode.
type services struct {
	notes   *service.NotificationService
	market  *service.MarketService
	offers  *service.OfferService
	checker *service.ExpiryChecker
}

// buildServices constructs the services and restores the persisted
// notification list.
func (a *App) buildServices(ctx context.Context, deps *Dependencies) (*services, error) {
	notes := service.NewNotificationService(
		deps.Notifications, deps.Bus, deps.Notifier,
		a.cfg.Notifications.MaxEntries, a.logger,
	)
	if err := notes.Load(ctx); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	market := service.NewMarketService(
		notes, deps.Bus,
		a.cfg.Market.OpenOnStart,
		time.Duration(a.cfg.Market.CloseHours)*time.Hour,
		a.logger,
	)

	offers := service.NewOfferService(
		deps.Offers, deps.Players, notes, market, deps.Bus, deps.Audit,
		service.TransferRules{
			OfferExpiry:        a.cfg.Transfers.OfferExpiry(),
			MinOfferPercentage: a.cfg.Transfers.MinOfferPercentage,
			MaxOfferPercentage: a.cfg.Transfers.MaxOfferPercentage,
		},
		a.logger,
	)

	// Market state lives in the serving process, so a worker never closes it.
	var closer service.MarketCloser
	if !strings.EqualFold(a.cfg.Mode, "worker") {
		closer = market
	}
	checker := service.NewExpiryChecker(
		offers, notes, closer, deps.Locks,
		a.cfg.Expiry.LockTTL.Duration, a.cfg.Expiry.Interval.Duration,
		a.logger,
	)

	return &services{notes: notes, market: market, offers: offers, checker: checker}, nil
}

// ServerMode serves the HTTP API and WebSocket hub together with the expiry
// scan that offer changes trigger. Archiving is left to a worker.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	svc.offers.OnChange(svc.checker.Trigger)
	g.Go(func() error {
		return svc.checker.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, svc)
	return g.Wait()
}

// WorkerMode runs the background jobs only: the expiry scan and the archive
// cron. Its notifications reach servers through the shared store and bus.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.checker.Run(ctx)
	})
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svc.offers.OnChange(svc.checker.Trigger)
	g.Go(func() error {
		return svc.checker.Run(ctx)
	})
	a.startArchiver(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	}
	return g.Wait()
}

// startArchiver adds the archive cron to the group when an archiver is wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	archiver := a.newArchiver(deps)
	if archiver == nil {
		a.logger.InfoContext(ctx, "archiver disabled")
		return
	}
	g.Go(func() error {
		return archiver.RunCron(ctx, a.cfg.Archive.Cron)
	})
}

// newArchiver returns nil when no blob archiver is wired.
func (a *App) newArchiver(deps *Dependencies) *pipeline.Archiver {
	if deps.Archiver == nil {
		return nil
	}
	return pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// group. The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		Snapshot:       snapshot(svc),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:        handler.NewStatusHandler(a.cfg.Mode, a.cfg.Store.Backend, svc.offers, svc.notes, svc.market),
		Transfers:     handler.NewTransferHandler(svc.offers, a.logger),
		Notifications: handler.NewNotificationHandler(svc.notes, a.logger),
		Market:        handler.NewMarketHandler(svc.market, a.logger),
	}
	var (
		archive handler.ArchiveRunner
		lister  handler.ArchiveLister
	)
	if archiver := a.newArchiver(deps); archiver != nil {
		archive = archiver
	}
	if deps.BlobReader != nil {
		lister = deps.BlobReader
	}
	handlers.Maintenance = handler.NewMaintenanceHandler(svc.checker, archive, lister, a.logger)
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, a.logger)
	}
	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, deps.Limiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// snapshot builds the state sent to a WebSocket client on connect.
func snapshot(svc *services) ws.Snapshot {
	return func(ctx context.Context) any {
		_ = svc.notes.Refresh(ctx)
		items, unread := svc.notes.List()
		// A failed list reports zero pending offers.
		pending, _ := svc.offers.List(ctx, domain.OfferFilter{Status: domain.OfferPending})
		return map[string]any{
			"notifications": items,
			"unreadCount":   unread,
			"market":        svc.market.State(ctx),
			"pendingOffers": len(pending),
		}
	}
}
