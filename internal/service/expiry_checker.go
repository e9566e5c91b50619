package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lavirtualzone/transfers/internal/domain"
)

const expiryLockKey = "expiry-scan"

// MarketCloser closes the transfer window once its deadline has passed.
type MarketCloser interface {
	CloseIfDue(ctx context.Context) (bool, error)
}

// ExpiryReport summarizes one scan.
type ExpiryReport struct {
	Scanned      int
	Expired      int
	Failed       int
	Skipped      bool // another process holds the scan lock
	MarketClosed bool
}

// ExpiryChecker moves stale pending offers to expired. It scans on a fixed
// interval and whenever Trigger is called.
type ExpiryChecker struct {
	offers   *OfferService
	notes    Emitter
	market   MarketCloser       // optional
	lock     domain.LockManager // optional
	lockTTL  time.Duration
	interval time.Duration
	trigger  chan struct{}
	opts     options
	logger   *slog.Logger
}

// NewExpiryChecker creates an ExpiryChecker. market and lock may be nil.
func NewExpiryChecker(
	offers *OfferService,
	notes Emitter,
	market MarketCloser,
	lock domain.LockManager,
	lockTTL time.Duration,
	interval time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *ExpiryChecker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &ExpiryChecker{
		offers:   offers,
		notes:    notes,
		market:   market,
		lock:     lock,
		lockTTL:  lockTTL,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		opts:     applyOptions(opts),
		logger:   logger.With(slog.String("component", "expiry")),
	}
}

// Run scans once immediately and then on every tick or trigger until ctx is
// cancelled.
func (c *ExpiryChecker) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "expiry checker started", slog.Duration("interval", c.interval))

	c.scan(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "expiry checker stopped")
			return ctx.Err()
		case <-ticker.C:
			c.scan(ctx)
		case <-c.trigger:
			c.scan(ctx)
		}
	}
}

// Trigger requests a scan without blocking. Requests made while one is
// already queued are coalesced.
func (c *ExpiryChecker) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

func (c *ExpiryChecker) scan(ctx context.Context) {
	report, err := c.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "expiry scan failed", slog.String("error", err.Error()))
		}
		return
	}
	if report.Expired > 0 || report.Failed > 0 || report.MarketClosed {
		c.logger.InfoContext(ctx, "expiry scan complete",
			slog.Int("scanned", report.Scanned),
			slog.Int("expired", report.Expired),
			slog.Int("failed", report.Failed),
			slog.Bool("market_closed", report.MarketClosed),
		)
	}
}

// RunOnce expires every pending offer whose deadline has passed, emits one
// offer_expired notification per expired offer and closes the market when
// its window is over. Running it twice at the same instant expires nothing
// the second time.
func (c *ExpiryChecker) RunOnce(ctx context.Context) (ExpiryReport, error) {
	ctx, span := tracer.Start(ctx, "ExpiryChecker.RunOnce")
	defer span.End()

	var report ExpiryReport
	if c.lock != nil {
		unlock, err := c.lock.Acquire(ctx, expiryLockKey, c.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				report.Skipped = true
				c.logger.DebugContext(ctx, "expiry scan skipped: lock held elsewhere")
				return report, nil
			}
			return report, fmt.Errorf("expiry: acquire lock: %w", err)
		}
		defer unlock()
	}

	pending, err := c.offers.List(ctx, domain.OfferFilter{Status: domain.OfferPending})
	if err != nil {
		return report, fmt.Errorf("expiry: %w", err)
	}
	now := c.opts.now()
	report.Scanned = len(pending)

	for _, o := range pending {
		if !o.IsStale(now) {
			continue
		}
		expired, err := c.offers.Transition(ctx, o.ID, domain.OfferExpired, domain.TransitionExtra{})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
				c.logger.WarnContext(ctx, "offer changed during expiry scan",
					slog.String("offer_id", o.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			report.Failed++
			c.logger.ErrorContext(ctx, "expire offer failed",
				slog.String("offer_id", o.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Expired++
		c.emitExpired(ctx, expired)
	}

	if c.market != nil {
		closed, err := c.market.CloseIfDue(ctx)
		if err != nil {
			c.logger.ErrorContext(ctx, "close market failed", slog.String("error", err.Error()))
		}
		report.MarketClosed = closed
	}

	span.SetAttributes(
		attribute.Int("expiry.scanned", report.Scanned),
		attribute.Int("expiry.expired", report.Expired),
	)
	return report, nil
}

func (c *ExpiryChecker) emitExpired(ctx context.Context, o domain.Offer) {
	if c.notes == nil {
		return
	}
	msg := fmt.Sprintf("La oferta de %s por %s ha expirado sin respuesta.",
		clubLabel(o.FromClubName, o.FromClubID), o.PlayerName)
	_, err := c.notes.Emit(ctx, domain.NotifyOfferExpired, "Oferta expirada", msg, &domain.NotificationData{
		OfferID:    o.ID,
		PlayerName: o.PlayerName,
		ClubName:   o.FromClubName,
		Amount:     o.Amount,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "emit expiry notification failed",
			slog.String("offer_id", o.ID),
			slog.String("error", err.Error()),
		)
	}
}
