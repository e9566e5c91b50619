package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// TransferRules are the thresholds applied to offers.
type TransferRules struct {
	OfferExpiry        time.Duration
	MinOfferPercentage float64
	MaxOfferPercentage float64
}

// MarketGate reports whether the transfer window accepts new offers.
type MarketGate interface {
	IsOpen(ctx context.Context) bool
}

// OfferService is the single writer of offer status. All mutations in the
// process are serialized by mu; across processes the last write wins.
type OfferService struct {
	mu sync.Mutex

	offers  domain.OfferStore
	players domain.PlayerDirectory
	notes   Emitter
	market  MarketGate       // optional
	bus     domain.SignalBus // optional
	audit   domain.AuditStore
	rules   TransferRules
	opts    options
	logger  *slog.Logger

	onChange func()
}

// NewOfferService creates an OfferService. market, bus and audit may be nil.
func NewOfferService(
	offers domain.OfferStore,
	players domain.PlayerDirectory,
	notes Emitter,
	market MarketGate,
	bus domain.SignalBus,
	audit domain.AuditStore,
	rules TransferRules,
	logger *slog.Logger,
	opts ...Option,
) *OfferService {
	return &OfferService{
		offers:  offers,
		players: players,
		notes:   notes,
		market:  market,
		bus:     bus,
		audit:   audit,
		rules:   rules,
		opts:    applyOptions(opts),
		logger:  logger.With(slog.String("component", "offers")),
	}
}

// OnChange registers fn to run after every successful mutation of the offer
// list. The expiry checker hooks in here.
func (s *OfferService) OnChange(fn func()) {
	s.onChange = fn
}

// Create validates and stores a new pending offer, then emits
// offer_received.
func (s *OfferService) Create(ctx context.Context, in domain.NewOffer) (domain.Offer, error) {
	ctx, span := tracer.Start(ctx, "OfferService.Create", trace.WithAttributes(
		attribute.String("player.id", in.PlayerID),
		attribute.String("club.from", in.FromClubID),
		attribute.String("club.to", in.ToClubID),
		attribute.Float64("offer.amount", in.Amount),
	))
	defer span.End()

	o, err := s.create(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Offer{}, err
	}
	span.SetAttributes(attribute.String("offer.id", o.ID))

	s.logger.InfoContext(ctx, "offer created",
		slog.String("offer_id", o.ID),
		slog.String("player_id", o.PlayerID),
		slog.Float64("amount", o.Amount),
	)
	s.record(ctx, "created", o)
	s.emit(ctx, domain.NotifyOfferReceived, "Nueva oferta recibida",
		fmt.Sprintf("%s ofrece %s por %s.", clubLabel(o.FromClubName, o.FromClubID), formatAmount(o.Amount), o.PlayerName),
		o, o.FromClubName)
	s.changed()
	return o, nil
}

func (s *OfferService) create(ctx context.Context, in domain.NewOffer) (domain.Offer, error) {
	in.PlayerID = strings.TrimSpace(in.PlayerID)
	in.FromClubID = strings.TrimSpace(in.FromClubID)
	in.ToClubID = strings.TrimSpace(in.ToClubID)

	switch {
	case in.PlayerID == "":
		return domain.Offer{}, fmt.Errorf("%w: playerId is required", domain.ErrValidation)
	case in.FromClubID == "" || in.ToClubID == "":
		return domain.Offer{}, fmt.Errorf("%w: fromClubId and toClubId are required", domain.ErrValidation)
	case in.FromClubID == in.ToClubID:
		return domain.Offer{}, fmt.Errorf("%w: a club cannot make an offer to itself", domain.ErrValidation)
	case math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount < 0:
		return domain.Offer{}, fmt.Errorf("%w: amount must be a non-negative number", domain.ErrValidation)
	}

	player, err := s.players.GetPlayer(ctx, in.PlayerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Offer{}, fmt.Errorf("%w: unknown player %s", domain.ErrValidation, in.PlayerID)
		}
		return domain.Offer{}, fmt.Errorf("offers: lookup player %s: %w", in.PlayerID, err)
	}
	if err := s.checkBounds(in.Amount, player.BasePrice); err != nil {
		return domain.Offer{}, err
	}
	if s.market != nil && !s.market.IsOpen(ctx) {
		return domain.Offer{}, domain.ErrMarketClosed
	}

	now := s.opts.now()
	o := domain.Offer{
		ID:           s.opts.newID(),
		PlayerID:     in.PlayerID,
		PlayerName:   firstNonEmpty(in.PlayerName, player.Name),
		FromClubID:   in.FromClubID,
		FromClubName: in.FromClubName,
		ToClubID:     in.ToClubID,
		ToClubName:   in.ToClubName,
		Amount:       in.Amount,
		Status:       domain.OfferPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.rules.OfferExpiry),
	}
	if o.ToClubName == "" && o.ToClubID == player.ClubID {
		o.ToClubName = player.ClubName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.offers.Put(ctx, o); err != nil {
		return domain.Offer{}, fmt.Errorf("offers: create: %w", err)
	}
	return o, nil
}

// checkBounds enforces basePrice*min <= amount <= basePrice*max with exact
// decimal arithmetic so that amounts on the boundary are accepted.
func (s *OfferService) checkBounds(amount, basePrice float64) error {
	base := decimal.NewFromFloat(basePrice)
	lo := base.Mul(decimal.NewFromFloat(s.rules.MinOfferPercentage))
	hi := base.Mul(decimal.NewFromFloat(s.rules.MaxOfferPercentage))
	amt := decimal.NewFromFloat(amount)

	if amt.LessThan(lo) || amt.GreaterThan(hi) {
		return fmt.Errorf("%w: amount %s outside allowed range [%s, %s]",
			domain.ErrValidation, amt.String(), lo.String(), hi.String())
	}
	return nil
}

// Get returns one offer.
func (s *OfferService) Get(ctx context.Context, id string) (domain.Offer, error) {
	return s.offers.Get(ctx, id)
}

// List returns offers matching f, in insertion order unless f.SortRecent.
func (s *OfferService) List(ctx context.Context, f domain.OfferFilter) ([]domain.Offer, error) {
	all, err := s.offers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("offers: list: %w", err)
	}
	out := make([]domain.Offer, 0, len(all))
	for _, o := range all {
		if f.Match(o) {
			out = append(out, o)
		}
	}
	if f.SortRecent {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out, nil
}

// Transition moves a pending offer into a terminal status. It fails with
// domain.ErrNotFound for an unknown id and domain.ErrInvalidTransition when
// the offer is already terminal or next is not a terminal status.
func (s *OfferService) Transition(ctx context.Context, id string, next domain.OfferStatus, extra domain.TransitionExtra) (domain.Offer, error) {
	ctx, span := tracer.Start(ctx, "OfferService.Transition", trace.WithAttributes(
		attribute.String("offer.id", id),
		attribute.String("offer.status", string(next)),
	))
	defer span.End()

	o, err := s.transition(ctx, id, next, extra)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Offer{}, err
	}
	s.logger.InfoContext(ctx, "offer transitioned",
		slog.String("offer_id", o.ID),
		slog.String("status", string(o.Status)),
	)
	s.record(ctx, string(o.Status), o)
	return o, nil
}

func (s *OfferService) transition(ctx context.Context, id string, next domain.OfferStatus, extra domain.TransitionExtra) (domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.offers.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Offer{}, err
		}
		return domain.Offer{}, fmt.Errorf("offers: get %s: %w", id, err)
	}
	if !o.Status.CanTransition(next) {
		return domain.Offer{}, fmt.Errorf("%w: offer %s is %s, cannot become %s",
			domain.ErrInvalidTransition, id, o.Status, next)
	}

	o.Status = next
	if next == domain.OfferRejected {
		o.RejectReason = strings.TrimSpace(extra.RejectReason)
	}
	if err := s.offers.Put(ctx, o); err != nil {
		return domain.Offer{}, fmt.Errorf("offers: transition %s: %w", id, err)
	}
	return o, nil
}

// Approve accepts a pending offer and emits offer_accepted.
func (s *OfferService) Approve(ctx context.Context, id string) (domain.Offer, error) {
	o, err := s.Transition(ctx, id, domain.OfferApproved, domain.TransitionExtra{})
	if err != nil {
		return domain.Offer{}, err
	}
	s.emit(ctx, domain.NotifyOfferAccepted, "Oferta aceptada",
		fmt.Sprintf("%s ha aceptado la oferta de %s por %s.", clubLabel(o.ToClubName, o.ToClubID), formatAmount(o.Amount), o.PlayerName),
		o, o.ToClubName)
	s.changed()
	return o, nil
}

// Reject declines a pending offer with an optional reason and emits
// offer_rejected.
func (s *OfferService) Reject(ctx context.Context, id, reason string) (domain.Offer, error) {
	o, err := s.Transition(ctx, id, domain.OfferRejected, domain.TransitionExtra{RejectReason: reason})
	if err != nil {
		return domain.Offer{}, err
	}
	msg := fmt.Sprintf("%s ha rechazado la oferta por %s.", clubLabel(o.ToClubName, o.ToClubID), o.PlayerName)
	if o.RejectReason != "" {
		msg += " Motivo: " + o.RejectReason
	}
	s.emit(ctx, domain.NotifyOfferRejected, "Oferta rechazada", msg, o, o.ToClubName)
	s.changed()
	return o, nil
}

// Import merges raw offer objects into the store. See normalizeImport for
// the coercion rules. Items that are not JSON objects are skipped.
func (s *OfferService) Import(ctx context.Context, items []json.RawMessage) (domain.ImportResult, error) {
	ctx, span := tracer.Start(ctx, "OfferService.Import", trace.WithAttributes(
		attribute.Int("import.items", len(items)),
	))
	defer span.End()

	s.mu.Lock()
	res, changed, err := s.importLocked(ctx, items)
	s.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ImportResult{}, err
	}

	span.SetAttributes(
		attribute.Int("import.inserted", res.Inserted),
		attribute.Int("import.updated", res.Updated),
	)
	s.logger.InfoContext(ctx, "offers imported",
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Int("total", res.Total),
	)
	for _, o := range changed {
		s.publish(ctx, "imported", o)
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, "offer.import", map[string]any{
			"inserted": res.Inserted,
			"updated":  res.Updated,
			"total":    res.Total,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit import failed", slog.String("error", err.Error()))
		}
	}
	if len(changed) > 0 {
		s.changed()
	}
	return res, nil
}

func (s *OfferService) importLocked(ctx context.Context, items []json.RawMessage) (domain.ImportResult, []domain.Offer, error) {
	existing, err := s.offers.List(ctx)
	if err != nil {
		return domain.ImportResult{}, nil, fmt.Errorf("offers: import: %w", err)
	}
	byID := make(map[string]int, len(existing))
	for i, o := range existing {
		byID[o.ID] = i
	}

	var (
		res   domain.ImportResult
		batch []domain.Offer
		slot  = map[string]int{} // id -> index in batch
	)
	now := s.opts.now()
	for i, raw := range items {
		fields, ok := decodeObject(raw)
		if !ok {
			s.logger.WarnContext(ctx, "import item skipped: not an object", slog.Int("index", i))
			continue
		}

		id, _ := stringField(fields, "id")
		var (
			base   domain.Offer
			exists bool
		)
		if j, ok := slot[id]; ok && id != "" {
			base, exists = batch[j], true
		} else if j, ok := byID[id]; ok && id != "" {
			base, exists = existing[j], true
		}

		o := normalizeImport(fields, base, exists, now, s.rules.OfferExpiry)
		if o.ID == "" {
			o.ID = s.opts.newID()
		}

		if j, ok := slot[o.ID]; ok {
			batch[j] = o
		} else {
			slot[o.ID] = len(batch)
			batch = append(batch, o)
		}
		if _, ok := byID[o.ID]; ok {
			res.Updated++
		} else {
			res.Inserted++
			byID[o.ID] = -1
		}
	}

	if err := s.offers.PutBatch(ctx, batch); err != nil {
		return domain.ImportResult{}, nil, fmt.Errorf("offers: import: %w", err)
	}
	all, err := s.offers.List(ctx)
	if err != nil {
		return domain.ImportResult{}, nil, fmt.Errorf("offers: import: %w", err)
	}
	res.Total = len(all)
	return res, batch, nil
}

func (s *OfferService) emit(ctx context.Context, typ domain.NotificationType, title, msg string, o domain.Offer, club string) {
	if s.notes == nil {
		return
	}
	_, err := s.notes.Emit(ctx, typ, title, msg, &domain.NotificationData{
		OfferID:    o.ID,
		PlayerName: o.PlayerName,
		ClubName:   club,
		Amount:     o.Amount,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "emit notification failed",
			slog.String("offer_id", o.ID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}
}

// record writes the audit entry and publishes the offer event.
func (s *OfferService) record(ctx context.Context, kind string, o domain.Offer) {
	s.publish(ctx, kind, o)
	if s.audit == nil {
		return
	}
	detail := map[string]any{
		"offer_id": o.ID,
		"status":   string(o.Status),
		"amount":   o.Amount,
	}
	if o.RejectReason != "" {
		detail["reject_reason"] = o.RejectReason
	}
	if err := s.audit.Log(ctx, "offer."+kind, detail); err != nil {
		s.logger.WarnContext(ctx, "audit offer event failed",
			slog.String("offer_id", o.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OfferService) publish(ctx context.Context, kind string, o domain.Offer) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.OfferEvent{Kind: kind, Offer: o})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelOffers, payload); err != nil {
		s.logger.WarnContext(ctx, "publish offer event failed", slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamOfferEvents, payload); err != nil {
		s.logger.WarnContext(ctx, "append offer event failed", slog.String("error", err.Error()))
	}
}

func (s *OfferService) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func clubLabel(name, id string) string {
	return firstNonEmpty(name, id, "Un club")
}

// formatAmount renders an amount in euros with dot thousands separators,
// e.g. 1500000 -> "1.500.000 €".
func formatAmount(amount float64) string {
	digits := decimal.NewFromFloat(amount).Round(0).String()
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String() + " €"
	}
	return b.String() + " €"
}
