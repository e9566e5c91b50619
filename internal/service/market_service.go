package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// MarketService tracks whether the transfer window is open. Offers can only
// be created while it is open.
type MarketService struct {
	mu         sync.Mutex
	state      domain.MarketState
	closeAfter time.Duration

	notes  Emitter
	bus    domain.SignalBus // optional
	opts   options
	logger *slog.Logger
}

// NewMarketService creates a MarketService. When openOnStart is set the
// window starts open without emitting market_opened. closeAfter of zero
// disables the automatic close.
func NewMarketService(
	notes Emitter,
	bus domain.SignalBus,
	openOnStart bool,
	closeAfter time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *MarketService {
	m := &MarketService{
		closeAfter: closeAfter,
		notes:      notes,
		bus:        bus,
		opts:       applyOptions(opts),
		logger:     logger.With(slog.String("component", "market")),
	}
	if openOnStart {
		m.state = m.openedState()
	}
	return m
}

func (m *MarketService) openedState() domain.MarketState {
	now := m.opts.now()
	st := domain.MarketState{Open: true, OpenedAt: &now}
	if m.closeAfter > 0 {
		closes := now.Add(m.closeAfter)
		st.ClosesAt = &closes
	}
	return st
}

// State returns the current window state.
func (m *MarketService) State(context.Context) domain.MarketState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOpen reports whether offers may be created now. A window past its
// scheduled close counts as closed even before the checker closes it.
func (m *MarketService) IsOpen(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Open && !m.state.DueToClose(m.opts.now())
}

// Open opens the window and emits market_opened. Opening an open window is
// a no-op.
func (m *MarketService) Open(ctx context.Context) (domain.MarketState, error) {
	m.mu.Lock()
	if m.state.Open {
		st := m.state
		m.mu.Unlock()
		return st, nil
	}
	m.state = m.openedState()
	st := m.state
	m.mu.Unlock()

	msg := "El mercado de fichajes está abierto."
	if st.ClosesAt != nil {
		msg = fmt.Sprintf("El mercado de fichajes está abierto hasta el %s.", st.ClosesAt.Format("02/01/2006 15:04 MST"))
	}
	m.announce(ctx, domain.NotifyMarketOpened, "Mercado abierto", msg, st)
	return st, nil
}

// Close closes the window and emits market_closed. Closing a closed window
// is a no-op.
func (m *MarketService) Close(ctx context.Context) (domain.MarketState, error) {
	m.mu.Lock()
	if !m.state.Open {
		st := m.state
		m.mu.Unlock()
		return st, nil
	}
	m.state = domain.MarketState{}
	st := m.state
	m.mu.Unlock()

	m.announce(ctx, domain.NotifyMarketClosed, "Mercado cerrado", "El mercado de fichajes se ha cerrado.", st)
	return st, nil
}

// CloseIfDue closes the window when its scheduled close has passed.
func (m *MarketService) CloseIfDue(ctx context.Context) (bool, error) {
	m.mu.Lock()
	due := m.state.DueToClose(m.opts.now())
	m.mu.Unlock()
	if !due {
		return false, nil
	}
	_, err := m.Close(ctx)
	return err == nil, err
}

func (m *MarketService) announce(ctx context.Context, typ domain.NotificationType, title, msg string, st domain.MarketState) {
	m.logger.InfoContext(ctx, "market state changed", slog.Bool("open", st.Open))
	if m.bus != nil {
		payload, _ := json.Marshal(st)
		if err := m.bus.Publish(ctx, domain.ChannelMarket, payload); err != nil {
			m.logger.WarnContext(ctx, "publish market state failed", slog.String("error", err.Error()))
		}
	}
	if m.notes == nil {
		return
	}
	if _, err := m.notes.Emit(ctx, typ, title, msg, nil); err != nil {
		m.logger.ErrorContext(ctx, "emit market notification failed",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}
}
