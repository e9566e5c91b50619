// Package ws streams signal bus events to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// Channels the hub bridges from the bus. New clients start subscribed to
// notifications only.
var (
	bridgedChannels = []string{domain.ChannelNotifications, domain.ChannelOffers, domain.ChannelMarket}
	defaultChannels = []string{domain.ChannelNotifications}
)

// Envelope is the frame sent to clients: "hello" once on connect, then
// "event" per bus message.
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Snapshot builds the payload of the hello frame.
type Snapshot func(ctx context.Context) any

// Config configures a Hub.
type Config struct {
	// AllowedOrigins restricts the upgrade Origin header; empty allows all.
	AllowedOrigins []string
	Snapshot       Snapshot
}

// Hub fans bus messages out to the WebSocket clients subscribed to each
// channel. Clients are accepted only while Run is active.
type Hub struct {
	bus      domain.SignalBus
	snapshot Snapshot
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	ready chan struct{}
}

// NewHub creates a hub over bus. Call Run before serving HandleWS.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	return &Hub{
		bus:      bus,
		snapshot: cfg.Snapshot,
		logger:   logger.With(slog.String("component", "ws")),
		clients:  make(map[*client]struct{}),
		ready:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(allowed, func(o string) bool {
			return o == "*" || strings.EqualFold(strings.TrimRight(o, "/"), origin)
		})
	}
}

// Run subscribes to the bridged channels and delivers their messages until
// ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	events := make(chan Envelope, 256)
	var wg sync.WaitGroup
	for _, ch := range bridgedChannels {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.logger.Error("subscribe failed", slog.String("channel", ch), slog.String("error", err.Error()))
			continue
		}
		wg.Add(1)
		go func(ch string) {
			defer wg.Done()
			for data := range msgs {
				select {
				case events <- Envelope{Type: "event", Channel: ch, Payload: data}:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	close(h.ready)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			wg.Wait()
			return ctx.Err()
		case ev := <-events:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev Envelope) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("encode event failed", slog.String("channel", ev.Channel), slog.String("error", err.Error()))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.subscribed(ev.Channel) && !c.enqueue(frame) {
			h.logger.Warn("dropping event for slow client", slog.String("channel", ev.Channel))
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// add registers c; it reports false once the hub has shut down.
func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("client connected", slog.Int("total_clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("client disconnected", slog.Int("total_clients", len(h.clients)))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades GET /ws, sends the hello snapshot and starts the
// client's read and write loops.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.ready:
	case <-r.Context().Done():
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	c.enqueue(h.hello(r.Context()))
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	go c.writeLoop()
	go c.readLoop()
}

// hello renders the snapshot frame; an empty object when no snapshot is set.
func (h *Hub) hello(ctx context.Context) []byte {
	var state any = struct{}{}
	if h.snapshot != nil {
		state = h.snapshot(ctx)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		h.logger.Warn("encode snapshot failed", slog.String("error", err.Error()))
		raw = []byte("{}")
	}
	frame, _ := json.Marshal(Envelope{Type: "hello", Payload: raw})
	return frame
}
