// Package server exposes the transfer services over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lavirtualzone/transfers/internal/domain"
	"github.com/lavirtualzone/transfers/internal/server/handler"
	"github.com/lavirtualzone/transfers/internal/server/middleware"
	"github.com/lavirtualzone/transfers/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port               int
	CORSOrigins        []string
	APIKey             string // if empty, authentication is disabled
	RateLimitPerMinute int    // 0 disables rate limiting
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Transfers     *handler.TransferHandler
	Notifications *handler.NotificationHandler
	Market        *handler.MarketHandler
	Maintenance   *handler.MaintenanceHandler // optional
	Audit         *handler.AuditHandler       // optional, PostgreSQL only
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wraps them in the middleware chain.
// limiter may be nil, which disables rate limiting; wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      Routes(cfg, handlers, wsHub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the handler tree. Exposed for tests.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	mux.HandleFunc("GET /api/transfers", handlers.Transfers.ListOffers)
	mux.HandleFunc("POST /api/transfers", handlers.Transfers.CreateOffer)
	mux.HandleFunc("POST /api/transfers/import", handlers.Transfers.Import)
	mux.HandleFunc("GET /api/transfers/{id}", handlers.Transfers.GetOffer)
	mux.HandleFunc("POST /api/transfers/{id}/approve", handlers.Transfers.Approve)
	mux.HandleFunc("POST /api/transfers/{id}/reject", handlers.Transfers.Reject)

	mux.HandleFunc("GET /api/notifications", handlers.Notifications.List)
	mux.HandleFunc("POST /api/notifications/read-all", handlers.Notifications.MarkAllAsRead)
	mux.HandleFunc("POST /api/notifications/{id}/read", handlers.Notifications.MarkAsRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", handlers.Notifications.Remove)
	mux.HandleFunc("DELETE /api/notifications", handlers.Notifications.ClearAll)

	mux.HandleFunc("GET /api/market", handlers.Market.GetState)
	mux.HandleFunc("POST /api/market/open", handlers.Market.Open)
	mux.HandleFunc("POST /api/market/close", handlers.Market.Close)

	if handlers.Maintenance != nil {
		mux.HandleFunc("POST /api/expiry/trigger", handlers.Maintenance.TriggerExpiry)
		mux.HandleFunc("POST /api/archive/run", handlers.Maintenance.RunArchive)
		mux.HandleFunc("GET /api/archive", handlers.Maintenance.ListArchives)
	}

	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
