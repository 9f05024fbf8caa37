package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/housefun/internal/domain"
	"github.com/alanyoungcy/housefun/internal/server/handler"
	"github.com/alanyoungcy/housefun/internal/server/middleware"
	"github.com/alanyoungcy/housefun/internal/server/ws"
)

// Default per-IP budget for the public verify endpoint.
const (
	DefaultVerifyRateLimit  = 60
	DefaultVerifyRateWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// VerifyRateLimit requests per VerifyRateWindow per client IP.
	VerifyRateLimit  int
	VerifyRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Games, Tables and Archive may be nil in deployments that do not serve
// them.
type Handlers struct {
	Health   *handler.HealthHandler
	Verify   *handler.VerifyHandler
	Fairness *handler.FairnessHandler
	Games    *handler.GameHandler
	Tables   *handler.TableHandler
	Archive  *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server for the wagering engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Everything except health and verify sits behind the API key; verify is
// rate limited per client IP when limiter is non-nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the routed, middleware-wrapped handler.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Public verification.
	var verifyGet, verifyPost http.Handler = http.HandlerFunc(handlers.Verify.VerifyGet), http.HandlerFunc(handlers.Verify.VerifyPost)
	if limiter != nil {
		limit, window := cfg.VerifyRateLimit, cfg.VerifyRateWindow
		if limit <= 0 {
			limit = DefaultVerifyRateLimit
		}
		if window <= 0 {
			window = DefaultVerifyRateWindow
		}
		rl := middleware.RateLimit(limiter, "verify", limit, window, logger)
		verifyGet, verifyPost = rl(verifyGet), rl(verifyPost)
	}
	mux.Handle("GET /api/verify", verifyGet)
	mux.Handle("POST /api/verify", verifyPost)

	// Seed pairs.
	mux.HandleFunc("GET /api/fairness/seed", handlers.Fairness.GetSeed)
	mux.HandleFunc("PUT /api/fairness/client-seed", handlers.Fairness.SetClientSeed)
	mux.HandleFunc("POST /api/fairness/next", handlers.Fairness.Next)
	mux.HandleFunc("POST /api/fairness/rotate", handlers.Fairness.Rotate)
	mux.HandleFunc("GET /api/fairness/reveal/{nonce}", handlers.Fairness.Reveal)

	// Games, wagers and settlement.
	if g := handlers.Games; g != nil {
		mux.HandleFunc("POST /api/games", g.CreateGame)
		mux.HandleFunc("GET /api/games", g.ListGames)
		mux.HandleFunc("GET /api/games/{id}", g.GetGame)
		mux.HandleFunc("POST /api/games/{id}/wagers", g.PlaceWager)
		mux.HandleFunc("GET /api/games/{id}/odds", g.Odds)
		mux.HandleFunc("POST /api/games/{id}/resolve", g.Resolve)
		mux.HandleFunc("POST /api/games/{id}/cancel", g.Cancel)
		mux.HandleFunc("GET /api/games/{id}/payouts", g.Payouts)
		mux.HandleFunc("GET /api/wagers", g.ListWagers)
		mux.HandleFunc("POST /api/wagers/{id}/claim", g.Claim)
	}

	// Poker dealing.
	if t := handlers.Tables; t != nil {
		mux.HandleFunc("GET /api/tables/{id}", t.GetHand)
		mux.HandleFunc("POST /api/tables/{id}/deal", t.Deal)
		mux.HandleFunc("POST /api/tables/{id}/deliver", t.Deliver)
		mux.HandleFunc("POST /api/tables/{id}/start", t.Start)
		mux.HandleFunc("POST /api/tables/{id}/decrypt", t.Decrypt)
		mux.HandleFunc("POST /api/tables/{id}/showdown", t.Showdown)
		mux.HandleFunc("POST /api/tables/{id}/abort", t.Abort)
	}
	if a := handlers.Archive; a != nil {
		mux.HandleFunc("GET /api/tables/{id}/hands/{hand}", a.GetHand)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/api/verify")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
