package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"gunfight/internal/game"
)

// Server is the HTTP API server with the WebSocket event feed. It wraps
// the pure router with the stateful pieces: the hub, the rate limiter
// and the gauge refresh loop.
type Server struct {
	engine      *game.Engine
	log         zerolog.Logger
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter

	httpServer *http.Server
	stopChan   chan struct{}
}

// ServerConfig carries the server's own knobs; combat tunables live in
// the engine config.
type ServerConfig struct {
	RateLimit   RateLimitConfig
	CORSOrigins []string
}

// NewServer creates the API server. Background workers do not start
// until Start() is called, so tests can construct a server and hit
// Router() via httptest without goroutines running.
func NewServer(engine *game.Engine, cfg ServerConfig, log zerolog.Logger) *Server {
	s := &Server{
		engine:      engine,
		log:         log.With().Str("component", "server").Logger(),
		wsHub:       NewWebSocketHub(newOriginChecker(cfg.CORSOrigins), log),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
		stopChan:    make(chan struct{}),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Log:         log,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
	})
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	// Live consumers of the combat event stream.
	engine.AddSink(s.wsHub)
	engine.AddSink(NewMetricsSink())

	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler { return s.router }

// Hub returns the WebSocket hub (ops/tests).
func (s *Server) Hub() *WebSocketHub { return s.wsHub }

// Start launches the hub, the gauge refresh loop and the listener. It
// blocks until the listener stops.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	go s.gaugeLoop()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("api server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopChan)
	s.rateLimiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// gaugeLoop refreshes the player and journal gauges. Counters update on
// the hot path; gauges poll so the combat core carries no metrics
// dependency.
func (s *Server) gaugeLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			UpdatePlayerCount(s.engine.PlayerCount())
			journal := s.engine.Journal()
			UpdateJournalStats(journal.GetTotalCount(), journal.GetDroppedCount())
		}
	}
}
