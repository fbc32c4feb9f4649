package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"gunfight/internal/game"
	"gunfight/internal/game/geom"
)

// EngineInterface is the slice of the combat engine the API layer
// touches. Keep it minimal: it exists so handler tests can run against a
// stub without a full engine.
type EngineInterface interface {
	Join(playerID, name string) game.JoinResult
	Leave(playerID string) game.Decision
	Move(playerID string, pos, vel, facing geom.Vec3) game.Decision
	ReportLatency(playerID string, rttMs float64) game.Decision

	Fire(req game.FireRequest) game.FireResult
	Reload(playerID, weaponID string) game.ReloadResult
	Equip(playerID, weaponID string, slot game.WeaponSlot) game.EquipResult
	SwitchSlot(playerID string, slot game.WeaponSlot) game.Decision

	Snapshot() game.StateSnapshot
	Leaderboard() []game.LeaderboardEntry
	Catalog() *game.Catalog
	Journal() *game.EventLog
	Gate() *game.Gate
	PlayerCount() int
}

// RouterConfig contains the dependencies needed to construct the HTTP
// router. Designed for dependency injection: tests pass a stub engine
// and a permissive rate limit.
type RouterConfig struct {
	// Engine is the combat engine (required).
	Engine EngineInterface

	// Log receives request-level diagnostics.
	Log zerolog.Logger

	// RateLimiter is an optional pre-configured limiter; when nil one is
	// created from RateLimitConfig (or the defaults).
	RateLimiter *IPRateLimiter

	// RateLimitConfig configures the limiter when RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins overrides the allowed origins; nil uses the defaults.
	CORSOrigins []string

	// DisableLogging turns off the request logger (benchmarks).
	DisableLogging bool
}

type routerHandlers struct {
	engine EngineInterface
	log    zerolog.Logger
}

// NewRouter constructs the HTTP router with middleware and routes. It is
// pure: no goroutines, no listeners, so it is safe for httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting before CORS so floods are rejected cheaply.
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		engine: cfg.Engine,
		log:    cfg.Log.With().Str("component", "api").Logger(),
	}

	r.Route("/api", func(r chi.Router) {
		// Match state
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/leaderboard", h.handleGetLeaderboard)

		// Weapon catalog
		r.Get("/weapons", h.handleGetWeapons)
		r.Get("/weapons/report", h.handleGetWeaponsReport)

		// Player lifecycle and movement
		r.Post("/player/join", h.handlePlayerJoin)
		r.Post("/player/leave", h.handlePlayerLeave)
		r.Post("/player/move", h.handlePlayerMove)
		r.Post("/player/latency", h.handlePlayerLatency)

		// Combat actions
		r.Post("/combat/fire", h.handleFire)
		r.Post("/combat/reload", h.handleReload)
		r.Post("/combat/equip", h.handleEquip)
		r.Post("/combat/switch", h.handleSwitch)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}

// requestMetrics records latency per chi route pattern, keeping the
// endpoint label cardinality bounded.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				RecordRequest(r.Method, pattern, time.Since(start))
			}
		}
	})
}
