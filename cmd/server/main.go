package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"gunfight/internal/api"
	"gunfight/internal/config"
	"gunfight/internal/game"
	"gunfight/internal/game/geom"
)

func main() {
	// .env from the working directory, or the parent when running out of
	// cmd/server. Absence is fine: plain env vars still apply.
	if godotenv.Load(".env") != nil {
		_ = godotenv.Load("../.env")
	}

	cfg := config.Load()
	log := newLogger(cfg.Logging)

	log.Info().
		Int("port", cfg.Server.Port).
		Int("maxPlayers", cfg.Combat.MaxPlayers).
		Str("journal", cfg.Combat.JournalPath).
		Msg("gunfight server starting")

	// Weapon catalog: in-code defaults, optionally overridden per weapon
	// by a definition file. A broken file is a warning, never fatal.
	catalog := loadCatalog(log, cfg.Combat.WeaponsFile)
	report := catalog.Report()
	log.Info().
		Int("total", report.Total).
		Int("accepted", report.Accepted).
		Int("rejected", report.Rejected).
		Msg("weapon catalog loaded")

	gate := game.NewGate(gateConfig(cfg.Combat), log)

	engineCfg := game.DefaultEngineConfig()
	engineCfg.MaxPlayers = cfg.Combat.MaxPlayers
	engineCfg.RespawnDelay = cfg.Combat.RespawnDelay
	engineCfg.JournalPath = cfg.Combat.JournalPath

	engine := game.NewEngine(engineCfg, catalog, defaultArena(), gate, log)
	if err := engine.Start(); err != nil {
		log.Fatal().Err(err).Msg("engine start failed")
	}
	log.Info().Msg("combat engine started")

	api.StartDebugServer(cfg.Observability, log)

	server := api.NewServer(engine, api.ServerConfig{
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: cfg.API.RequestsPerSecond,
			Burst:             cfg.API.Burst,
			CleanupInterval:   5 * time.Minute,
		},
		CORSOrigins: cfg.API.CORSOrigins,
	}, log)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatal().Err(err).Msg("api server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	engine.Stop()
	log.Info().Msg("goodbye")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func loadCatalog(log zerolog.Logger, weaponsFile string) *game.Catalog {
	if weaponsFile == "" {
		return game.NewCatalog(log)
	}
	catalog, err := game.NewCatalogFromFile(log, weaponsFile)
	if err != nil {
		log.Warn().Err(err).Str("file", weaponsFile).Msg("weapons file unreadable, using defaults")
		return game.NewCatalog(log)
	}
	return catalog
}

func gateConfig(c config.CombatConfig) game.GateConfig {
	cfg := game.DefaultGateConfig()
	cfg.FireBurst = c.FireBurst
	cfg.FireRefill = c.FireRefill
	cfg.ReloadBurst = c.ReloadBurst
	cfg.SwitchBurst = c.SwitchBurst
	cfg.ViolationThreshold = c.ViolationThreshold
	cfg.ViolationWindow = c.ViolationWindow
	cfg.MuteDuration = c.MuteDuration
	return cfg
}

// defaultArena is the built-in map: a handful of cover boxes of mixed
// materials inside the spawn area.
func defaultArena() *game.StaticWorld {
	box := func(id string, mat game.Material, min, max geom.Vec3) game.Obstacle {
		return game.Obstacle{ID: id, Material: mat, Box: geom.AABB{Min: min, Max: max}}
	}
	return game.NewStaticWorld(
		box("wall-north", game.MaterialConcrete, geom.Vec3{X: -50, Y: 0, Z: 49}, geom.Vec3{X: 50, Y: 4, Z: 50}),
		box("wall-south", game.MaterialConcrete, geom.Vec3{X: -50, Y: 0, Z: -50}, geom.Vec3{X: 50, Y: 4, Z: -49}),
		box("wall-east", game.MaterialConcrete, geom.Vec3{X: 49, Y: 0, Z: -50}, geom.Vec3{X: 50, Y: 4, Z: 50}),
		box("wall-west", game.MaterialConcrete, geom.Vec3{X: -50, Y: 0, Z: -50}, geom.Vec3{X: -49, Y: 4, Z: 50}),
		box("crate-mid", game.MaterialWood, geom.Vec3{X: -2, Y: 0, Z: -2}, geom.Vec3{X: 2, Y: 2, Z: 2}),
		box("crate-a", game.MaterialWood, geom.Vec3{X: 14, Y: 0, Z: 9}, geom.Vec3{X: 17, Y: 2, Z: 11}),
		box("crate-b", game.MaterialWood, geom.Vec3{X: -17, Y: 0, Z: -11}, geom.Vec3{X: -14, Y: 2, Z: -9}),
		box("glass-gallery", game.MaterialGlass, geom.Vec3{X: -10, Y: 0, Z: 20}, geom.Vec3{X: 10, Y: 3, Z: 20.2}),
		box("plywood-screen", game.MaterialDrywall, geom.Vec3{X: 20, Y: 0, Z: -20}, geom.Vec3{X: 20.3, Y: 3, Z: -10}),
		box("pillar-a", game.MaterialMetal, geom.Vec3{X: 25, Y: 0, Z: 25}, geom.Vec3{X: 26, Y: 4, Z: 26}),
		box("pillar-b", game.MaterialMetal, geom.Vec3{X: -26, Y: 0, Z: -26}, geom.Vec3{X: -25, Y: 4, Z: -25}),
	)
}
