// Package config provides centralized configuration management.
// Every section has in-code defaults and a FromEnv variant applying
// environment overrides; values are read once at startup.
package config

import (
	"os"
	"strconv"
	"time"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:            3000,
		ShutdownTimeout: 10 * time.Second,
	}
}

// ServerFromEnv returns server configuration with environment overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if d := getEnvDuration("SHUTDOWN_TIMEOUT", 0); d > 0 {
		cfg.ShutdownTimeout = d
	}

	return cfg
}

// CombatConfig holds the combat core tunables surfaced to operators.
// Burst/refill pairs feed the per-player action buckets; the violation
// settings control mute escalation.
type CombatConfig struct {
	MaxPlayers   int
	RespawnDelay time.Duration
	JournalPath  string // empty disables the on-disk event journal
	WeaponsFile  string // optional weapon definition file (JSON/YAML)

	FireBurst   int
	FireRefill  float64
	ReloadBurst int
	SwitchBurst int

	ViolationThreshold int
	ViolationWindow    time.Duration
	MuteDuration       time.Duration
}

// DefaultCombat returns the default combat configuration.
func DefaultCombat() CombatConfig {
	return CombatConfig{
		MaxPlayers:         100,
		RespawnDelay:       5 * time.Second,
		JournalPath:        "combat-events.jsonl",
		FireBurst:          20,
		FireRefill:         15,
		ReloadBurst:        4,
		SwitchBurst:        6,
		ViolationThreshold: 10,
		ViolationWindow:    5 * time.Second,
		MuteDuration:       10 * time.Second,
	}
}

// CombatFromEnv returns combat configuration with environment overrides.
func CombatFromEnv() CombatConfig {
	cfg := DefaultCombat()

	if mp := getEnvInt("MAX_PLAYERS", 0); mp > 0 {
		cfg.MaxPlayers = mp
	}
	if d := getEnvDuration("RESPAWN_DELAY", 0); d > 0 {
		cfg.RespawnDelay = d
	}
	if v, ok := os.LookupEnv("EVENT_JOURNAL_PATH"); ok {
		cfg.JournalPath = v // explicitly empty disables journaling
	}
	if v := os.Getenv("WEAPONS_FILE"); v != "" {
		cfg.WeaponsFile = v
	}

	if b := getEnvInt("FIRE_BURST", 0); b > 0 {
		cfg.FireBurst = b
	}
	if r := getEnvFloat("FIRE_REFILL", 0); r > 0 {
		cfg.FireRefill = r
	}
	if b := getEnvInt("RELOAD_BURST", 0); b > 0 {
		cfg.ReloadBurst = b
	}
	if b := getEnvInt("SWITCH_BURST", 0); b > 0 {
		cfg.SwitchBurst = b
	}

	if t := getEnvInt("VIOLATION_THRESHOLD", 0); t > 0 {
		cfg.ViolationThreshold = t
	}
	if d := getEnvDuration("VIOLATION_WINDOW", 0); d > 0 {
		cfg.ViolationWindow = d
	}
	if d := getEnvDuration("MUTE_DURATION", 0); d > 0 {
		cfg.MuteDuration = d
	}

	return cfg
}

// APIConfig holds the settings of the public HTTP surface.
type APIConfig struct {
	RequestsPerSecond float64 // per-IP rate limit
	Burst             int
	CORSOrigins       []string // nil uses the built-in defaults
}

// DefaultAPI returns the default API configuration.
func DefaultAPI() APIConfig {
	return APIConfig{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// APIFromEnv returns API configuration with environment overrides.
func APIFromEnv() APIConfig {
	cfg := DefaultAPI()

	if r := getEnvFloat("API_RATE_LIMIT", 0); r > 0 {
		cfg.RequestsPerSecond = r
	}
	if b := getEnvInt("API_RATE_BURST", 0); b > 0 {
		cfg.Burst = b
	}

	return cfg
}

// LoggingConfig holds logging output settings.
type LoggingConfig struct {
	Level  string // zerolog level name
	Pretty bool   // console writer instead of JSON
}

// DefaultLogging returns the default logging configuration.
func DefaultLogging() LoggingConfig {
	return LoggingConfig{Level: "info"}
}

// LoggingFromEnv returns logging configuration with environment overrides.
func LoggingFromEnv() LoggingConfig {
	cfg := DefaultLogging()

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	if os.Getenv("LOG_PRETTY") == "true" {
		cfg.Pretty = true
	}

	return cfg
}

// ObservabilityConfig holds the internal debug server settings.
type ObservabilityConfig struct {
	Enabled    bool
	ListenAddr string // must stay on localhost unless explicitly overridden
}

// DefaultObservability returns the default observability configuration.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// ObservabilityFromEnv returns observability configuration with
// environment overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if v := os.Getenv("DEBUG_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	return cfg
}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server        ServerConfig
	Combat        CombatConfig
	API           APIConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:        ServerFromEnv(),
		Combat:        CombatFromEnv(),
		API:           APIFromEnv(),
		Logging:       LoggingFromEnv(),
		Observability: ObservabilityFromEnv(),
	}
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
