package game

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"gunfight/internal/game/geom"
)

// GateAction is an action kind with its own token bucket per player.
type GateAction string

const (
	ActionFire   GateAction = "fire"
	ActionReload GateAction = "reload"
	ActionSwitch GateAction = "switch"
)

// GateConfig holds the server-authoritative anti-cheat limits. Clients
// cannot influence any of these.
type GateConfig struct {
	FireBurst    int     // bucket capacity for fire
	FireRefill   float64 // tokens/sec
	ReloadBurst  int
	ReloadRefill float64
	SwitchBurst  int
	SwitchRefill float64

	ViolationThreshold int           // violations within the window before a mute
	ViolationWindow    time.Duration
	MuteDuration       time.Duration

	MaxDirectionAngleDeg float64       // claimed direction vs facing
	RangeTolerance       float64       // distance allowed = weapon range * tolerance
	TimestampWindow      time.Duration // |client - server| bound

	BucketTTL time.Duration // idle buckets removed by Sweep
}

// DefaultGateConfig returns the stock limits.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		FireBurst:    20,
		FireRefill:   15,
		ReloadBurst:  4,
		ReloadRefill: 1,
		SwitchBurst:  6,
		SwitchRefill: 2,

		ViolationThreshold: 10,
		ViolationWindow:    5 * time.Second,
		MuteDuration:       10 * time.Second,

		MaxDirectionAngleDeg: 60,
		RangeTolerance:       1.1,
		TimestampWindow:      time.Second,

		BucketTTL: 2 * time.Minute,
	}
}

type bucketKey struct {
	player string
	action GateAction
}

type gateBucket struct {
	limiter     *rate.Limiter
	violations  int
	windowStart time.Time
	mutedUntil  time.Time
	lastUsed    time.Time
}

// Gate enforces per-(player, action) token buckets plus the stateless
// shot-legitimacy checks. Refill is lazy via rate.Limiter; there is no
// background timer. The clock is injected for tests.
type Gate struct {
	cfg GateConfig
	log zerolog.Logger
	now func() time.Time

	mu      sync.Mutex
	buckets map[bucketKey]*gateBucket
}

// NewGate creates a gate with the given limits.
func NewGate(cfg GateConfig, log zerolog.Logger) *Gate {
	return &Gate{
		cfg:     cfg,
		log:     log.With().Str("component", "gate").Logger(),
		now:     time.Now,
		buckets: make(map[bucketKey]*gateBucket),
	}
}

// SetClock overrides the gate's time source (tests only).
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

func (g *Gate) limitsFor(action GateAction) (float64, int) {
	switch action {
	case ActionFire:
		return g.cfg.FireRefill, g.cfg.FireBurst
	case ActionReload:
		return g.cfg.ReloadRefill, g.cfg.ReloadBurst
	default:
		return g.cfg.SwitchRefill, g.cfg.SwitchBurst
	}
}

// Consume takes one token from the player's bucket for the action.
// A muted player fails immediately regardless of token count. Repeated
// violations inside the window escalate to a fixed-duration mute.
func (g *Gate) Consume(playerID string, action GateAction) Decision {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	key := bucketKey{player: playerID, action: action}
	b, ok := g.buckets[key]
	if !ok {
		refill, burst := g.limitsFor(action)
		b = &gateBucket{limiter: rate.NewLimiter(rate.Limit(refill), burst)}
		g.buckets[key] = b
	}
	b.lastUsed = now

	if now.Before(b.mutedUntil) {
		return deny(ReasonMuted)
	}

	if b.limiter.AllowN(now, 1) {
		return allow()
	}

	// Violation bookkeeping inside a sliding window.
	if b.windowStart.IsZero() || now.Sub(b.windowStart) > g.cfg.ViolationWindow {
		b.windowStart = now
		b.violations = 0
	}
	b.violations++
	if b.violations >= g.cfg.ViolationThreshold {
		b.mutedUntil = now.Add(g.cfg.MuteDuration)
		b.violations = 0
		b.windowStart = time.Time{}
		g.log.Warn().
			Str("player", playerID).
			Str("action", string(action)).
			Dur("mute", g.cfg.MuteDuration).
			Msg("repeated rate violations, player muted")
		return deny(ReasonMuted)
	}

	return deny(ReasonRateLimitExceeded)
}

// CheckShot runs the stateless legitimacy checks on a fire request:
// claimed direction within the facing cone, target within weapon range
// plus tolerance, client timestamp inside the sanity window. Any failure
// means the shot is silently dropped upstream; nothing here mutates state.
func (g *Gate) CheckShot(origin, facing, target geom.Vec3, weaponRange float64, clientTS, serverTS time.Time) Decision {
	dir := target.Sub(origin)

	maxAngle := g.cfg.MaxDirectionAngleDeg * math.Pi / 180
	if angle := geom.AngleBetween(facing, dir); angle > maxAngle {
		return deny(ReasonInvalidDirection)
	}

	if dir.Length() > weaponRange*g.cfg.RangeTolerance {
		return deny(ReasonOutOfRange)
	}

	drift := serverTS.Sub(clientTS)
	if drift < 0 {
		drift = -drift
	}
	if drift > g.cfg.TimestampWindow {
		return deny(ReasonBadTimestamp)
	}

	return allow()
}

// Forget removes all buckets for a player (disconnect).
func (g *Gate) Forget(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.buckets {
		if key.player == playerID {
			delete(g.buckets, key)
		}
	}
}

// Sweep drops expired mutes and idle buckets. Called from the engine's
// cleanup ticker; holds the lock only for the map walk.
func (g *Gate) Sweep() {
	now := g.now()
	cutoff := now.Add(-g.cfg.BucketTTL)

	g.mu.Lock()
	defer g.mu.Unlock()
	for key, b := range g.buckets {
		if !b.mutedUntil.IsZero() && now.After(b.mutedUntil) {
			b.mutedUntil = time.Time{}
		}
		if b.lastUsed.Before(cutoff) && now.After(b.mutedUntil) {
			delete(g.buckets, key)
		}
	}
}

// BucketCount returns the number of live buckets (monitoring).
func (g *Gate) BucketCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buckets)
}
