package game

import (
	"sync"
	"time"

	"gunfight/internal/game/geom"
)

const (
	DefaultMaxHealth = 100
	DefaultMaxShield = 50

	// latencyEWMAAlpha weights new RTT samples in the running estimate.
	latencyEWMAAlpha = 0.2
)

// PlayerCombatState is everything the combat core tracks about one
// player. It is created on join and destroyed on leave. Health and
// shield are mutated only by the orchestrator, ammo only by the weapon
// state machine; both happen under mu so concurrent shooters hitting the
// same target serialize cleanly.
type PlayerCombatState struct {
	ID   string
	Name string

	mu        sync.Mutex
	Health    int
	MaxHealth int
	Shield    int
	MaxShield int
	Armor     float64 // 0..100, linear reduction in the damage formula
	Kills     int
	Deaths    int
	Alive     bool

	Arsenal Arsenal

	// Server view of movement. Position/Facing are the latest update;
	// History backs lag compensation for other shooters.
	Position geom.Vec3
	Velocity geom.Vec3
	Facing   geom.Vec3
	History  PositionHistory

	LatencyMs    float64 // EWMA of reported round-trip times
	LastDamageAt time.Time
	JoinedAt     time.Time
}

// NewPlayerCombatState creates a fresh, alive combat state.
func NewPlayerCombatState(id, name string, now time.Time) *PlayerCombatState {
	return &PlayerCombatState{
		ID:        id,
		Name:      name,
		Health:    DefaultMaxHealth,
		MaxHealth: DefaultMaxHealth,
		Shield:    DefaultMaxShield,
		MaxShield: DefaultMaxShield,
		Alive:     true,
		Arsenal:   NewArsenal(),
		Facing:    geom.Vec3{X: 1},
		JoinedAt:  now,
	}
}

// Lock acquires the player's state lock. Callers mutate ammo, health or
// shield only while holding it.
func (p *PlayerCombatState) Lock() { p.mu.Lock() }

// Unlock releases the player's state lock.
func (p *PlayerCombatState) Unlock() { p.mu.Unlock() }

// EyePosition is the server-trusted shot origin: never client-supplied.
func (p *PlayerCombatState) EyePosition() geom.Vec3 {
	return p.Position.Add(geom.Vec3{Y: EyeHeight})
}

// RecordMove updates the server view of the player's movement and
// appends a history sample for lag compensation.
func (p *PlayerCombatState) RecordMove(pos, vel, facing geom.Vec3, now time.Time) {
	p.mu.Lock()
	p.Position = pos
	p.Velocity = vel
	if facing.Length() > 0 {
		p.Facing = facing.Normalize()
	}
	p.mu.Unlock()
	p.History.Record(PositionSample{At: now, Pos: pos, Vel: vel})
}

// RecordLatency folds a round-trip sample into the EWMA estimate.
func (p *PlayerCombatState) RecordLatency(rttMs float64) {
	p.mu.Lock()
	if p.LatencyMs == 0 {
		p.LatencyMs = rttMs
	} else {
		p.LatencyMs = p.LatencyMs*(1-latencyEWMAAlpha) + rttMs*latencyEWMAAlpha
	}
	p.mu.Unlock()
}

// ApplyDamage depletes shield first, then health, under the player's
// lock. It returns the portion absorbed by each pool and whether this
// call was the one that dropped the player: the Alive flag guarantees at
// most one caller ever sees killed=true per death, no matter how many
// shooters land hits in the same instant.
func (p *PlayerCombatState) ApplyDamage(amount int, now time.Time) (shieldLoss, healthLoss int, killed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Alive || amount <= 0 {
		return 0, 0, false
	}

	remaining := amount
	if p.Shield > 0 {
		shieldLoss = remaining
		if shieldLoss > p.Shield {
			shieldLoss = p.Shield
		}
		p.Shield -= shieldLoss
		remaining -= shieldLoss
	}
	if remaining > 0 {
		healthLoss = remaining
		if healthLoss > p.Health {
			healthLoss = p.Health
		}
		p.Health -= healthLoss
	}
	p.LastDamageAt = now

	if p.Health <= 0 {
		p.Health = 0
		p.Alive = false
		p.Deaths++
		killed = true
	}
	return shieldLoss, healthLoss, killed
}

// AddKill credits an elimination to this player.
func (p *PlayerCombatState) AddKill() {
	p.mu.Lock()
	p.Kills++
	p.mu.Unlock()
}

// Respawn restores the player at the given position.
func (p *PlayerCombatState) Respawn(pos geom.Vec3, now time.Time) {
	p.mu.Lock()
	p.Health = p.MaxHealth
	p.Shield = p.MaxShield
	p.Alive = true
	p.Position = pos
	p.Velocity = geom.Vec3{}
	p.mu.Unlock()
	p.History.Record(PositionSample{At: now, Pos: pos})
}

// PlayerSnapshot is the read-only JSON view of a player's combat state.
type PlayerSnapshot struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Health     int        `json:"health"`
	MaxHealth  int        `json:"maxHealth"`
	Shield     int        `json:"shield"`
	MaxShield  int        `json:"maxShield"`
	Armor      float64    `json:"armor"`
	Kills      int        `json:"kills"`
	Deaths     int        `json:"deaths"`
	Alive      bool       `json:"alive"`
	Position   geom.Vec3  `json:"position"`
	ActiveSlot WeaponSlot `json:"activeSlot"`
	Weapon     string     `json:"weapon,omitempty"`
	Ammo       int        `json:"ammo"`
	Reserve    int        `json:"reserve"`
	Condition  float64    `json:"condition"`
	LatencyMs  float64    `json:"latencyMs"`
}

// Snapshot copies the player's state for readers outside the lock.
func (p *PlayerCombatState) Snapshot() PlayerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PlayerSnapshot{
		ID:         p.ID,
		Name:       p.Name,
		Health:     p.Health,
		MaxHealth:  p.MaxHealth,
		Shield:     p.Shield,
		MaxShield:  p.MaxShield,
		Armor:      p.Armor,
		Kills:      p.Kills,
		Deaths:     p.Deaths,
		Alive:      p.Alive,
		Position:   p.Position,
		ActiveSlot: p.Arsenal.ActiveSlot,
		LatencyMs:  p.LatencyMs,
	}
	if w := p.Arsenal.Active(); w != nil {
		s.Weapon = w.WeaponID
		s.Ammo = w.CurrentAmmo
		s.Reserve = w.ReserveAmmo
		s.Condition = w.Condition
	}
	return s
}
