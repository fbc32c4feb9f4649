package game

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gunfight/internal/game/geom"
)

// EngineConfig holds the orchestrator's tunables.
type EngineConfig struct {
	MaxPlayers      int
	RespawnDelay    time.Duration
	CleanupInterval time.Duration
	JournalPath     string // empty disables the on-disk journal

	// DefaultLoadout maps slots to weapon ids equipped on join. Unknown
	// ids fall back to the catalog's fallback weapon.
	DefaultLoadout map[WeaponSlot]string

	// SpawnArea bounds random spawn and respawn points.
	SpawnArea geom.AABB
}

// DefaultEngineConfig returns production-safe defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxPlayers:      100,
		RespawnDelay:    5 * time.Second,
		CleanupInterval: 2 * time.Second,
		DefaultLoadout: map[WeaponSlot]string{
			SlotPrimary:   "rifle",
			SlotSecondary: "pistol",
			SlotMelee:     "knife",
		},
		SpawnArea: geom.AABB{
			Min: geom.Vec3{X: -50, Y: 0, Z: -50},
			Max: geom.Vec3{X: 50, Y: 0, Z: 50},
		},
	}
}

// Engine is the combat orchestrator. It owns the player registry and
// sequences every fire request through gate -> ammo -> hit resolution ->
// damage -> events. All mutation of a player's health, shield or ammo
// happens under that player's own lock; the registry lock only guards
// the map itself.
type Engine struct {
	cfg      EngineConfig
	log      zerolog.Logger
	catalog  *Catalog
	gate     *Gate
	world    WorldQuery
	resolver *Resolver
	journal  *EventLog

	sinksMu sync.RWMutex
	sinks   []EventSink

	// rng drives spread sampling and spawn points; guarded because fire
	// requests arrive concurrently. Tests inject their own source.
	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time

	mu      sync.RWMutex
	players map[string]*PlayerCombatState

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewEngine wires the orchestrator over its collaborators.
func NewEngine(cfg EngineConfig, catalog *Catalog, world WorldQuery, gate *Gate, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		log:      log.With().Str("component", "engine").Logger(),
		catalog:  catalog,
		gate:     gate,
		world:    world,
		resolver: NewResolver(world),
		journal:  NewEventLog(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		players:  make(map[string]*PlayerCombatState),
		stopChan: make(chan struct{}),
	}
}

// SetClock overrides the engine's time source (tests only).
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetRandSource replaces the spread RNG (tests only).
func (e *Engine) SetRandSource(src rand.Source) {
	e.rngMu.Lock()
	e.rng = rand.New(src)
	e.rngMu.Unlock()
}

// Start launches the journal writer and the cleanup loop.
func (e *Engine) Start() error {
	if e.running.Load() {
		return nil
	}
	if err := e.journal.Start(e.cfg.JournalPath); err != nil {
		return err
	}
	e.running.Store(true)
	e.wg.Add(1)
	go e.cleanupLoop()
	e.log.Info().Int("maxPlayers", e.cfg.MaxPlayers).Msg("combat engine started")
	return nil
}

// Stop shuts down background work and flushes the journal.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.running.Store(false)
		close(e.stopChan)
		e.wg.Wait()
		e.journal.Stop()
		e.log.Info().Msg("combat engine stopped")
	})
}

// AddSink registers a live event consumer (websocket hub, analytics).
// Sinks receive events fire-and-forget and must not block.
func (e *Engine) AddSink(sink EventSink) {
	e.sinksMu.Lock()
	e.sinks = append(e.sinks, sink)
	e.sinksMu.Unlock()
}

// Journal exposes journal counters for monitoring.
func (e *Engine) Journal() *EventLog { return e.journal }

// Gate exposes the anti-cheat gate for monitoring.
func (e *Engine) Gate() *Gate { return e.gate }

// Catalog exposes the weapon registry.
func (e *Engine) Catalog() *Catalog { return e.catalog }

func (e *Engine) emit(ev Event) {
	e.journal.Emit(ev)
	e.sinksMu.RLock()
	sinks := e.sinks
	e.sinksMu.RUnlock()
	for _, s := range sinks {
		s.Publish(ev)
	}
}

func (e *Engine) player(id string) *PlayerCombatState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.players[id]
}

// ---------------------------------------------------------------------------
// Lifecycle operations
// ---------------------------------------------------------------------------

// JoinResult reports the outcome of a join request.
type JoinResult struct {
	Success bool           `json:"success"`
	Reason  Reason         `json:"reason,omitempty"`
	Player  PlayerSnapshot `json:"player"`
}

// Join creates combat state for a new player and equips the default
// loadout. Joining an id that already exists returns the existing state.
func (e *Engine) Join(playerID, name string) JoinResult {
	now := e.now()

	e.mu.Lock()
	if existing, ok := e.players[playerID]; ok {
		e.mu.Unlock()
		return JoinResult{Success: true, Player: existing.Snapshot()}
	}
	if len(e.players) >= e.cfg.MaxPlayers {
		e.mu.Unlock()
		return JoinResult{Success: false, Reason: ReasonMatchFull}
	}

	p := NewPlayerCombatState(playerID, name, now)
	p.Position = e.spawnPoint()
	e.players[playerID] = p
	e.mu.Unlock()

	p.History.Record(PositionSample{At: now, Pos: p.Position})

	p.Lock()
	for slot, weaponID := range e.cfg.DefaultLoadout {
		def := e.catalog.GetOrFallback(weaponID)
		if def == nil {
			continue
		}
		p.Arsenal.Equip(def, slot)
	}
	p.Unlock()

	e.log.Info().Str("player", playerID).Str("name", name).Msg("player joined")
	e.emit(NewEvent(EventTypeJoin, playerID, JoinPayload{PlayerID: playerID, Name: name}))
	return JoinResult{Success: true, Player: p.Snapshot()}
}

// Leave destroys a player's combat state: weapon instances are dropped
// (invalidating in-flight reloads) and gate buckets reset.
func (e *Engine) Leave(playerID string) Decision {
	e.mu.Lock()
	p, ok := e.players[playerID]
	if ok {
		delete(e.players, playerID)
	}
	e.mu.Unlock()
	if !ok {
		return deny(ReasonUnknownPlayer)
	}

	p.Lock()
	p.Arsenal.Clear()
	p.Unlock()
	e.gate.Forget(playerID)

	e.log.Info().Str("player", playerID).Msg("player left")
	e.emit(NewEvent(EventTypeLeave, playerID, LeavePayload{PlayerID: playerID}))
	return allow()
}

// Move feeds the server's view of a player's position. This is the
// position-provider path backing lag compensation; it is not gated.
func (e *Engine) Move(playerID string, pos, vel, facing geom.Vec3) Decision {
	p := e.player(playerID)
	if p == nil {
		return deny(ReasonUnknownPlayer)
	}
	p.RecordMove(pos, vel, facing, e.now())
	return allow()
}

// ReportLatency folds a measured round-trip time into the player's
// latency estimate used for lag compensation.
func (e *Engine) ReportLatency(playerID string, rttMs float64) Decision {
	p := e.player(playerID)
	if p == nil {
		return deny(ReasonUnknownPlayer)
	}
	p.RecordLatency(rttMs)
	return allow()
}

// ---------------------------------------------------------------------------
// Weapon operations
// ---------------------------------------------------------------------------

// EquipResult reports the outcome of an equip request.
type EquipResult struct {
	Success bool   `json:"success"`
	Reason  Reason `json:"reason,omitempty"`
	Ammo    int    `json:"ammo"`
	Reserve int    `json:"reserve"`
}

// Equip creates a fresh weapon instance in the slot, replacing any prior
// instance and cancelling its in-flight reload.
func (e *Engine) Equip(playerID, weaponID string, slot WeaponSlot) EquipResult {
	p := e.player(playerID)
	if p == nil {
		return EquipResult{Reason: ReasonUnknownPlayer}
	}
	if d := e.gate.Consume(playerID, ActionSwitch); !d.Allowed {
		return EquipResult{Reason: d.Reason}
	}
	def, ok := e.catalog.Get(weaponID)
	if !ok {
		return EquipResult{Reason: ReasonUnknownWeapon}
	}
	if !KnownSlot(slot) {
		return EquipResult{Reason: ReasonUnknownSlot}
	}
	if def.Slot != slot {
		return EquipResult{Reason: ReasonWrongWeapon}
	}

	p.Lock()
	inst := p.Arsenal.Equip(def, slot)
	ammo, reserve := inst.CurrentAmmo, inst.ReserveAmmo
	p.Unlock()

	e.emit(NewEvent(EventTypeEquip, playerID, EquipPayload{PlayerID: playerID, WeaponID: weaponID, Slot: slot}))
	return EquipResult{Success: true, Ammo: ammo, Reserve: reserve}
}

// SwitchSlot changes the player's active slot.
func (e *Engine) SwitchSlot(playerID string, slot WeaponSlot) Decision {
	p := e.player(playerID)
	if p == nil {
		return deny(ReasonUnknownPlayer)
	}
	if d := e.gate.Consume(playerID, ActionSwitch); !d.Allowed {
		return d
	}

	p.Lock()
	d := p.Arsenal.Switch(slot)
	p.Unlock()

	if d.Allowed {
		e.emit(NewEvent(EventTypeSwitch, playerID, SwitchPayload{PlayerID: playerID, Slot: slot}))
	}
	return d
}

// ReloadResult reports the outcome of a reload request. On success the
// reload has started; ammo moves when the scheduled completion fires.
type ReloadResult struct {
	Success bool    `json:"success"`
	Reason  Reason  `json:"reason,omitempty"`
	Ammo    int     `json:"ammo"`
	Reserve int     `json:"reserve"`
	Seconds float64 `json:"seconds,omitempty"`
}

// Reload starts a reload on the active weapon. Completion is a scheduled
// task reconciled against current state: if the weapon was replaced or
// the player left before it fires, it is a no-op.
func (e *Engine) Reload(playerID, weaponID string) ReloadResult {
	p := e.player(playerID)
	if p == nil {
		return ReloadResult{Reason: ReasonUnknownPlayer}
	}
	if d := e.gate.Consume(playerID, ActionReload); !d.Allowed {
		return ReloadResult{Reason: d.Reason}
	}

	p.Lock()
	if !p.Alive {
		p.Unlock()
		return ReloadResult{Reason: ReasonNotAlive}
	}
	weapon := p.Arsenal.Active()
	if weapon == nil || weapon.WeaponID != weaponID {
		p.Unlock()
		return ReloadResult{Reason: ReasonWrongWeapon}
	}
	slot := p.Arsenal.ActiveSlot
	reloadID, d := weapon.BeginReload()
	ammo, reserve := weapon.CurrentAmmo, weapon.ReserveAmmo
	seconds := weapon.Def.ReloadTime
	p.Unlock()

	if !d.Allowed {
		return ReloadResult{Reason: d.Reason, Ammo: ammo, Reserve: reserve}
	}

	time.AfterFunc(time.Duration(seconds*float64(time.Second)), func() {
		e.finishReload(playerID, slot, reloadID)
	})
	return ReloadResult{Success: true, Ammo: ammo, Reserve: reserve, Seconds: seconds}
}

// finishReload completes a scheduled reload. Stale completions (player
// gone, weapon replaced, reload cancelled) fall through silently.
func (e *Engine) finishReload(playerID string, slot WeaponSlot, reloadID uuid.UUID) {
	p := e.player(playerID)
	if p == nil {
		return
	}

	p.Lock()
	weapon := p.Arsenal.Slots[slot]
	if weapon == nil || !weapon.FinishReload(reloadID) {
		p.Unlock()
		return
	}
	payload := ReloadPayload{
		PlayerID: playerID,
		WeaponID: weapon.WeaponID,
		Slot:     slot,
		Ammo:     weapon.CurrentAmmo,
		Reserve:  weapon.ReserveAmmo,
	}
	p.Unlock()

	e.emit(NewEvent(EventTypeReload, playerID, payload))
}

// ---------------------------------------------------------------------------
// Fire
// ---------------------------------------------------------------------------

// FireRequest is one inbound fire RPC, entirely untrusted.
type FireRequest struct {
	PlayerID        string    `json:"playerId"`
	WeaponID        string    `json:"weaponId"`
	TargetPosition  geom.Vec3 `json:"targetPosition"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
}

// FireResult is the structured outcome of a fire request. Success means
// the shot was fired, hit or not; TargetID/Damage cover the primary
// (highest-damage) target when pellets spread across several.
type FireResult struct {
	Success    bool        `json:"success"`
	Reason     Reason      `json:"reason,omitempty"`
	TargetID   string      `json:"hitTargetId,omitempty"`
	Damage     int         `json:"damage,omitempty"`
	Headshot   bool        `json:"headshot,omitempty"`
	Eliminated bool        `json:"eliminated,omitempty"`
	Hits       []HitResult `json:"hits,omitempty"`
}

func fireFail(r Reason) FireResult { return FireResult{Success: false, Reason: r} }

// Fire sequences one shot: gate -> legitimacy checks -> weapon state
// machine -> lag-compensated hit resolution -> damage -> events. Policy
// rejections return a reason and mutate nothing.
func (e *Engine) Fire(req FireRequest) FireResult {
	now := e.now()

	shooter := e.player(req.PlayerID)
	if shooter == nil {
		return fireFail(ReasonUnknownPlayer)
	}
	if d := e.gate.Consume(req.PlayerID, ActionFire); !d.Allowed {
		return fireFail(d.Reason)
	}
	def, ok := e.catalog.Get(req.WeaponID)
	if !ok {
		return fireFail(ReasonUnknownWeapon)
	}

	shooter.Lock()
	if !shooter.Alive {
		shooter.Unlock()
		return fireFail(ReasonNotAlive)
	}
	weapon := shooter.Arsenal.Active()
	if weapon == nil || weapon.WeaponID != req.WeaponID {
		shooter.Unlock()
		return fireFail(ReasonWrongWeapon)
	}
	origin := shooter.EyePosition()
	facing := shooter.Facing
	latency := time.Duration(shooter.LatencyMs * float64(time.Millisecond))
	shooter.Unlock()

	// Stateless legitimacy checks. A failure silently drops the shot:
	// no ammo spent, debug log only.
	if d := e.gate.CheckShot(origin, facing, req.TargetPosition, def.Range, req.ClientTimestamp, now); !d.Allowed {
		e.log.Debug().
			Str("player", req.PlayerID).
			Str("weapon", req.WeaponID).
			Str("reason", string(d.Reason)).
			Msg("shot dropped by legitimacy check")
		return fireFail(d.Reason)
	}

	shooter.Lock()
	d := weapon.TryFire(now)
	ammoLeft := weapon.CurrentAmmo
	shooter.Unlock()
	if !d.Allowed {
		return fireFail(d.Reason)
	}

	// The round is spent: the fire event happens whether or not
	// anything is hit.
	e.emit(NewEvent(EventTypeFire, req.PlayerID, FirePayload{
		ShooterID: req.PlayerID,
		WeaponID:  req.WeaponID,
		Pellets:   def.Pellets,
		AmmoLeft:  ammoLeft,
	}))

	targets := e.targetSnapshots(req.PlayerID, CompensatedAt(now, latency))
	baseDir := req.TargetPosition.Sub(origin)

	e.rngMu.Lock()
	hits := e.resolver.Resolve(def, origin, baseDir, targets, e.rng)
	e.rngMu.Unlock()

	if len(hits) == 0 {
		e.emit(NewEvent(EventTypeMiss, req.PlayerID, MissPayload{ShooterID: req.PlayerID, WeaponID: req.WeaponID}))
		return FireResult{Success: true}
	}

	res := FireResult{Success: true, Hits: hits}
	for i, h := range hits {
		target := e.player(h.TargetID)
		if target == nil {
			continue // left between snapshot and application
		}

		_, _, killed := target.ApplyDamage(h.Damage, now)
		snap := target.Snapshot()

		if i == 0 {
			res.TargetID = h.TargetID
			res.Damage = h.Damage
			res.Headshot = h.Headshot
		}

		e.emit(NewEvent(EventTypeHit, req.PlayerID, HitPayload{
			ShooterID:    req.PlayerID,
			TargetID:     h.TargetID,
			WeaponID:     req.WeaponID,
			Damage:       h.Damage,
			Headshot:     h.Headshot,
			Penetrations: h.Penetrations,
			Distance:     h.Distance,
			Position:     h.Position,
			TargetHealth: snap.Health,
			TargetShield: snap.Shield,
		}))

		if killed {
			shooter.AddKill()
			if i == 0 {
				res.Eliminated = true
			}
			kills := shooter.Snapshot().Kills
			e.log.Info().
				Str("killer", req.PlayerID).
				Str("victim", h.TargetID).
				Str("weapon", req.WeaponID).
				Bool("headshot", h.Headshot).
				Msg("elimination")
			e.emit(NewEvent(EventTypeElimination, req.PlayerID, EliminationPayload{
				KillerID:     req.PlayerID,
				VictimID:     h.TargetID,
				WeaponID:     req.WeaponID,
				Headshot:     h.Headshot,
				KillerKills:  kills,
				VictimDeaths: snap.Deaths,
			}))
			e.scheduleRespawn(h.TargetID)
		}
	}
	return res
}

// targetSnapshots freezes every other live player at the shooter's
// compensated time. Histories are snapshot-then-read; live state is
// never touched during resolution.
func (e *Engine) targetSnapshots(shooterID string, at time.Time) []TargetSnapshot {
	e.mu.RLock()
	candidates := make([]*PlayerCombatState, 0, len(e.players))
	for id, p := range e.players {
		if id == shooterID {
			continue
		}
		candidates = append(candidates, p)
	}
	e.mu.RUnlock()

	out := make([]TargetSnapshot, 0, len(candidates))
	for _, p := range candidates {
		snap := p.Snapshot()
		if !snap.Alive {
			continue
		}
		pos := snap.Position
		if s, ok := p.History.At(at); ok {
			pos = s.Pos
		}
		out = append(out, TargetSnapshot{ID: snap.ID, Position: pos, Armor: snap.Armor})
	}
	return out
}

func (e *Engine) scheduleRespawn(playerID string) {
	time.AfterFunc(e.cfg.RespawnDelay, func() {
		p := e.player(playerID)
		if p == nil {
			return
		}
		pos := e.spawnPoint()
		p.Respawn(pos, e.now())
		e.emit(NewEvent(EventTypeRespawn, playerID, RespawnPayload{PlayerID: playerID, Position: pos}))
	})
}

func (e *Engine) spawnPoint() geom.Vec3 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	a := e.cfg.SpawnArea
	return geom.Vec3{
		X: a.Min.X + e.rng.Float64()*(a.Max.X-a.Min.X),
		Y: a.Min.Y + e.rng.Float64()*(a.Max.Y-a.Min.Y),
		Z: a.Min.Z + e.rng.Float64()*(a.Max.Z-a.Min.Z),
	}
}

// ---------------------------------------------------------------------------
// Snapshots & maintenance
// ---------------------------------------------------------------------------

// StateSnapshot is the read-only view of the whole match.
type StateSnapshot struct {
	At          time.Time        `json:"at"`
	PlayerCount int              `json:"playerCount"`
	AliveCount  int              `json:"aliveCount"`
	Players     []PlayerSnapshot `json:"players"`
}

// Snapshot copies the current match state, players ordered by id.
func (e *Engine) Snapshot() StateSnapshot {
	e.mu.RLock()
	players := make([]*PlayerCombatState, 0, len(e.players))
	for _, p := range e.players {
		players = append(players, p)
	}
	e.mu.RUnlock()

	snap := StateSnapshot{At: e.now(), PlayerCount: len(players)}
	snap.Players = make([]PlayerSnapshot, 0, len(players))
	for _, p := range players {
		ps := p.Snapshot()
		if ps.Alive {
			snap.AliveCount++
		}
		snap.Players = append(snap.Players, ps)
	}
	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i].ID < snap.Players[j].ID })
	return snap
}

// Leaderboard ranks the current players.
func (e *Engine) Leaderboard() []LeaderboardEntry {
	return BuildLeaderboard(e.Snapshot().Players)
}

// PlayerCount returns the number of registered players.
func (e *Engine) PlayerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.players)
}

// cleanupLoop expires mutes and stale gate buckets on a fixed interval,
// independent of request processing. It holds no long-lived locks.
func (e *Engine) cleanupLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.gate.Sweep()
		}
	}
}
