package game

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gunfight/internal/game/geom"
)

// captureSink records every emitted event for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *captureSink) count(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func laserDef() WeaponDefinition {
	def := validTestWeapon()
	def.ID = "laser"
	def.Name = "Laser"
	def.Damage = 200 // one-shot through full shield and health
	def.HeadDamage = 400
	def.FireRate = 100
	def.ReloadTime = 0.05
	def.Accuracy = 1.0 // no spread: shots land where aimed
	return def
}

func sidearmDef() WeaponDefinition {
	def := validTestWeapon()
	def.ID = "sidearm"
	def.Name = "Sidearm"
	def.Slot = SlotSecondary
	def.Damage = 10
	def.HeadDamage = 20
	def.Accuracy = 1.0
	return def
}

type engineFixture struct {
	engine *Engine
	clock  *fakeClock
	sink   *captureSink
}

func newTestEngine(t *testing.T, mutate func(*EngineConfig)) *engineFixture {
	t.Helper()

	clock := newFakeClock()
	gate := NewGate(DefaultGateConfig(), zerolog.Nop())
	gate.SetClock(clock.Now)

	cfg := DefaultEngineConfig()
	cfg.RespawnDelay = time.Minute // keep respawns out of short tests
	cfg.DefaultLoadout = map[WeaponSlot]string{
		SlotPrimary:   "laser",
		SlotSecondary: "sidearm",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	catalog := newTestCatalog(t, laserDef(), sidearmDef())
	eng := NewEngine(cfg, catalog, NewStaticWorld(), gate, zerolog.Nop())
	eng.SetClock(clock.Now)
	eng.SetRandSource(rand.NewSource(1))

	sink := &captureSink{}
	eng.AddSink(sink)
	return &engineFixture{engine: eng, clock: clock, sink: sink}
}

// place joins a player and moves them to a known position facing +Z.
// The clock advances between join and move so the moved position is the
// newest history sample, superseding the random spawn point.
func (f *engineFixture) place(t *testing.T, id string, pos geom.Vec3) {
	t.Helper()
	if r := f.engine.Join(id, id); !r.Success {
		t.Fatalf("join %s failed: %s", id, r.Reason)
	}
	f.clock.Advance(10 * time.Millisecond)
	if d := f.engine.Move(id, pos, geom.Vec3{}, geom.Vec3{Z: 1}); !d.Allowed {
		t.Fatalf("move %s failed: %s", id, d.Reason)
	}
}

func (f *engineFixture) fire(shooterID string, target geom.Vec3) FireResult {
	return f.engine.Fire(FireRequest{
		PlayerID:        shooterID,
		WeaponID:        "laser",
		TargetPosition:  target,
		ClientTimestamp: f.clock.Now(),
	})
}

// aimAtBody is the body-sphere center of a target standing at feet.
func aimAtBody(feet geom.Vec3) geom.Vec3 {
	return feet.Add(geom.Vec3{Y: BodyCenterHeight})
}

// TestJoinDefaultLoadout tests spawn state and the equipped slots
func TestJoinDefaultLoadout(t *testing.T) {
	f := newTestEngine(t, nil)

	r := f.engine.Join("p1", "Alice")
	if !r.Success {
		t.Fatalf("join failed: %s", r.Reason)
	}
	if r.Player.Health != DefaultMaxHealth || r.Player.Shield != DefaultMaxShield {
		t.Errorf("unexpected spawn pools: %d/%d", r.Player.Health, r.Player.Shield)
	}
	if r.Player.Weapon != "laser" || r.Player.ActiveSlot != SlotPrimary {
		t.Errorf("expected active laser in primary, got %s in %s", r.Player.Weapon, r.Player.ActiveSlot)
	}
	if r.Player.Ammo != 30 {
		t.Errorf("expected full magazine, got %d", r.Player.Ammo)
	}
	if f.sink.count(EventTypeJoin) != 1 {
		t.Error("expected one join event")
	}
}

// TestJoinIdempotentAndMatchFull tests duplicate ids and the player cap
func TestJoinIdempotentAndMatchFull(t *testing.T) {
	f := newTestEngine(t, func(cfg *EngineConfig) { cfg.MaxPlayers = 1 })

	f.engine.Join("p1", "Alice")
	if r := f.engine.Join("p1", "Alice"); !r.Success {
		t.Errorf("rejoining an existing id should succeed, got %s", r.Reason)
	}
	if f.engine.PlayerCount() != 1 {
		t.Errorf("duplicate join should not add a player: %d", f.engine.PlayerCount())
	}

	if r := f.engine.Join("p2", "Bob"); r.Success || r.Reason != ReasonMatchFull {
		t.Errorf("expected MatchFull, got success=%v reason=%s", r.Success, r.Reason)
	}
}

// TestFireEliminatesTarget drives the full pipeline: gate, ammo, hit
// resolution, shield-then-health damage, kill credit and events
func TestFireEliminatesTarget(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "shooter", geom.Vec3{})
	f.place(t, "victim", geom.Vec3{Z: 10})

	res := f.fire("shooter", aimAtBody(geom.Vec3{Z: 10}))
	if !res.Success {
		t.Fatalf("fire failed: %s", res.Reason)
	}
	if res.TargetID != "victim" || res.Damage != 200 {
		t.Errorf("unexpected primary hit: %+v", res)
	}
	if !res.Eliminated {
		t.Error("200 damage through 50 shield + 100 health should eliminate")
	}

	snap := f.engine.Snapshot()
	for _, p := range snap.Players {
		switch p.ID {
		case "shooter":
			if p.Kills != 1 {
				t.Errorf("shooter kills: expected 1, got %d", p.Kills)
			}
			if p.Ammo != 29 {
				t.Errorf("shooter ammo: expected 29, got %d", p.Ammo)
			}
		case "victim":
			if p.Alive || p.Health != 0 || p.Deaths != 1 {
				t.Errorf("victim state: %+v", p)
			}
		}
	}
	if snap.AliveCount != 1 {
		t.Errorf("expected 1 alive, got %d", snap.AliveCount)
	}

	if got := f.sink.count(EventTypeFire); got != 1 {
		t.Errorf("fire events: expected 1, got %d", got)
	}
	if got := f.sink.count(EventTypeHit); got != 1 {
		t.Errorf("hit events: expected 1, got %d", got)
	}
	if got := f.sink.count(EventTypeElimination); got != 1 {
		t.Errorf("elimination events: expected exactly 1, got %d", got)
	}
	if got := f.sink.count(EventTypeMiss); got != 0 {
		t.Errorf("miss events: expected 0, got %d", got)
	}
}

// TestFireMissSpendsRoundAndEmitsMiss tests the no-target case
func TestFireMissSpendsRoundAndEmitsMiss(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "shooter", geom.Vec3{})

	res := f.fire("shooter", geom.Vec3{Z: 50})
	if !res.Success {
		t.Fatalf("a clean miss is still a successful shot, got %s", res.Reason)
	}
	if res.TargetID != "" || res.Damage != 0 {
		t.Errorf("miss should carry no hit data: %+v", res)
	}

	if got := f.sink.count(EventTypeFire); got != 1 {
		t.Errorf("fire events: expected 1, got %d", got)
	}
	if got := f.sink.count(EventTypeMiss); got != 1 {
		t.Errorf("miss events: expected 1, got %d", got)
	}
	if snap := f.engine.Snapshot(); snap.Players[0].Ammo != 29 {
		t.Errorf("miss must still spend the round: %d", snap.Players[0].Ammo)
	}
}

// TestFireRejections tests the policy paths that mutate nothing
func TestFireRejections(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "shooter", geom.Vec3{})

	t.Run("unknown player", func(t *testing.T) {
		res := f.engine.Fire(FireRequest{PlayerID: "ghost", WeaponID: "laser", ClientTimestamp: f.clock.Now()})
		if res.Reason != ReasonUnknownPlayer {
			t.Errorf("expected UnknownPlayer, got %s", res.Reason)
		}
	})

	t.Run("unknown weapon", func(t *testing.T) {
		res := f.engine.Fire(FireRequest{PlayerID: "shooter", WeaponID: "bfg", ClientTimestamp: f.clock.Now()})
		if res.Reason != ReasonUnknownWeapon {
			t.Errorf("expected UnknownWeapon, got %s", res.Reason)
		}
	})

	t.Run("not the active weapon", func(t *testing.T) {
		res := f.engine.Fire(FireRequest{
			PlayerID:        "shooter",
			WeaponID:        "sidearm", // equipped but holstered
			TargetPosition:  geom.Vec3{Z: 10},
			ClientTimestamp: f.clock.Now(),
		})
		if res.Reason != ReasonWrongWeapon {
			t.Errorf("expected WrongWeapon, got %s", res.Reason)
		}
	})

	t.Run("out of range drops silently", func(t *testing.T) {
		res := f.fire("shooter", geom.Vec3{Z: 500}) // range 100, tolerance 1.1x
		if res.Success || res.Reason != ReasonOutOfRange {
			t.Fatalf("expected OutOfRange, got %+v", res)
		}
		if snap := f.engine.Snapshot(); snap.Players[0].Ammo != 30 {
			t.Errorf("dropped shot must not spend ammo: %d", snap.Players[0].Ammo)
		}
	})

	t.Run("no ammo", func(t *testing.T) {
		p := f.engine.player("shooter")
		p.Lock()
		p.Arsenal.Active().CurrentAmmo = 0
		p.Unlock()

		res := f.fire("shooter", geom.Vec3{Z: 10})
		if res.Reason != ReasonNoAmmo {
			t.Errorf("expected NoAmmo, got %s", res.Reason)
		}
	})
}

// TestFireWhileDead tests that an eliminated player cannot shoot
func TestFireWhileDead(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "shooter", geom.Vec3{})
	f.place(t, "victim", geom.Vec3{Z: 10})

	f.fire("shooter", aimAtBody(geom.Vec3{Z: 10}))
	f.clock.Advance(time.Second)

	res := f.fire("victim", aimAtBody(geom.Vec3{}))
	if res.Reason != ReasonNotAlive {
		t.Errorf("expected NotAlive, got %+v", res)
	}
}

// TestLagCompensatedFire tests that a shot aimed at where the target was
// (one network round-trip ago) still lands
func TestLagCompensatedFire(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "shooter", geom.Vec3{})
	f.place(t, "victim", geom.Vec3{Z: 10})

	f.engine.ReportLatency("shooter", 150)

	// The victim strafes hard between the shooter's frame and the
	// server processing the shot: their current position is 5 units
	// wide of where the shooter saw them.
	f.clock.Advance(150 * time.Millisecond)
	f.engine.Move("victim", geom.Vec3{X: 5, Z: 10}, geom.Vec3{}, geom.Vec3{Z: 1})

	// Aim at the rewound position, not the current one.
	res := f.fire("shooter", aimAtBody(geom.Vec3{Z: 10}))
	if !res.Success {
		t.Fatalf("fire failed: %s", res.Reason)
	}
	if res.TargetID != "victim" {
		t.Errorf("lag-compensated shot should land, got %+v", res)
	}
}

// TestReloadRoundTrip tests the scheduled completion path end to end
func TestReloadRoundTrip(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "p1", geom.Vec3{})

	p := f.engine.player("p1")
	p.Lock()
	p.Arsenal.Active().CurrentAmmo = 10
	p.Unlock()

	res := f.engine.Reload("p1", "laser")
	if !res.Success {
		t.Fatalf("reload failed: %s", res.Reason)
	}
	if res.Seconds != 0.05 {
		t.Errorf("expected reload time 0.05, got %g", res.Seconds)
	}

	time.Sleep(150 * time.Millisecond) // completion is wall-clock scheduled

	snap := f.engine.Snapshot()
	if snap.Players[0].Ammo != 30 || snap.Players[0].Reserve != 40 {
		t.Errorf("expected 30/40 after completion, got %d/%d",
			snap.Players[0].Ammo, snap.Players[0].Reserve)
	}
	if f.sink.count(EventTypeReload) != 1 {
		t.Error("expected one reload event")
	}
}

// TestLeaveInvalidatesReload tests the scheduled task reconciling
// against a departed player
func TestLeaveInvalidatesReload(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "p1", geom.Vec3{})

	p := f.engine.player("p1")
	p.Lock()
	p.Arsenal.Active().CurrentAmmo = 10
	p.Unlock()

	if res := f.engine.Reload("p1", "laser"); !res.Success {
		t.Fatalf("reload failed: %s", res.Reason)
	}
	if d := f.engine.Leave("p1"); !d.Allowed {
		t.Fatalf("leave failed: %s", d.Reason)
	}

	time.Sleep(150 * time.Millisecond)
	if f.sink.count(EventTypeReload) != 0 {
		t.Error("reload against a departed player should be a silent no-op")
	}
	if f.engine.PlayerCount() != 0 {
		t.Errorf("expected empty match, got %d", f.engine.PlayerCount())
	}
}

// TestEquipAndSwitch tests slot semantics at the orchestrator level
func TestEquipAndSwitch(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "p1", geom.Vec3{})

	// A primary weapon cannot go into the secondary slot.
	if r := f.engine.Equip("p1", "laser", SlotSecondary); r.Reason != ReasonWrongWeapon {
		t.Errorf("expected WrongWeapon, got %+v", r)
	}
	if r := f.engine.Equip("p1", "nope", SlotPrimary); r.Reason != ReasonUnknownWeapon {
		t.Errorf("expected UnknownWeapon, got %+v", r)
	}

	if d := f.engine.SwitchSlot("p1", SlotSecondary); !d.Allowed {
		t.Fatalf("switch failed: %s", d.Reason)
	}
	if snap := f.engine.Snapshot(); snap.Players[0].Weapon != "sidearm" {
		t.Errorf("expected sidearm active, got %s", snap.Players[0].Weapon)
	}

	// Nothing was equipped into melee.
	if d := f.engine.SwitchSlot("p1", SlotMelee); d.Reason != ReasonUnknownSlot {
		t.Errorf("expected UnknownSlot, got %s", d.Reason)
	}
}

// TestLeaderboardAfterElimination tests ranking through the engine
func TestLeaderboardAfterElimination(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "shooter", geom.Vec3{})
	f.place(t, "victim", geom.Vec3{Z: 10})

	f.fire("shooter", aimAtBody(geom.Vec3{Z: 10}))

	lb := f.engine.Leaderboard()
	if len(lb) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lb))
	}
	if lb[0].PlayerID != "shooter" || lb[0].Rank != 1 || lb[0].Kills != 1 {
		t.Errorf("unexpected leader: %+v", lb[0])
	}
	if lb[1].PlayerID != "victim" || lb[1].Deaths != 1 {
		t.Errorf("unexpected runner-up: %+v", lb[1])
	}
	if lb[0].Score <= lb[1].Score {
		t.Errorf("scores not ordered: %d vs %d", lb[0].Score, lb[1].Score)
	}
}

// TestBuildLeaderboard tests the scoring and tie-break order directly
func TestBuildLeaderboard(t *testing.T) {
	players := []PlayerSnapshot{
		{ID: "c", Kills: 2, Deaths: 0},
		{ID: "a", Kills: 5, Deaths: 10},
		{ID: "b", Kills: 5, Deaths: 2},
		{ID: "d", Kills: 2, Deaths: 0}, // ties with c on everything: id order
	}

	lb := BuildLeaderboard(players)
	want := []string{"b", "a", "c", "d"}
	for i, id := range want {
		if lb[i].PlayerID != id {
			t.Errorf("rank %d: expected %s, got %s", i+1, id, lb[i].PlayerID)
		}
		if lb[i].Rank != i+1 {
			t.Errorf("rank field: expected %d, got %d", i+1, lb[i].Rank)
		}
	}
}

// TestFireRateAcrossRequests tests the weapon cadence check surfacing
// through the fire pipeline
func TestFireRateAcrossRequests(t *testing.T) {
	f := newTestEngine(t, nil)
	f.place(t, "shooter", geom.Vec3{})

	if res := f.fire("shooter", geom.Vec3{Z: 50}); !res.Success {
		t.Fatalf("first shot failed: %s", res.Reason)
	}
	// FireRate 100 means at least ~9.5ms between shots.
	if res := f.fire("shooter", geom.Vec3{Z: 50}); res.Reason != ReasonFiringTooFast {
		t.Errorf("expected FiringTooFast, got %+v", res)
	}
	f.clock.Advance(20 * time.Millisecond)
	if res := f.fire("shooter", geom.Vec3{Z: 50}); !res.Success {
		t.Errorf("shot after cadence gap failed: %s", res.Reason)
	}
}
