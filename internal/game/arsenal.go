package game

import (
	"time"

	"github.com/google/uuid"
)

const (
	// FireIntervalTolerance gives 5% slack on the per-weapon cadence so
	// legitimate clients firing at exactly the nominal rate are not
	// rejected for network jitter. This check is deliberately separate
	// from the gate's token bucket: the bucket caps aggregate throughput,
	// this enforces the weapon's own cadence.
	FireIntervalTolerance = 0.95

	// ConditionWearPerShot is how much a weapon degrades each shot.
	ConditionWearPerShot = 0.0005
)

// WeaponInstance is one equipped weapon: the mutable state layered over
// an immutable definition. Exactly one owner (player, slot) at a time;
// all mutation happens under the owning player's lock.
type WeaponInstance struct {
	InstanceID  uuid.UUID         `json:"instanceId"`
	Def         *WeaponDefinition `json:"-"`
	WeaponID    string            `json:"weaponId"`
	CurrentAmmo int               `json:"currentAmmo"`
	ReserveAmmo int               `json:"reserveAmmo"`
	Condition   float64           `json:"condition"`
	Reloading   bool              `json:"reloading"`
	ReloadID    uuid.UUID         `json:"-"` // identifies the in-flight reload task
	LastFiredAt time.Time         `json:"-"`
}

// NewWeaponInstance creates a freshly equipped instance: full magazine,
// the rest of MaxAmmo in reserve, pristine condition.
func NewWeaponInstance(def *WeaponDefinition) *WeaponInstance {
	reserve := def.MaxAmmo - def.MagazineSize
	if def.Infinite() || reserve < 0 {
		reserve = 0
	}
	return &WeaponInstance{
		InstanceID:  uuid.New(),
		Def:         def,
		WeaponID:    def.ID,
		CurrentAmmo: def.MagazineSize,
		ReserveAmmo: reserve,
		Condition:   1.0,
	}
}

// minFireInterval is the server-enforced gap between shots.
func (w *WeaponInstance) minFireInterval() time.Duration {
	return time.Duration(FireIntervalTolerance / w.Def.FireRate * float64(time.Second))
}

// TryFire is the instantaneous Idle->Idle transition: it validates,
// consumes a round, wears the weapon, and stamps LastFiredAt. On
// rejection nothing changes.
func (w *WeaponInstance) TryFire(now time.Time) Decision {
	if w.Reloading {
		return deny(ReasonReloading)
	}
	if w.CurrentAmmo <= 0 {
		return deny(ReasonNoAmmo)
	}
	if !w.LastFiredAt.IsZero() && now.Sub(w.LastFiredAt) < w.minFireInterval() {
		return deny(ReasonFiringTooFast)
	}

	if !w.Def.Infinite() {
		w.CurrentAmmo--
	}
	w.LastFiredAt = now
	w.Condition -= ConditionWearPerShot
	if w.Condition < 0 {
		w.Condition = 0
	}
	return allow()
}

// BeginReload moves the instance from Idle to Reloading and returns the
// id the scheduled completion must present.
func (w *WeaponInstance) BeginReload() (uuid.UUID, Decision) {
	if w.Reloading {
		return uuid.Nil, deny(ReasonReloading)
	}
	if w.CurrentAmmo >= w.Def.MagazineSize {
		return uuid.Nil, deny(ReasonMagazineFull)
	}
	if w.ReserveAmmo <= 0 {
		return uuid.Nil, deny(ReasonNoReserveAmmo)
	}

	w.Reloading = true
	w.ReloadID = uuid.New()
	return w.ReloadID, allow()
}

// FinishReload completes the reload identified by reloadID, moving
// min(needed, reserve) rounds into the magazine. A completion carrying a
// stale id (weapon re-equipped, reload cancelled) is a no-op.
func (w *WeaponInstance) FinishReload(reloadID uuid.UUID) bool {
	if !w.Reloading || w.ReloadID != reloadID {
		return false
	}
	needed := w.Def.MagazineSize - w.CurrentAmmo
	moved := needed
	if w.ReserveAmmo < moved {
		moved = w.ReserveAmmo
	}
	w.CurrentAmmo += moved
	w.ReserveAmmo -= moved
	w.Reloading = false
	w.ReloadID = uuid.Nil
	return true
}

// CancelReload invalidates any in-flight reload without moving ammo.
func (w *WeaponInstance) CancelReload() {
	w.Reloading = false
	w.ReloadID = uuid.Nil
}

// Arsenal is a player's equipped weapons, one instance per slot.
type Arsenal struct {
	Slots      map[WeaponSlot]*WeaponInstance `json:"slots"`
	ActiveSlot WeaponSlot                     `json:"activeSlot"`
}

// NewArsenal returns an empty arsenal with the primary slot active.
func NewArsenal() Arsenal {
	return Arsenal{
		Slots:      make(map[WeaponSlot]*WeaponInstance),
		ActiveSlot: SlotPrimary,
	}
}

// Active returns the instance in the active slot, nil when empty.
func (a *Arsenal) Active() *WeaponInstance {
	return a.Slots[a.ActiveSlot]
}

// Equip replaces the slot's instance with a fresh one for def. Any
// in-flight reload on the replaced instance is cancelled. Returns the
// new instance.
func (a *Arsenal) Equip(def *WeaponDefinition, slot WeaponSlot) *WeaponInstance {
	if prev := a.Slots[slot]; prev != nil {
		prev.CancelReload()
	}
	inst := NewWeaponInstance(def)
	a.Slots[slot] = inst
	return inst
}

// Switch changes the active slot. The slot must hold a weapon.
func (a *Arsenal) Switch(slot WeaponSlot) Decision {
	if !KnownSlot(slot) || a.Slots[slot] == nil {
		return deny(ReasonUnknownSlot)
	}
	a.ActiveSlot = slot
	return allow()
}

// Drop destroys the slot's instance, invalidating its reload.
func (a *Arsenal) Drop(slot WeaponSlot) {
	if inst := a.Slots[slot]; inst != nil {
		inst.CancelReload()
		delete(a.Slots, slot)
	}
}

// Clear destroys every instance (disconnect).
func (a *Arsenal) Clear() {
	for slot, inst := range a.Slots {
		inst.CancelReload()
		delete(a.Slots, slot)
	}
}
