package game

import (
	"encoding/json"
	"time"

	"gunfight/internal/game/geom"
)

// EventType enum for combat event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeJoin
	EventTypeLeave
	EventTypeFire
	EventTypeHit
	EventTypeMiss
	EventTypeReload
	EventTypeEquip
	EventTypeSwitch
	EventTypeElimination
	EventTypeRespawn
)

// EventVersion for backwards compatibility in the journal
const EventVersion uint8 = 1

// Event is the envelope every combat event travels in, both to the
// journal and to live sinks.
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Name      string    `json:"name"`      // human-readable type
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`  // monotonic, assigned by the journal
	PlayerID  string    `json:"playerId"`  // source player (for rate limiting)
	Payload   []byte    `json:"payload"`   // JSON-encoded payload
}

// String returns the human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeJoin:
		return "join"
	case EventTypeLeave:
		return "leave"
	case EventTypeFire:
		return "fire"
	case EventTypeHit:
		return "hit"
	case EventTypeMiss:
		return "miss"
	case EventTypeReload:
		return "reload"
	case EventTypeEquip:
		return "equip"
	case EventTypeSwitch:
		return "switch"
	case EventTypeElimination:
		return "elimination"
	case EventTypeRespawn:
		return "respawn"
	default:
		return "unknown"
	}
}

// Typed payloads for the different event types

// JoinPayload records a player entering the match.
type JoinPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// LeavePayload records a player leaving the match.
type LeavePayload struct {
	PlayerID string `json:"playerId"`
}

// FirePayload records a shot leaving the barrel (hit or not).
type FirePayload struct {
	ShooterID string `json:"shooterId"`
	WeaponID  string `json:"weaponId"`
	Pellets   int    `json:"pellets"`
	AmmoLeft  int    `json:"ammoLeft"`
}

// HitPayload records confirmed damage on one target.
type HitPayload struct {
	ShooterID    string    `json:"shooterId"`
	TargetID     string    `json:"targetId"`
	WeaponID     string    `json:"weaponId"`
	Damage       int       `json:"damage"`
	Headshot     bool      `json:"headshot"`
	Penetrations int       `json:"penetrations"`
	Distance     float64   `json:"distance"`
	Position     geom.Vec3 `json:"position"`
	TargetHealth int       `json:"targetHealth"`
	TargetShield int       `json:"targetShield"`
}

// MissPayload records a shot that hit nothing.
type MissPayload struct {
	ShooterID string `json:"shooterId"`
	WeaponID  string `json:"weaponId"`
}

// ReloadPayload records a completed reload.
type ReloadPayload struct {
	PlayerID string     `json:"playerId"`
	WeaponID string     `json:"weaponId"`
	Slot     WeaponSlot `json:"slot"`
	Ammo     int        `json:"ammo"`
	Reserve  int        `json:"reserve"`
}

// EquipPayload records a weapon being equipped into a slot.
type EquipPayload struct {
	PlayerID string     `json:"playerId"`
	WeaponID string     `json:"weaponId"`
	Slot     WeaponSlot `json:"slot"`
}

// SwitchPayload records an active-slot change.
type SwitchPayload struct {
	PlayerID string     `json:"playerId"`
	Slot     WeaponSlot `json:"slot"`
}

// EliminationPayload records exactly one death.
type EliminationPayload struct {
	KillerID     string `json:"killerId"`
	VictimID     string `json:"victimId"`
	WeaponID     string `json:"weaponId"`
	Headshot     bool   `json:"headshot"`
	KillerKills  int    `json:"killerKills"`
	VictimDeaths int    `json:"victimDeaths"`
}

// RespawnPayload records a player coming back after the respawn delay.
type RespawnPayload struct {
	PlayerID string    `json:"playerId"`
	Position geom.Vec3 `json:"position"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, playerID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Name:      eventType.String(),
		Timestamp: time.Now().UnixNano(),
		PlayerID:  playerID,
		Payload:   EncodePayload(payload),
	}
}
