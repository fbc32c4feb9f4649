package game

import "math"

// Damage formula constants. Server-authoritative; clients cannot modify
// them.
const (
	// PenetrationAttenuation is applied once per pierced surface,
	// compounded.
	PenetrationAttenuation = 0.85

	// MaxPenetrations bounds the penetration traversal per ray.
	MaxPenetrations = 3

	// MinDamagePerHit is the floor for any confirmed hit.
	MinDamagePerHit = 1
)

// ArmorMultiplier is the linear armor reduction: at least half the
// damage always goes through.
func ArmorMultiplier(armor float64) float64 {
	m := 1 - armor/200
	if m < 0.5 {
		return 0.5
	}
	return m
}

// ComputeDamage evaluates the full damage formula:
//
//	floor(base × falloff × attenuation^penetrations × armorMult)
//
// clamped to MinDamagePerHit. base is already the headshot or body
// damage; falloff comes from the catalog breakpoints.
func ComputeDamage(base int, falloff float64, penetrations int, armor float64) int {
	raw := float64(base) *
		falloff *
		math.Pow(PenetrationAttenuation, float64(penetrations)) *
		ArmorMultiplier(armor)

	dmg := int(math.Floor(raw))
	if dmg < MinDamagePerHit {
		return MinDamagePerHit
	}
	return dmg
}
