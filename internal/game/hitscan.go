package game

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"gunfight/internal/game/geom"
)

// Hitbox and lag-compensation constants. The margin absorbs
// interpolation error in rewound positions; the head sphere uses a
// distinct, larger scale than its anatomical radius.
const (
	MaxLagCompensation = 250 * time.Millisecond

	EyeHeight        = 1.6
	BodyCenterHeight = 0.9
	HeadHeight       = 1.7

	BodyRadius      = 0.45
	HeadRadius      = 0.18
	HeadHitboxScale = 1.5
	HitboxMargin    = 0.08

	// surfaceExitEpsilon nudges a penetrating ray past the exit face so
	// the next raycast cannot re-hit the same surface boundary.
	surfaceExitEpsilon = 1e-4
)

// TargetSnapshot is a candidate target frozen at the shooter's
// compensated time. Resolution never touches live player state.
type TargetSnapshot struct {
	ID       string
	Position geom.Vec3 // feet position
	Armor    float64
}

// HitResult is the outcome of resolving a shot against one target.
// Pellet weapons sum damage per target, so one result may cover several
// pellets.
type HitResult struct {
	Hit          bool      `json:"hit"`
	TargetID     string    `json:"targetId,omitempty"`
	Position     geom.Vec3 `json:"position"`
	Headshot     bool      `json:"headshot"`
	Distance     float64   `json:"distance"`
	Penetrations int       `json:"penetrations"`
	Damage       int       `json:"damage"`
	Pellets      int       `json:"pellets"`
}

// CompensatedAt returns the timestamp hit resolution should rewind a
// target to for a shooter with the given latency, clamped to the
// compensation window.
func CompensatedAt(serverNow time.Time, latency time.Duration) time.Time {
	if latency < 0 {
		latency = 0
	}
	if latency > MaxLagCompensation {
		latency = MaxLagCompensation
	}
	return serverNow.Add(-latency)
}

// Resolver turns a validated shot into hit results. It is a pure
// function of (target snapshots, world geometry, shot parameters, rng):
// the RNG is injected so tests replay exact spread patterns.
type Resolver struct {
	world WorldQuery
}

// NewResolver creates a resolver over the given world geometry.
func NewResolver(world WorldQuery) *Resolver {
	return &Resolver{world: world}
}

// Resolve traces every pellet of one shot and aggregates damage per
// target. Results are ordered by damage descending (id ascending on
// ties) so the first entry is the primary target for reporting.
func (r *Resolver) Resolve(def *WeaponDefinition, origin, baseDir geom.Vec3, targets []TargetSnapshot, rng *rand.Rand) []HitResult {
	dir := baseDir.Normalize()
	halfAngle := def.EffectiveSpreadDeg() * math.Pi / 180

	pellets := def.Pellets
	if pellets < 1 {
		pellets = 1
	}

	byTarget := make(map[string]*HitResult)
	for i := 0; i < pellets; i++ {
		pelletDir := geom.SampleCone(rng, dir, halfAngle)
		hit, ok := r.tracePellet(def, origin, pelletDir, targets)
		if !ok {
			continue
		}

		base := def.Damage
		if hit.headshot {
			base = def.HeadDamage
		}
		falloff := FalloffMultiplier(def.Falloff, hit.distance)
		dmg := ComputeDamage(base, falloff, hit.penetrations, hit.armor)

		agg, seen := byTarget[hit.targetID]
		if !seen {
			agg = &HitResult{
				Hit:          true,
				TargetID:     hit.targetID,
				Position:     hit.position,
				Distance:     hit.distance,
				Penetrations: hit.penetrations,
			}
			byTarget[hit.targetID] = agg
		}
		agg.Damage += dmg
		agg.Pellets++
		if hit.headshot {
			agg.Headshot = true
		}
		if hit.distance < agg.Distance {
			agg.Distance = hit.distance
			agg.Position = hit.position
		}
		if hit.penetrations > agg.Penetrations {
			agg.Penetrations = hit.penetrations
		}
	}

	out := make([]HitResult, 0, len(byTarget))
	for _, hr := range byTarget {
		out = append(out, *hr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Damage != out[j].Damage {
			return out[i].Damage > out[j].Damage
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out
}

type pelletHit struct {
	targetID     string
	armor        float64
	headshot     bool
	distance     float64
	penetrations int
	position     geom.Vec3
}

// tracePellet marches one ray through the world: at each step the
// nearest of (geometry, entity) wins. Penetrable geometry lets a
// penetrating weapon continue from the exit face with reduced remaining
// range; the already-pierced set is threaded through immutably so the
// iteration has no hidden shared accumulation.
func (r *Resolver) tracePellet(def *WeaponDefinition, origin, dir geom.Vec3, targets []TargetSnapshot) (pelletHit, bool) {
	pos := origin
	remaining := def.Range
	traveled := 0.0
	penetrations := 0
	pierced := map[string]struct{}{}

	for remaining > 0 {
		surf, surfOK := r.world.Raycast(pos, dir, remaining, pierced)
		ent, entOK := nearestTargetHit(pos, dir, remaining, targets)

		if entOK && (!surfOK || ent.dist < surf.Distance) {
			return pelletHit{
				targetID:     ent.target.ID,
				armor:        ent.target.Armor,
				headshot:     ent.head,
				distance:     traveled + ent.dist,
				penetrations: penetrations,
				position:     pos.Add(dir.Scale(ent.dist)),
			}, true
		}
		if !surfOK {
			return pelletHit{}, false // nothing within range: a miss, not an error
		}
		if !def.Penetrates || !surf.Material.Penetrable() || penetrations >= MaxPenetrations {
			return pelletHit{}, false
		}

		penetrations++
		pierced = withPierced(pierced, surf.SurfaceID)
		advance := surf.ExitDist + surfaceExitEpsilon
		pos = pos.Add(dir.Scale(advance))
		traveled += advance
		remaining -= advance
	}
	return pelletHit{}, false
}

// withPierced returns a new set extending prev with id; prev is never
// mutated.
func withPierced(prev map[string]struct{}, id string) map[string]struct{} {
	next := make(map[string]struct{}, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[id] = struct{}{}
	return next
}

type targetHit struct {
	target TargetSnapshot
	dist   float64
	head   bool
}

// nearestTargetHit tests the ray against every target's head and body
// spheres and returns the closest intersection. When both spheres of a
// target intersect, the nearer one decides the headshot flag; ties go to
// the head.
func nearestTargetHit(origin, dir geom.Vec3, maxDist float64, targets []TargetSnapshot) (targetHit, bool) {
	var best targetHit
	found := false

	headR := HeadRadius*HeadHitboxScale + HitboxMargin
	bodyR := BodyRadius + HitboxMargin

	for _, t := range targets {
		headCenter := t.Position.Add(geom.Vec3{Y: HeadHeight})
		bodyCenter := t.Position.Add(geom.Vec3{Y: BodyCenterHeight})

		if ht, ok := geom.RaySphere(origin, dir, headCenter, headR, maxDist); ok {
			if !found || ht < best.dist || (ht == best.dist && !best.head) {
				best = targetHit{target: t, dist: ht, head: true}
				found = true
			}
		}
		if bt, ok := geom.RaySphere(origin, dir, bodyCenter, bodyR, maxDist); ok {
			if !found || bt < best.dist {
				best = targetHit{target: t, dist: bt, head: false}
				found = true
			}
		}
	}
	return best, found
}
