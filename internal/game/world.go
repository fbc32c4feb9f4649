package game

import (
	"gunfight/internal/game/geom"
)

// Material classifies what a ray hit. Penetration policy lives here:
// thin or soft materials let a penetrating weapon continue, structural
// ones stop every ray.
type Material string

const (
	MaterialConcrete Material = "concrete"
	MaterialMetal    Material = "metal"
	MaterialWood     Material = "wood"
	MaterialDrywall  Material = "drywall"
	MaterialGlass    Material = "glass"
)

// Penetrable reports whether a penetrating weapon's ray continues
// through this material.
func (m Material) Penetrable() bool {
	switch m {
	case MaterialWood, MaterialDrywall, MaterialGlass:
		return true
	default:
		return false
	}
}

// SurfaceHit is a ray intersection with static geometry. Exit is the
// far-face point the ray would continue from when penetrating.
type SurfaceHit struct {
	SurfaceID string
	Material  Material
	Distance  float64 // along the ray to the entry point
	Position  geom.Vec3
	Exit      geom.Vec3
	ExitDist  float64
}

// WorldQuery is the collaborator answering geometry raycasts. A query
// with no result is a miss, never an error.
type WorldQuery interface {
	// Raycast returns the nearest surface the ray crosses within
	// maxDist, skipping surfaces whose ids are in ignore.
	Raycast(origin, dir geom.Vec3, maxDist float64, ignore map[string]struct{}) (SurfaceHit, bool)
}

// Obstacle is one axis-aligned box of static geometry.
type Obstacle struct {
	ID       string    `json:"id"`
	Box      geom.AABB `json:"box"`
	Material Material  `json:"material"`
}

// StaticWorld is the default WorldQuery: a flat list of material boxes.
// It is immutable after construction, so raycasts need no locking.
type StaticWorld struct {
	obstacles []Obstacle
}

// NewStaticWorld builds a world from the given obstacles.
func NewStaticWorld(obstacles ...Obstacle) *StaticWorld {
	return &StaticWorld{obstacles: obstacles}
}

// Obstacles returns the world's geometry (read-only).
func (w *StaticWorld) Obstacles() []Obstacle { return w.obstacles }

// Raycast implements WorldQuery by brute-force slab tests. Worlds here
// are small enough that an acceleration structure would not pay for
// itself.
func (w *StaticWorld) Raycast(origin, dir geom.Vec3, maxDist float64, ignore map[string]struct{}) (SurfaceHit, bool) {
	var best SurfaceHit
	found := false

	for _, ob := range w.obstacles {
		if _, skip := ignore[ob.ID]; skip {
			continue
		}
		tEnter, tExit, ok := geom.RayAABB(origin, dir, ob.Box, maxDist)
		if !ok || tEnter <= 0 {
			continue
		}
		if !found || tEnter < best.Distance {
			best = SurfaceHit{
				SurfaceID: ob.ID,
				Material:  ob.Material,
				Distance:  tEnter,
				Position:  origin.Add(dir.Scale(tEnter)),
				Exit:      origin.Add(dir.Scale(tExit)),
				ExitDist:  tExit,
			}
			found = true
		}
	}
	return best, found
}
