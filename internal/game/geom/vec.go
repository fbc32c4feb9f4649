package geom

import (
	"math"
	"math/rand"
)

// Vec3 is a 3D vector in world units (meters).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the cross product of v and o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the euclidean length of v.
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Distance returns the distance between v and o.
func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Length() }

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged (callers must not treat it as a valid direction).
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Lerp linearly interpolates between a and b by t in [0,1].
func Lerp(a, b Vec3, t float64) Vec3 {
	return Vec3{
		a.X + (b.X-a.X)*t,
		a.Y + (b.Y-a.Y)*t,
		a.Z + (b.Z-a.Z)*t,
	}
}

// AngleBetween returns the angle in radians between two directions.
// Zero-length inputs yield 0.
func AngleBetween(a, b Vec3) float64 {
	la, lb := a.Length(), b.Length()
	if la == 0 || lb == 0 {
		return 0
	}
	cos := a.Dot(b) / (la * lb)
	// Clamp for floating point noise before acos.
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// Basis returns two unit vectors orthogonal to dir and to each other.
// dir must be non-zero; it does not need to be normalized.
func Basis(dir Vec3) (u, w Vec3) {
	d := dir.Normalize()
	// Pick the world axis least aligned with dir to avoid degenerate cross.
	ref := Vec3{1, 0, 0}
	if math.Abs(d.X) > 0.9 {
		ref = Vec3{0, 1, 0}
	}
	u = d.Cross(ref).Normalize()
	w = d.Cross(u)
	return u, w
}

// SampleCone returns a unit direction sampled uniformly in solid angle
// within the cone of half-angle halfAngle (radians) around dir.
// Sampling z uniformly in [cosθ, 1] and the azimuth uniformly in [0, 2π)
// is the standard uniform-in-solid-angle construction; sampling the two
// spherical angles independently would cluster rays near the axis.
func SampleCone(rng *rand.Rand, dir Vec3, halfAngle float64) Vec3 {
	if halfAngle <= 0 {
		return dir.Normalize()
	}
	phi := rng.Float64() * 2 * math.Pi
	z := 1 - rng.Float64()*(1-math.Cos(halfAngle))
	r := math.Sqrt(1 - z*z)

	d := dir.Normalize()
	u, w := Basis(d)
	return d.Scale(z).
		Add(u.Scale(r * math.Cos(phi))).
		Add(w.Scale(r * math.Sin(phi)))
}

// RaySphere intersects the ray origin+t*dir (dir unit length) with a sphere.
// It returns the smallest t >= 0 within maxDist, or ok=false on a miss.
func RaySphere(origin, dir, center Vec3, radius, maxDist float64) (t float64, ok bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t = -b - sq
	if t < 0 {
		t = -b + sq // origin inside the sphere
	}
	if t < 0 || t > maxDist {
		return 0, false
	}
	return t, true
}

// AABB is an axis-aligned box defined by its min and max corners.
type AABB struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// RayAABB intersects the ray origin+t*dir (dir unit length) with the box
// using the slab method. It returns both the entry and exit distances so
// penetration can continue from the far face. ok is false when the ray
// misses or the box lies entirely behind the origin or beyond maxDist.
func RayAABB(origin, dir Vec3, box AABB, maxDist float64) (tEnter, tExit float64, ok bool) {
	tEnter = 0
	tExit = maxDist

	axes := [3][3]float64{
		{origin.X, dir.X, 0},
		{origin.Y, dir.Y, 0},
		{origin.Z, dir.Z, 0},
	}
	mins := [3]float64{box.Min.X, box.Min.Y, box.Min.Z}
	maxs := [3]float64{box.Max.X, box.Max.Y, box.Max.Z}

	for i := 0; i < 3; i++ {
		o, d := axes[i][0], axes[i][1]
		if d == 0 {
			if o < mins[i] || o > maxs[i] {
				return 0, 0, false
			}
			continue
		}
		t1 := (mins[i] - o) / d
		t2 := (maxs[i] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tEnter {
			tEnter = t1
		}
		if t2 < tExit {
			tExit = t2
		}
		if tEnter > tExit {
			return 0, 0, false
		}
	}
	return tEnter, tExit, true
}
