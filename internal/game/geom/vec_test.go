package geom

import (
	"math"
	"math/rand"
	"testing"
)

const eps = 1e-9

// TestVecBasics tests the core vector operations
func TestVecBasics(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, -5, 6}

	if got := a.Add(b); got != (Vec3{5, -3, 9}) {
		t.Errorf("Add: got %+v", got)
	}
	if got := a.Sub(b); got != (Vec3{-3, 7, -3}) {
		t.Errorf("Sub: got %+v", got)
	}
	if got := a.Dot(b); got != 12 {
		t.Errorf("Dot: expected 12, got %g", got)
	}
	if got := (Vec3{3, 4, 0}).Length(); got != 5 {
		t.Errorf("Length: expected 5, got %g", got)
	}

	n := b.Normalize()
	if math.Abs(n.Length()-1) > eps {
		t.Errorf("Normalize: length %g, expected 1", n.Length())
	}

	// Zero vector stays zero instead of producing NaN
	z := Vec3{}.Normalize()
	if z != (Vec3{}) {
		t.Errorf("Normalize zero: got %+v", z)
	}
}

// TestLerp tests linear interpolation endpoints and midpoint
func TestLerp(t *testing.T) {
	a := Vec3{0, 0, 0}
	b := Vec3{10, -4, 2}

	if got := Lerp(a, b, 0); got != a {
		t.Errorf("t=0: got %+v", got)
	}
	if got := Lerp(a, b, 1); got != b {
		t.Errorf("t=1: got %+v", got)
	}
	mid := Lerp(a, b, 0.5)
	if mid != (Vec3{5, -2, 1}) {
		t.Errorf("t=0.5: got %+v", mid)
	}
}

// TestAngleBetween tests angle computation including degenerate input
func TestAngleBetween(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vec3
		expected float64
	}{
		{"parallel", Vec3{1, 0, 0}, Vec3{5, 0, 0}, 0},
		{"orthogonal", Vec3{1, 0, 0}, Vec3{0, 1, 0}, math.Pi / 2},
		{"opposite", Vec3{1, 0, 0}, Vec3{-2, 0, 0}, math.Pi},
		{"zero input", Vec3{}, Vec3{1, 0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AngleBetween(tt.a, tt.b); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("expected %g, got %g", tt.expected, got)
			}
		})
	}
}

// TestBasis verifies the returned vectors are unit length and mutually
// orthogonal for a spread of directions
func TestBasis(t *testing.T) {
	dirs := []Vec3{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{-1, 0, 0}, {0.99, 0.1, 0}, {1, 1, 1}, {-3, 2, -7},
	}

	for _, dir := range dirs {
		u, w := Basis(dir)
		d := dir.Normalize()

		if math.Abs(u.Length()-1) > eps || math.Abs(w.Length()-1) > eps {
			t.Errorf("dir %+v: basis not unit length", dir)
		}
		if math.Abs(u.Dot(d)) > eps || math.Abs(w.Dot(d)) > eps || math.Abs(u.Dot(w)) > eps {
			t.Errorf("dir %+v: basis not orthogonal", dir)
		}
	}
}

// TestSampleConeWithinHalfAngle verifies every sample stays inside the
// cone and is unit length
func TestSampleConeWithinHalfAngle(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	dir := Vec3{0, 0, 1}
	halfAngle := 10 * math.Pi / 180

	for i := 0; i < 10000; i++ {
		s := SampleCone(rng, dir, halfAngle)
		if math.Abs(s.Length()-1) > 1e-9 {
			t.Fatalf("sample %d not unit length: %g", i, s.Length())
		}
		if a := AngleBetween(dir, s); a > halfAngle+1e-9 {
			t.Fatalf("sample %d outside cone: angle %g > %g", i, a, halfAngle)
		}
	}
}

// TestSampleConeZeroSpread verifies a zero half-angle returns the base
// direction exactly
func TestSampleConeZeroSpread(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	dir := Vec3{3, 0, 0}

	s := SampleCone(rng, dir, 0)
	if s != (Vec3{1, 0, 0}) {
		t.Errorf("expected normalized base direction, got %+v", s)
	}
}

// TestSampleConeUniform sanity-checks the solid-angle distribution: with
// uniform sampling roughly half the samples land inside the half-area
// sub-cone
func TestSampleConeUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dir := Vec3{0, 1, 0}
	halfAngle := 30 * math.Pi / 180

	// Sub-cone covering half the solid angle: cos(inner) = (1+cosθ)/2
	inner := math.Acos((1 + math.Cos(halfAngle)) / 2)

	const n = 20000
	insideCount := 0
	for i := 0; i < n; i++ {
		if AngleBetween(dir, SampleCone(rng, dir, halfAngle)) <= inner {
			insideCount++
		}
	}

	frac := float64(insideCount) / n
	if frac < 0.47 || frac > 0.53 {
		t.Errorf("expected ~0.5 of samples in half-area sub-cone, got %.3f", frac)
	}
}

// TestRaySphere tests sphere intersection cases
func TestRaySphere(t *testing.T) {
	center := Vec3{0, 0, 10}

	t.Run("direct hit", func(t *testing.T) {
		d, ok := RaySphere(Vec3{}, Vec3{0, 0, 1}, center, 1, 100)
		if !ok || math.Abs(d-9) > eps {
			t.Errorf("expected t=9, got %g ok=%v", d, ok)
		}
	})

	t.Run("miss", func(t *testing.T) {
		if _, ok := RaySphere(Vec3{}, Vec3{0, 1, 0}, center, 1, 100); ok {
			t.Error("expected miss")
		}
	})

	t.Run("behind origin", func(t *testing.T) {
		if _, ok := RaySphere(Vec3{}, Vec3{0, 0, -1}, center, 1, 100); ok {
			t.Error("sphere behind origin should miss")
		}
	})

	t.Run("beyond max distance", func(t *testing.T) {
		if _, ok := RaySphere(Vec3{}, Vec3{0, 0, 1}, center, 1, 5); ok {
			t.Error("hit beyond maxDist should be rejected")
		}
	})

	t.Run("origin inside sphere", func(t *testing.T) {
		d, ok := RaySphere(center, Vec3{0, 0, 1}, center, 2, 100)
		if !ok || math.Abs(d-2) > eps {
			t.Errorf("expected exit at t=2, got %g ok=%v", d, ok)
		}
	})
}

// TestRayAABB tests box intersection including the exit distance used
// for penetration
func TestRayAABB(t *testing.T) {
	box := AABB{Min: Vec3{-1, -1, 5}, Max: Vec3{1, 1, 6}}

	t.Run("entry and exit", func(t *testing.T) {
		enter, exit, ok := RayAABB(Vec3{}, Vec3{0, 0, 1}, box, 100)
		if !ok {
			t.Fatal("expected hit")
		}
		if math.Abs(enter-5) > eps || math.Abs(exit-6) > eps {
			t.Errorf("expected [5,6], got [%g,%g]", enter, exit)
		}
	})

	t.Run("parallel miss", func(t *testing.T) {
		if _, _, ok := RayAABB(Vec3{2, 0, 0}, Vec3{0, 0, 1}, box, 100); ok {
			t.Error("expected miss for parallel ray outside slab")
		}
	})

	t.Run("beyond max distance", func(t *testing.T) {
		if _, _, ok := RayAABB(Vec3{}, Vec3{0, 0, 1}, box, 4); ok {
			t.Error("box beyond maxDist should miss")
		}
	})

	t.Run("diagonal hit", func(t *testing.T) {
		dir := (Vec3{0.1, 0.1, 1}).Normalize()
		enter, exit, ok := RayAABB(Vec3{}, dir, box, 100)
		if !ok || exit <= enter {
			t.Errorf("expected ordered interval, got [%g,%g] ok=%v", enter, exit, ok)
		}
	})
}
