package game

import (
	"testing"

	"github.com/rs/zerolog"
)

// newTestCatalog builds a catalog from explicit definitions, bypassing
// the defaults.
func newTestCatalog(t *testing.T, defs ...WeaponDefinition) *Catalog {
	t.Helper()
	c := &Catalog{
		log:     zerolog.Nop(),
		weapons: make(map[string]*WeaponDefinition),
	}
	c.load(defs)
	return c
}

func validTestWeapon() WeaponDefinition {
	return WeaponDefinition{
		ID: "test", Name: "Test", Slot: SlotPrimary,
		Damage: 30, HeadDamage: 60, FireRate: 10,
		MagazineSize: 30, MaxAmmo: 90, ReloadTime: 2,
		Range: 100, Accuracy: 0.9, SpreadDeg: 2, Pellets: 1,
		Falloff: []FalloffBreakpoint{{Distance: 0, Multiplier: 1.0}},
	}
}

// TestDamageAtDistanceBreakpoints tests the breakpoint scan: a weapon
// with damage 30 and breakpoints [(0,1.0),(100,0.8)] deals 24 at 150
func TestDamageAtDistanceBreakpoints(t *testing.T) {
	def := validTestWeapon()
	def.Falloff = []FalloffBreakpoint{
		{Distance: 0, Multiplier: 1.0},
		{Distance: 100, Multiplier: 0.8},
	}
	def.Range = 500
	c := newTestCatalog(t, def)

	tests := []struct {
		distance float64
		expected int
	}{
		{0, 30},
		{50, 30},
		{100, 24}, // farthest breakpoint with distance <= 100
		{150, 24},
		{400, 24},
	}

	for _, tt := range tests {
		if got := c.DamageAtDistance("test", tt.distance, false); got != tt.expected {
			t.Errorf("distance %.0f: expected %d, got %d", tt.distance, tt.expected, got)
		}
	}
}

// TestDamageMonotonicNonIncreasing verifies damage never increases with
// distance for any default weapon
func TestDamageMonotonicNonIncreasing(t *testing.T) {
	c := NewCatalog(zerolog.Nop())

	for _, def := range c.All() {
		prev := c.DamageAtDistance(def.ID, 0, false)
		for d := 1.0; d <= def.Range*1.5; d += 0.5 {
			cur := c.DamageAtDistance(def.ID, d, false)
			if cur > prev {
				t.Errorf("%s: damage increased from %d to %d at distance %.1f", def.ID, prev, cur, d)
				break
			}
			prev = cur
		}
	}
}

// TestHeadshotAtLeastBodyDamage verifies head >= body at equal distance
// for every default weapon
func TestHeadshotAtLeastBodyDamage(t *testing.T) {
	c := NewCatalog(zerolog.Nop())

	for _, def := range c.All() {
		for _, d := range []float64{0, 10, 50, 200} {
			head := c.DamageAtDistance(def.ID, d, true)
			body := c.DamageAtDistance(def.ID, d, false)
			if head < body {
				t.Errorf("%s at %.0f: headshot %d < body %d", def.ID, d, head, body)
			}
		}
	}
}

// TestValidateWeaponReportsAllBreaches verifies validation collects
// every problem instead of stopping at the first
func TestValidateWeaponReportsAllBreaches(t *testing.T) {
	def := WeaponDefinition{
		ID: "broken", Slot: "backpack",
		Damage: 0, FireRate: -1, MagazineSize: 0,
		Range: -5, Accuracy: 1.5, Pellets: 0,
		Falloff: []FalloffBreakpoint{
			{Distance: 10, Multiplier: 1.0},
			{Distance: 10, Multiplier: 0.5}, // not strictly ascending
		},
	}

	errs := ValidateWeapon(&def)
	if len(errs) < 7 {
		t.Errorf("expected at least 7 breaches, got %d: %v", len(errs), errs)
	}
}

// TestInvalidDefinitionExcluded tests that a bad definition is excluded
// and reported, not fatal
func TestInvalidDefinitionExcluded(t *testing.T) {
	bad := validTestWeapon()
	bad.ID = "bad"
	bad.Damage = -1
	fallback := validTestWeapon()
	fallback.ID = FallbackWeaponID

	c := newTestCatalog(t, bad, fallback)

	if _, ok := c.Get("bad"); ok {
		t.Error("invalid definition should be excluded")
	}

	report := c.Report()
	if report.Total != 2 || report.Accepted != 1 || report.Rejected != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if len(report.Issues) == 0 {
		t.Error("expected recorded issues for the bad definition")
	}

	// Player referencing the excluded id gets the fallback weapon
	if def := c.GetOrFallback("bad"); def == nil || def.ID != FallbackWeaponID {
		t.Errorf("expected fallback substitution, got %+v", def)
	}
}

// TestLegacyMapNormalization verifies the distance->multiplier map form
// is converted into ordered breakpoints at load time
func TestLegacyMapNormalization(t *testing.T) {
	def := validTestWeapon()
	def.Falloff = nil
	def.DamageMultipliers = map[string]float64{
		"100": 0.8,
		"0":   1.0,
		"50":  0.9,
	}
	c := newTestCatalog(t, def)

	loaded, ok := c.Get("test")
	if !ok {
		t.Fatal("weapon not loaded")
	}
	if loaded.DamageMultipliers != nil {
		t.Error("legacy map should be cleared after normalization")
	}

	expected := []FalloffBreakpoint{{0, 1.0}, {50, 0.9}, {100, 0.8}}
	if len(loaded.Falloff) != len(expected) {
		t.Fatalf("expected %d breakpoints, got %d", len(expected), len(loaded.Falloff))
	}
	for i, bp := range expected {
		if loaded.Falloff[i] != bp {
			t.Errorf("breakpoint %d: expected %+v, got %+v", i, bp, loaded.Falloff[i])
		}
	}

	if got := c.DamageAtDistance("test", 60, false); got != 27 {
		t.Errorf("expected 27 at distance 60, got %d", got)
	}
}

// TestSliceWinsOverLegacyMap verifies the breakpoint slice is canonical
// when both representations are present
func TestSliceWinsOverLegacyMap(t *testing.T) {
	def := validTestWeapon()
	def.Falloff = []FalloffBreakpoint{{Distance: 0, Multiplier: 1.0}}
	def.DamageMultipliers = map[string]float64{"0": 0.5}
	c := newTestCatalog(t, def)

	if got := c.DamageAtDistance("test", 10, false); got != 30 {
		t.Errorf("slice should be authoritative: expected 30, got %d", got)
	}
}

// TestHeadshotMultiplierCache tests the derived cache and its
// invalidation hook
func TestHeadshotMultiplierCache(t *testing.T) {
	c := NewCatalog(zerolog.Nop())

	if m := c.HeadshotMultiplier("rifle"); m != 3.0 {
		t.Errorf("rifle: expected 3.0, got %g", m)
	}
	if m := c.HeadshotMultiplier("nonexistent"); m != 1.0 {
		t.Errorf("unknown weapon: expected 1.0, got %g", m)
	}

	c.InvalidateDerived()
	if m := c.HeadshotMultiplier("rifle"); m != 3.0 {
		t.Errorf("after invalidation: expected 3.0, got %g", m)
	}
}

// TestDefaultWeaponsAllValid tests every in-code definition passes its
// own validation
func TestDefaultWeaponsAllValid(t *testing.T) {
	c := NewCatalog(zerolog.Nop())
	report := c.Report()
	if report.Rejected != 0 {
		t.Errorf("default weapons should all validate: %+v", report.Issues)
	}
	if _, ok := c.Get(FallbackWeaponID); !ok {
		t.Error("fallback weapon must exist in the defaults")
	}
}
