package game

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// WeaponSlot is the loadout slot a weapon occupies.
type WeaponSlot string

const (
	SlotPrimary   WeaponSlot = "primary"
	SlotSecondary WeaponSlot = "secondary"
	SlotMelee     WeaponSlot = "melee"
)

// KnownSlot reports whether s is one of the loadout slots.
func KnownSlot(s WeaponSlot) bool {
	return s == SlotPrimary || s == SlotSecondary || s == SlotMelee
}

// FallbackWeaponID is substituted when a player references an unknown or
// invalid weapon id.
const FallbackWeaponID = "pistol"

// InfiniteMagazine is the sentinel: weapons with MagazineSize at or above
// it never consume ammo (melee).
const InfiniteMagazine = 999

// FalloffBreakpoint is one (distance, multiplier) pair in a weapon's
// damage-falloff table.
type FalloffBreakpoint struct {
	Distance   float64 `json:"distance" mapstructure:"distance"`
	Multiplier float64 `json:"multiplier" mapstructure:"multiplier"`
}

// WeaponDefinition holds the server-authoritative stats for one weapon.
// Definitions are immutable after load; clients cannot modify them.
type WeaponDefinition struct {
	ID           string     `json:"id" mapstructure:"id"`
	Name         string     `json:"name" mapstructure:"name"`
	Slot         WeaponSlot `json:"slot" mapstructure:"slot"`
	Damage       int        `json:"damage" mapstructure:"damage"`
	HeadDamage   int        `json:"headDamage" mapstructure:"headDamage"`
	FireRate     float64    `json:"fireRate" mapstructure:"fireRate"` // rounds per second
	MagazineSize int        `json:"magazineSize" mapstructure:"magazineSize"`
	MaxAmmo      int        `json:"maxAmmo" mapstructure:"maxAmmo"`
	ReloadTime   float64    `json:"reloadTime" mapstructure:"reloadTime"` // seconds
	Range        float64    `json:"range" mapstructure:"range"`           // meters
	Accuracy     float64    `json:"accuracy" mapstructure:"accuracy"`     // 0..1, scales spread down
	SpreadDeg    float64    `json:"spreadDeg" mapstructure:"spreadDeg"`   // cone half-angle at accuracy 0
	Pellets      int        `json:"pellets" mapstructure:"pellets"`       // projectiles per shot, >= 1
	Penetrates   bool       `json:"penetrates" mapstructure:"penetrates"`

	// Falloff is the canonical damage-falloff table, strictly ascending
	// by distance.
	Falloff []FalloffBreakpoint `json:"falloff" mapstructure:"falloff"`

	// DamageMultipliers is the legacy distance->multiplier map form still
	// found in older definition files. It is normalized into Falloff at
	// load time and never consulted afterwards.
	DamageMultipliers map[string]float64 `json:"damageMultipliers,omitempty" mapstructure:"damageMultipliers"`
}

// Infinite reports whether this weapon never consumes ammo.
func (d *WeaponDefinition) Infinite() bool {
	return d.MagazineSize >= InfiniteMagazine
}

// EffectiveSpreadDeg is the cone half-angle after accuracy scaling.
func (d *WeaponDefinition) EffectiveSpreadDeg() float64 {
	s := d.SpreadDeg * (1 - d.Accuracy)
	if s < 0 {
		return 0
	}
	return s
}

// WeaponIssue records one validation problem for the ops report.
type WeaponIssue struct {
	WeaponID string `json:"weaponId"`
	Problem  string `json:"problem"`
}

// ValidationReport summarizes catalog load results for operational tooling.
type ValidationReport struct {
	Total    int           `json:"total"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Issues   []WeaponIssue `json:"issues"`
}

// Catalog is the immutable weapon registry. Definitions are validated at
// load; invalid ones are logged and excluded, never fatal.
type Catalog struct {
	log zerolog.Logger

	mu       sync.RWMutex
	weapons  map[string]*WeaponDefinition
	headMult map[string]float64 // derived headshot multipliers, rebuilt on invalidation
	report   ValidationReport
}

// NewCatalog builds a catalog from the in-code default definitions.
func NewCatalog(log zerolog.Logger) *Catalog {
	c := &Catalog{
		log:     log.With().Str("component", "catalog").Logger(),
		weapons: make(map[string]*WeaponDefinition),
	}
	c.load(DefaultWeapons())
	return c
}

// NewCatalogFromFile builds a catalog from a viper-readable definition
// file (JSON or YAML with a top-level "weapons" list). The in-code
// defaults are used for any weapon the file does not define, so a partial
// or broken file degrades rather than failing.
func NewCatalogFromFile(log zerolog.Logger, path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read weapon definitions: %w", err)
	}

	var file struct {
		Weapons []WeaponDefinition `mapstructure:"weapons"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode weapon definitions: %w", err)
	}

	defs := DefaultWeapons()
	byID := make(map[string]int, len(defs))
	for i := range defs {
		byID[defs[i].ID] = i
	}
	for _, w := range file.Weapons {
		if i, ok := byID[w.ID]; ok {
			defs[i] = w
		} else {
			defs = append(defs, w)
		}
	}

	c := &Catalog{
		log:     log.With().Str("component", "catalog").Str("file", path).Logger(),
		weapons: make(map[string]*WeaponDefinition),
	}
	c.load(defs)
	return c, nil
}

// load validates and installs definitions. Invalid definitions are
// excluded with full diagnostics; the process never crashes on bad config.
func (c *Catalog) load(defs []WeaponDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.report = ValidationReport{Total: len(defs)}
	for i := range defs {
		def := defs[i]
		normalizeFalloff(&def)

		errs := ValidateWeapon(&def)
		if len(errs) > 0 {
			c.report.Rejected++
			for _, err := range errs {
				c.report.Issues = append(c.report.Issues, WeaponIssue{WeaponID: def.ID, Problem: err.Error()})
				c.log.Warn().Str("weapon", def.ID).Err(err).Msg("invalid weapon definition excluded")
			}
			continue
		}

		c.report.Accepted++
		c.weapons[def.ID] = &def
	}
	c.headMult = nil // derived values rebuilt lazily
}

// normalizeFalloff converts the legacy distance->multiplier map into the
// canonical ordered breakpoint slice. When both forms are present the
// slice wins and the map is ignored.
func normalizeFalloff(def *WeaponDefinition) {
	if len(def.Falloff) > 0 || len(def.DamageMultipliers) == 0 {
		def.DamageMultipliers = nil
		return
	}
	bps := make([]FalloffBreakpoint, 0, len(def.DamageMultipliers))
	for k, m := range def.DamageMultipliers {
		d, err := strconv.ParseFloat(k, 64)
		if err != nil {
			continue // bad key surfaces later as a validation issue if the table ends up empty
		}
		bps = append(bps, FalloffBreakpoint{Distance: d, Multiplier: m})
	}
	sort.Slice(bps, func(i, j int) bool { return bps[i].Distance < bps[j].Distance })
	def.Falloff = bps
	def.DamageMultipliers = nil
}

// ValidateWeapon checks every definition invariant and reports all
// breaches, not just the first.
func ValidateWeapon(def *WeaponDefinition) []error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if def.ID == "" {
		fail("missing id")
	}
	if !KnownSlot(def.Slot) {
		fail("unknown slot %q", def.Slot)
	}
	if def.Damage <= 0 {
		fail("damage must be > 0, got %d", def.Damage)
	}
	if def.HeadDamage < def.Damage {
		fail("headDamage %d below body damage %d", def.HeadDamage, def.Damage)
	}
	if def.FireRate <= 0 {
		fail("fireRate must be > 0, got %g", def.FireRate)
	}
	if def.MagazineSize <= 0 {
		fail("magazineSize must be > 0, got %d", def.MagazineSize)
	}
	if !def.Infinite() && def.MaxAmmo < def.MagazineSize {
		fail("maxAmmo %d below magazineSize %d", def.MaxAmmo, def.MagazineSize)
	}
	if def.ReloadTime < 0 {
		fail("reloadTime must be >= 0, got %g", def.ReloadTime)
	}
	if def.Range <= 0 {
		fail("range must be > 0, got %g", def.Range)
	}
	if def.Accuracy < 0 || def.Accuracy > 1 {
		fail("accuracy must be in [0,1], got %g", def.Accuracy)
	}
	if def.SpreadDeg < 0 {
		fail("spreadDeg must be >= 0, got %g", def.SpreadDeg)
	}
	if def.Pellets < 1 {
		fail("pellets must be >= 1, got %d", def.Pellets)
	}
	for i := 1; i < len(def.Falloff); i++ {
		if def.Falloff[i].Distance <= def.Falloff[i-1].Distance {
			fail("falloff breakpoints not strictly ascending at index %d", i)
		}
	}
	for i, bp := range def.Falloff {
		if bp.Multiplier < 0 {
			fail("falloff multiplier at index %d must be >= 0, got %g", i, bp.Multiplier)
		}
	}
	return errs
}

// Get returns a weapon definition by id.
func (c *Catalog) Get(id string) (*WeaponDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.weapons[id]
	return def, ok
}

// GetOrFallback returns the definition for id, substituting the fallback
// weapon when id is unknown or was excluded by validation.
func (c *Catalog) GetOrFallback(id string) *WeaponDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if def, ok := c.weapons[id]; ok {
		return def
	}
	return c.weapons[FallbackWeaponID]
}

// All returns every valid definition, ordered by id.
func (c *Catalog) All() []*WeaponDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*WeaponDefinition, 0, len(c.weapons))
	for _, def := range c.weapons {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Report returns the load-time validation summary.
func (c *Catalog) Report() ValidationReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.report
}

// FalloffMultiplier scans the ordered breakpoints for the farthest entry
// whose distance is <= the query distance. 1.0 when none qualifies.
func FalloffMultiplier(falloff []FalloffBreakpoint, distance float64) float64 {
	mult := 1.0
	for _, bp := range falloff {
		if bp.Distance > distance {
			break
		}
		mult = bp.Multiplier
	}
	return mult
}

// DamageAtDistance returns the pre-armor, pre-penetration damage for a
// weapon at the given distance. Unknown weapons deal 0.
func (c *Catalog) DamageAtDistance(id string, distance float64, headshot bool) int {
	def, ok := c.Get(id)
	if !ok {
		return 0
	}
	base := def.Damage
	if headshot {
		base = def.HeadDamage
	}
	return int(float64(base) * FalloffMultiplier(def.Falloff, distance))
}

// HeadshotMultiplier returns the cached headDamage/damage ratio for a
// weapon (2.0 when damage is 0, 1.0 for unknown weapons).
func (c *Catalog) HeadshotMultiplier(id string) float64 {
	c.mu.RLock()
	if c.headMult != nil {
		if m, ok := c.headMult[id]; ok {
			c.mu.RUnlock()
			return m
		}
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headMult == nil {
		c.headMult = make(map[string]float64, len(c.weapons))
		for wid, def := range c.weapons {
			if def.Damage == 0 {
				c.headMult[wid] = 2.0
				continue
			}
			c.headMult[wid] = float64(def.HeadDamage) / float64(def.Damage)
		}
	}
	if m, ok := c.headMult[id]; ok {
		return m
	}
	return 1.0
}

// InvalidateDerived drops cached derived values so they are recomputed on
// next use. Called after a hot reload of the definition file.
func (c *Catalog) InvalidateDerived() {
	c.mu.Lock()
	c.headMult = nil
	c.mu.Unlock()
}

// DefaultWeapons returns the in-code weapon definitions. A definition
// file loaded at startup overrides these per weapon id.
func DefaultWeapons() []WeaponDefinition {
	return []WeaponDefinition{
		{
			ID: "pistol", Name: "P-9 Sidearm", Slot: SlotSecondary,
			Damage: 25, HeadDamage: 63, FireRate: 5.0,
			MagazineSize: 12, MaxAmmo: 60, ReloadTime: 1.4,
			Range: 60, Accuracy: 0.85, SpreadDeg: 3.0, Pellets: 1,
			Falloff: []FalloffBreakpoint{
				{Distance: 0, Multiplier: 1.0},
				{Distance: 25, Multiplier: 0.85},
				{Distance: 45, Multiplier: 0.7},
			},
		},
		{
			ID: "rifle", Name: "AR-54 Rifle", Slot: SlotPrimary,
			Damage: 30, HeadDamage: 90, FireRate: 10.0,
			MagazineSize: 30, MaxAmmo: 150, ReloadTime: 2.2,
			Range: 150, Accuracy: 0.9, SpreadDeg: 2.5, Pellets: 1,
			Penetrates: true,
			Falloff: []FalloffBreakpoint{
				{Distance: 0, Multiplier: 1.0},
				{Distance: 50, Multiplier: 0.9},
				{Distance: 100, Multiplier: 0.8},
			},
		},
		{
			ID: "smg", Name: "K-11 SMG", Slot: SlotPrimary,
			Damage: 22, HeadDamage: 44, FireRate: 14.0,
			MagazineSize: 25, MaxAmmo: 125, ReloadTime: 1.8,
			Range: 80, Accuracy: 0.75, SpreadDeg: 4.5, Pellets: 1,
			Falloff: []FalloffBreakpoint{
				{Distance: 0, Multiplier: 1.0},
				{Distance: 20, Multiplier: 0.9},
				{Distance: 40, Multiplier: 0.75},
				{Distance: 60, Multiplier: 0.6},
			},
		},
		{
			ID: "shotgun", Name: "M-8 Scattergun", Slot: SlotPrimary,
			Damage: 12, HeadDamage: 24, FireRate: 1.2,
			MagazineSize: 6, MaxAmmo: 30, ReloadTime: 3.0,
			Range: 30, Accuracy: 0.6, SpreadDeg: 8.0, Pellets: 8,
			Falloff: []FalloffBreakpoint{
				{Distance: 0, Multiplier: 1.0},
				{Distance: 10, Multiplier: 0.7},
				{Distance: 20, Multiplier: 0.4},
			},
		},
		{
			ID: "sniper", Name: "LR-308 Marksman", Slot: SlotPrimary,
			Damage: 90, HeadDamage: 225, FireRate: 0.8,
			MagazineSize: 5, MaxAmmo: 25, ReloadTime: 3.2,
			Range: 400, Accuracy: 0.98, SpreadDeg: 1.0, Pellets: 1,
			Penetrates: true,
			Falloff: []FalloffBreakpoint{
				{Distance: 0, Multiplier: 1.0},
				{Distance: 250, Multiplier: 0.95},
			},
		},
		{
			ID: "knife", Name: "Combat Knife", Slot: SlotMelee,
			Damage: 40, HeadDamage: 80, FireRate: 1.5,
			MagazineSize: InfiniteMagazine, MaxAmmo: InfiniteMagazine, ReloadTime: 0,
			Range: 2.5, Accuracy: 1.0, SpreadDeg: 0, Pellets: 1,
			Falloff: []FalloffBreakpoint{
				{Distance: 0, Multiplier: 1.0},
			},
		},
	}
}
