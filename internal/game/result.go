package game

// Reason identifies why a request was rejected. These are expected
// outcomes, not errors: clients act on them (UI cues), the server only
// logs them at debug level.
type Reason string

const (
	ReasonRateLimitExceeded Reason = "RateLimitExceeded"
	ReasonMuted             Reason = "Muted"
	ReasonInvalidDirection  Reason = "InvalidDirection"
	ReasonOutOfRange        Reason = "OutOfRange"
	ReasonBadTimestamp      Reason = "BadTimestamp"
	ReasonUnknownWeapon     Reason = "UnknownWeapon"
	ReasonWrongWeapon       Reason = "WrongWeapon"
	ReasonNoAmmo            Reason = "NoAmmo"
	ReasonReloading         Reason = "Reloading"
	ReasonMagazineFull      Reason = "MagazineFull"
	ReasonNoReserveAmmo     Reason = "NoReserveAmmo"
	ReasonFiringTooFast     Reason = "FiringTooFast"
	ReasonNotAlive          Reason = "NotAlive"
	ReasonUnknownPlayer     Reason = "UnknownPlayer"
	ReasonUnknownSlot       Reason = "UnknownSlot"
	ReasonMatchFull         Reason = "MatchFull"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(r Reason) Decision { return Decision{Allowed: false, Reason: r} }
