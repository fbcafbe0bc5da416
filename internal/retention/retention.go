// Package retention implements the memory engine's retention model
// (C1): a pure function of stability, importance, and elapsed time.
package retention

import (
	"math"
	"time"
)

// DefaultDecayBaseDays is the base time constant (in days) used when a
// backend isn't configured with an operator-supplied override
// (config's decay_base_days, §6).
const DefaultDecayBaseDays = 30.0

// importanceBoostFactor is the coefficient applied to importance when
// stretching the decay time constant: boost = 1 + factor*i.
const importanceBoostFactor = 2.0

// Compute returns the retention — an instantaneous probability-of-recall
// proxy in [0,1] — for a memory with the given stability, importance,
// and last-accessed timestamp, evaluated at now. decayBaseDays is the
// base time constant (in days) the forgetting curve is stretched by;
// pass DefaultDecayBaseDays absent an operator override.
//
//	days_elapsed = (now - lastAccessed) / 86400s
//	boost        = 1 + importanceBoostFactor*importance
//	tau          = max(1, stability * boost * decayBaseDays)
//	retention    = clamp(exp(-days_elapsed / tau), 0, 1)
//
// If expiresAt is non-nil and now is after it, retention is forced to
// zero regardless of stability or importance.
func Compute(stability, importance float64, lastAccessed, now time.Time, expiresAt *time.Time, decayBaseDays float64) float64 {
	if expiresAt != nil && now.After(*expiresAt) {
		return 0
	}

	daysElapsed := now.Sub(lastAccessed).Hours() / 24.0
	boost := 1 + importanceBoostFactor*importance
	tau := math.Max(1, stability*boost*decayBaseDays)

	r := math.Exp(-daysElapsed / tau)
	return clamp01(r)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ReinforceSpacingBonus returns the stability bump applied when a
// memory last accessed daysSinceAccess days ago is reinforced again
// now (§4.4). Capped at 2.0, so the maximum single bump to stability
// is 0.2.
func ReinforceSpacingBonus(daysSinceAccess float64) float64 {
	bonus := daysSinceAccess / 7.0
	if bonus > 2.0 {
		bonus = 2.0
	}
	if bonus < 0 {
		bonus = 0
	}
	return bonus
}

// Reinforce returns the new stability after reinforcing a memory with
// the given current stability, last-accessed timestamp, and now.
// stability' = min(1.0, stability + 0.1*spacing_bonus).
func Reinforce(stability float64, lastAccessed, now time.Time) float64 {
	daysSince := now.Sub(lastAccessed).Hours() / 24.0
	bonus := ReinforceSpacingBonus(daysSince)
	next := stability + 0.1*bonus
	if next > 1.0 {
		next = 1.0
	}
	return next
}
