// Package temporal evaluates the time validity of prescription credentials.
//
// Everything here is a pure function of its inputs; the caller supplies the
// evaluation instant. Expiry windows use calendar arithmetic, so a six-month
// window lands on the same day-of-month regardless of how many days the
// intervening months have.
package temporal

import (
	"fmt"
	"time"

	"rxchange/internal/credential"
)

const (
	// ControlledValidityDays caps controlled-substance prescriptions.
	ControlledValidityDays = 30
	// StandardValidityMonths caps all other prescriptions.
	StandardValidityMonths = 6
)

// Proximity classifies how close a credential is to its effective expiry.
type Proximity string

const (
	ProximityNone   Proximity = "none"
	ProximityWeek   Proximity = "expires_within_7_days"
	ProximityDay    Proximity = "expires_within_24_hours"
	ProximityPassed Proximity = "expired"
)

// Result is the outcome of a validity evaluation.
type Result struct {
	Valid           bool
	Reason          string
	EffectiveExpiry time.Time
	Proximity       Proximity
}

// EffectiveExpiry returns the earlier of the stated expiry and the regulatory
// maximum for the prescription class.
func EffectiveExpiry(issuedAt, statedExpiry time.Time, controlled bool) time.Time {
	var regulatory time.Time
	if controlled {
		regulatory = issuedAt.AddDate(0, 0, ControlledValidityDays)
	} else {
		regulatory = issuedAt.AddDate(0, StandardValidityMonths, 0)
	}
	if statedExpiry.Before(regulatory) {
		return statedExpiry
	}
	return regulatory
}

// Evaluate checks a credential's validity at the given instant.
//
// A credential is valid from its issue instant through its effective expiry
// inclusive: at exactly the effective expiry it is still valid, one second
// later it is not.
func Evaluate(cred *credential.PrescriptionCredential, now time.Time) Result {
	effective := EffectiveExpiry(cred.IssuedAt, cred.ExpiresAt, cred.ControlledSubstance)

	if now.Before(cred.IssuedAt) {
		return Result{
			Valid:           false,
			Reason:          fmt.Sprintf("not valid until %s", cred.IssuedAt.Format(time.RFC3339)),
			EffectiveExpiry: effective,
			Proximity:       proximity(effective, now),
		}
	}
	if now.After(effective) {
		reason := "prescription has expired"
		if effective.Before(cred.ExpiresAt) {
			reason = "prescription exceeded its regulatory validity window"
		}
		return Result{
			Valid:           false,
			Reason:          reason,
			EffectiveExpiry: effective,
			Proximity:       ProximityPassed,
		}
	}
	return Result{
		Valid:           true,
		EffectiveExpiry: effective,
		Proximity:       proximity(effective, now),
	}
}

func proximity(effective, now time.Time) Proximity {
	remaining := effective.Sub(now)
	switch {
	case remaining < 0:
		return ProximityPassed
	case remaining <= 24*time.Hour:
		return ProximityDay
	case remaining <= 7*24*time.Hour:
		return ProximityWeek
	default:
		return ProximityNone
	}
}
