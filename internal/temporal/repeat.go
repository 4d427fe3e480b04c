package temporal

import (
	"fmt"
	"time"

	"rxchange/internal/credential"
)

// repeatThresholdNum/Den: a repeat becomes eligible once 75% of the prior
// dispense's days-supply has elapsed.
const (
	repeatThresholdNum = 3
	repeatThresholdDen = 4
)

// Eligibility is the outcome of a repeat eligibility evaluation.
type Eligibility struct {
	Eligible bool
	// Overridden marks an eligibility granted by pharmacist override despite
	// the supply threshold not being met.
	Overridden bool
	Reason     string
	// EarliestAt is when the threshold is met. Zero when no further dispense
	// is possible at all.
	EarliestAt       time.Time
	DispensesUsed    int
	DispensesAllowed int
	RemainingRepeats int
}

// RepeatEligibility decides whether a credential can be dispensed again.
//
// dispensesUsed counts completed dispenses including the initial fill.
// lastDispensedAt and priorDaysSupply describe the most recent dispense; both
// are ignored when dispensesUsed is zero, and a zero priorDaysSupply falls
// back to the credential's own days-supply. The waiting period is 75% of the
// prior supply, or the prescriber's minimum interval when that is longer. An
// override makes an early repeat eligible but never restores exhausted
// repeats or revives an expired prescription.
func RepeatEligibility(cred *credential.PrescriptionCredential, dispensesUsed int, lastDispensedAt time.Time, priorDaysSupply int, now time.Time, override bool) Eligibility {
	allowed := cred.RepeatsAllowed + 1 // initial fill plus repeats
	e := Eligibility{
		DispensesUsed:    dispensesUsed,
		DispensesAllowed: allowed,
		RemainingRepeats: allowed - dispensesUsed,
	}
	if e.RemainingRepeats < 0 {
		e.RemainingRepeats = 0
	}

	if dispensesUsed >= allowed {
		e.Reason = "all repeats have been used"
		return e
	}

	validity := Evaluate(cred, now)
	if !validity.Valid {
		e.Reason = validity.Reason
		return e
	}

	if dispensesUsed == 0 {
		e.Eligible = true
		e.EarliestAt = cred.IssuedAt
		return e
	}

	if priorDaysSupply <= 0 {
		priorDaysSupply = cred.TotalDaysSupply()
	}
	supplyHours := priorDaysSupply * 24
	threshold := time.Duration(supplyHours*repeatThresholdNum/repeatThresholdDen) * time.Hour
	if floor := time.Duration(cred.MinRepeatIntervalDays) * 24 * time.Hour; floor > threshold {
		threshold = floor
	}
	e.EarliestAt = lastDispensedAt.Add(threshold)

	if now.Before(e.EarliestAt) {
		if override {
			e.Eligible = true
			e.Overridden = true
			e.Reason = "early repeat granted by pharmacist override"
			return e
		}
		e.Reason = fmt.Sprintf("repeat available from %s", e.EarliestAt.Format(time.RFC3339))
		return e
	}

	e.Eligible = true
	return e
}
