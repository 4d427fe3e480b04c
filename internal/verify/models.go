// Package verify runs the full verification pipeline over a scanned
// prescription payload and produces an immutable report.
//
// Independent checks run concurrently inside one bounded time budget. A check
// that cannot reach its source of truth resolves to Indeterminate, never to a
// pass or a fail: unreachable infrastructure is neither proof of fraud nor
// proof of validity.
package verify

import (
	"time"

	"rxchange/internal/credential"
)

// CheckName identifies one of the named verification checks.
type CheckName string

const (
	CheckCodec         CheckName = "codec"
	CheckSignature     CheckName = "signature"
	CheckDIDResolution CheckName = "didResolution"
	CheckTrustRegistry CheckName = "trustRegistry"
	CheckRevocation    CheckName = "revocation"
	CheckTemporal      CheckName = "temporal"
)

// CheckOutcome is the result of a single check.
type CheckOutcome string

const (
	CheckPass CheckOutcome = "pass"
	CheckFail CheckOutcome = "fail"
	// CheckIndeterminate means the check's source of truth could not be
	// reached before the run's budget expired.
	CheckIndeterminate CheckOutcome = "indeterminate"
)

// Check is the recorded result of one named check.
type Check struct {
	Name      CheckName    `json:"name"`
	Outcome   CheckOutcome `json:"outcome"`
	Reason    string       `json:"reason,omitempty"`
	LatencyMS int64        `json:"latencyMs"`
}

// Outcome is the aggregate result of a verification run.
type Outcome string

const (
	OutcomeVerified      Outcome = "Verified"
	OutcomeRejected      Outcome = "Rejected"
	OutcomeIndeterminate Outcome = "Indeterminate"
)

// Report is the immutable result of one verification run. A fresh answer
// requires a fresh run; reports are never amended in place.
type Report struct {
	CredentialID string    `json:"credentialId,omitempty"`
	IssuerDID    string    `json:"issuerDid,omitempty"`
	Overall      Outcome   `json:"overall"`
	Checks       []Check   `json:"checks"`
	Warnings     []string  `json:"warnings,omitempty"`
	EvaluatedAt  time.Time `json:"evaluatedAt"`
	ElapsedMS    int64     `json:"elapsedMs"`

	// Credential is the decoded credential, populated when decoding
	// succeeded. It is carried for the accept flow, not serialized into the
	// report payload.
	Credential *credential.PrescriptionCredential `json:"-"`
}

// CheckByName returns the named check from the report.
func (r *Report) CheckByName(name CheckName) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// FailingChecks lists the names of checks that failed.
func (r *Report) FailingChecks() []CheckName {
	return r.checksWithOutcome(CheckFail)
}

// IndeterminateChecks lists the names of checks that could not conclude.
func (r *Report) IndeterminateChecks() []CheckName {
	return r.checksWithOutcome(CheckIndeterminate)
}

func (r *Report) checksWithOutcome(outcome CheckOutcome) []CheckName {
	var names []CheckName
	for _, c := range r.Checks {
		if c.Outcome == outcome {
			names = append(names, c.Name)
		}
	}
	return names
}

// aggregate applies the precedence rule: any fail rejects, else any
// indeterminate leaves the run inconclusive, else the credential is verified.
func aggregate(checks []Check) Outcome {
	overall := OutcomeVerified
	for _, c := range checks {
		switch c.Outcome {
		case CheckFail:
			return OutcomeRejected
		case CheckIndeterminate:
			overall = OutcomeIndeterminate
		}
	}
	return overall
}
