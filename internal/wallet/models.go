// Package wallet is the holder-side ledger of accepted prescription
// credentials and their dispense history.
//
// Acceptance is idempotent at the storage boundary: the existence check and
// the insert are one atomic operation, so two concurrent accepts of the same
// credential cannot both create an entry.
package wallet

import (
	"time"

	"rxchange/internal/credential"
	"rxchange/internal/verify"
)

// Decision is the holder's disposition of a verified credential.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	// DecisionAcceptedWithOverride marks an acceptance of an Indeterminate
	// report under pharmacist override. The report is stored as-is so the
	// override is auditable.
	DecisionAcceptedWithOverride Decision = "accepted_with_override"
	DecisionRejected             Decision = "rejected"
)

// WalletEntry is one accepted credential with its verification report and
// dispense history.
type WalletEntry struct {
	CredentialID string                             `json:"credentialId"`
	Credential   *credential.PrescriptionCredential `json:"credential"`
	Report       *verify.Report                     `json:"report"`
	Decision     Decision                           `json:"decision"`
	AcceptedAt   time.Time                          `json:"acceptedAt"`
	Dispenses    []DispenseRecord                   `json:"dispenses,omitempty"`
}

// DispenseRecord is one completed dispense against a wallet entry.
type DispenseRecord struct {
	CredentialID  string    `json:"credentialId"`
	DispensedAt   time.Time `json:"dispensedAt"`
	DaysSupply    int       `json:"daysSupply"`
	PharmacistRef string    `json:"pharmacistRef,omitempty"`
	Override      bool      `json:"override"`
	Note          string    `json:"note,omitempty"`
}

// RepeatStatus answers the repeat-eligibility query for UI countdowns.
type RepeatStatus struct {
	Eligible          bool      `json:"eligible"`
	DaysUntilEligible int       `json:"daysUntilEligible"`
	EarliestAt        time.Time `json:"earliestAt,omitzero"`
	RemainingRepeats  int       `json:"remainingRepeats"`
	Reason            string    `json:"reason,omitempty"`
}

// RejectionAck confirms a rejection was observed. Rejections are not
// persisted as credentials; they exist only in the audit trail.
type RejectionAck struct {
	CredentialID string    `json:"credentialId"`
	Reason       string    `json:"reason,omitempty"`
	RejectedAt   time.Time `json:"rejectedAt"`
}
