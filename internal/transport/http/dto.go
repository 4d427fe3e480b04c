package httptransport

import (
	"encoding/json"
	"time"

	"rxchange/internal/credential"
	dErrors "rxchange/pkg/domain-errors"
	strutil "rxchange/pkg/platform/strings"
	"rxchange/pkg/validation"
)

// CreateOfferRequest drafts a new prescription offer. Issuance invariants are
// enforced by the credential constructor; tags screen the obvious.
type CreateOfferRequest struct {
	CredentialID   string                  `json:"credentialId" validate:"required,notblank,max=128"`
	IssuerDID      string                  `json:"issuerDid" validate:"required,notblank"`
	PatientRef     string                  `json:"patientRef" validate:"required,notblank"`
	Medications    []credential.Medication `json:"medications" validate:"required,min=1,max=20"`
	IssuedAt       time.Time               `json:"issuedAt"`
	ExpiresAt      time.Time               `json:"expiresAt"`
	RepeatsAllowed int                     `json:"repeatsAllowed" validate:"min=0,max=12"`
	Controlled     bool                    `json:"controlled"`
	// MinRepeatIntervalDays is the prescriber's floor on the gap between
	// dispenses; zero leaves the supply-based default in force.
	MinRepeatIntervalDays int `json:"minRepeatIntervalDays,omitempty" validate:"min=0,max=365"`
}

func (r *CreateOfferRequest) Validate() error {
	strutil.TrimStrings(&r.CredentialID, &r.IssuerDID, &r.PatientRef)
	return validation.Validate(r)
}

// ScanRequest carries a scanned QR token.
type ScanRequest struct {
	QRToken string `json:"qrToken" validate:"required,notblank"`
}

func (r *ScanRequest) Validate() error {
	return validation.Validate(r)
}

// VerifyRequest carries a raw transport payload, bypassing the QR wrapper.
// Used by integrations that receive payloads over channels other than QR.
type VerifyRequest struct {
	Payload json.RawMessage `json:"payload"`
}

func (r *VerifyRequest) Validate() error {
	if len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	return nil
}

// DecisionRequest records the pharmacist's accept/reject call for a
// previously scanned credential.
type DecisionRequest struct {
	CredentialID string `json:"credentialId" validate:"required,notblank"`
	Accept       bool   `json:"accept"`
	Override     bool   `json:"override"`
	Reason       string `json:"reason,omitempty" validate:"max=500"`
}

func (r *DecisionRequest) Validate() error {
	return validation.Validate(r)
}

// DispenseRequest records a fill against a wallet entry.
type DispenseRequest struct {
	DaysSupply    int    `json:"daysSupply,omitempty" validate:"min=0,max=365"`
	Override      bool   `json:"override,omitempty"`
	PharmacistRef string `json:"pharmacistRef,omitempty" validate:"max=128"`
	Note          string `json:"note,omitempty" validate:"max=500"`
}

func (r *DispenseRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	// An early-repeat override is a professional judgement call and must be
	// attributable.
	if r.Override && r.PharmacistRef == "" {
		return dErrors.New(dErrors.CodeValidation, "an override must name the authorising pharmacist")
	}
	return nil
}
