// Package credential defines the prescription credential aggregate.
//
// A credential is created once by an issuer, signed, and immutable from then
// on. Any mutation after signing must be detected by the signature check, so
// the canonical byte form produced here is the single source of truth for
// both signing and verification.
package credential

import (
	"errors"
	"time"
)

// SchemaVersion is the wire schema version this build understands.
const SchemaVersion = "1.0"

// ProofTypeEd25519 is the only proof suite supported for prescription
// credentials.
const ProofTypeEd25519 = "Ed25519Signature2020"

var (
	errMissingID          = errors.New("credential id is required")
	errMissingIssuer      = errors.New("issuer DID is required")
	errMissingSubject     = errors.New("subject reference is required")
	errNoMedications      = errors.New("at least one medication is required")
	errMissingIssuedAt    = errors.New("issued_at is required")
	errExpiryBeforeIssue  = errors.New("expires_at must be after issued_at")
	errNegativeRepeats    = errors.New("repeats_allowed cannot be negative")
	errInvalidMedication  = errors.New("medication name, dosage and quantity are required")
	errAlreadySigned      = errors.New("credential is already signed")
	errNegativeInterval   = errors.New("min_repeat_interval_days cannot be negative")
	errDurationNotGiven   = errors.New("medication duration_days must be positive")
	errQuantityNotGiven   = errors.New("medication quantity must be positive")
	errFrequencyNotGiven  = errors.New("medication frequency is required")
	errCreatedBeforeIssue = errors.New("proof created before credential issued_at")
)

// Medication is one prescribed line item.
type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	DurationDays int    `json:"durationDays"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions,omitempty"`
}

// Proof is a detached signature over the canonical byte form of the
// credential with the proof itself removed.
type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	SignatureValue     []byte    `json:"signatureValue"`
}

// PrescriptionCredential is the signed artifact exchanged between prescriber,
// holder, and pharmacist. Field names and JSON tags are part of the wire
// contract; changing either breaks every previously issued signature.
type PrescriptionCredential struct {
	SchemaVersion       string       `json:"schemaVersion"`
	ID                  string       `json:"id"`
	IssuerDID           string       `json:"issuerDid"`
	SubjectRef          string       `json:"subjectRef"`
	Medications         []Medication `json:"medications"`
	IssuedAt            time.Time    `json:"issuedAt"`
	ExpiresAt           time.Time    `json:"expiresAt"`
	RepeatsAllowed      int          `json:"repeatsAllowed"`
	ControlledSubstance bool         `json:"controlledSubstance"`
	// MinRepeatIntervalDays is a prescriber-set floor on the gap between
	// dispenses. Zero means the supply-based default applies.
	MinRepeatIntervalDays int    `json:"minRepeatIntervalDays,omitempty"`
	Proof                 *Proof `json:"proof,omitempty"`
}

// Option sets an optional attribute at construction time.
type Option func(*PrescriptionCredential)

// WithMinRepeatInterval sets the prescriber-defined minimum number of days
// between dispenses. It is part of the signed content.
func WithMinRepeatInterval(days int) Option {
	return func(c *PrescriptionCredential) {
		c.MinRepeatIntervalDays = days
	}
}

// New constructs an unsigned credential with validated invariants.
// Timestamps are normalized to whole seconds UTC so the canonical form
// survives a JSON round trip byte-for-byte.
func New(
	id string,
	issuerDID string,
	subjectRef string,
	medications []Medication,
	issuedAt time.Time,
	expiresAt time.Time,
	repeatsAllowed int,
	controlledSubstance bool,
	opts ...Option,
) (*PrescriptionCredential, error) {
	if id == "" {
		return nil, errMissingID
	}
	if issuerDID == "" {
		return nil, errMissingIssuer
	}
	if subjectRef == "" {
		return nil, errMissingSubject
	}
	if len(medications) == 0 {
		return nil, errNoMedications
	}
	for _, m := range medications {
		if m.Name == "" || m.Dosage == "" {
			return nil, errInvalidMedication
		}
		if m.Frequency == "" {
			return nil, errFrequencyNotGiven
		}
		if m.DurationDays <= 0 {
			return nil, errDurationNotGiven
		}
		if m.Quantity <= 0 {
			return nil, errQuantityNotGiven
		}
	}
	if issuedAt.IsZero() {
		return nil, errMissingIssuedAt
	}
	issuedAt = issuedAt.UTC().Truncate(time.Second)
	expiresAt = expiresAt.UTC().Truncate(time.Second)
	if !expiresAt.After(issuedAt) {
		return nil, errExpiryBeforeIssue
	}
	if repeatsAllowed < 0 {
		return nil, errNegativeRepeats
	}

	c := &PrescriptionCredential{
		SchemaVersion:       SchemaVersion,
		ID:                  id,
		IssuerDID:           issuerDID,
		SubjectRef:          subjectRef,
		Medications:         medications,
		IssuedAt:            issuedAt,
		ExpiresAt:           expiresAt,
		RepeatsAllowed:      repeatsAllowed,
		ControlledSubstance: controlledSubstance,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.MinRepeatIntervalDays < 0 {
		return nil, errNegativeInterval
	}
	return c, nil
}

// IsSigned reports whether the credential carries a proof.
func (c *PrescriptionCredential) IsSigned() bool {
	return c != nil && c.Proof != nil
}

// Validate re-checks issuance invariants on a received credential.
// Issuance-time validation is never trusted across the wire.
func (c *PrescriptionCredential) Validate() error {
	_, err := New(c.ID, c.IssuerDID, c.SubjectRef, c.Medications,
		c.IssuedAt, c.ExpiresAt, c.RepeatsAllowed, c.ControlledSubstance,
		WithMinRepeatInterval(c.MinRepeatIntervalDays))
	return err
}

// TotalDaysSupply is the longest prescribed duration across medications.
// Repeat interval policy falls back to this value when a dispense did not
// record its own days-supply.
func (c *PrescriptionCredential) TotalDaysSupply() int {
	max := 0
	for _, m := range c.Medications {
		if m.DurationDays > max {
			max = m.DurationDays
		}
	}
	return max
}
