// Package testutil provides fixtures and helpers shared across test suites.
package testutil

import (
	"crypto/ed25519"
	"testing"
	"time"

	"rxchange/internal/credential"
)

// FixedIssueTime is the deterministic issuance instant used across suites.
var FixedIssueTime = time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)

// CredentialBuilder builds test prescription credentials with sensible
// defaults, overridable per test.
type CredentialBuilder struct {
	id         string
	issuerDID  string
	patientRef string
	meds       []credential.Medication
	issuedAt   time.Time
	expiresAt  time.Time
	repeats     int
	controlled  bool
	minInterval int
}

// NewCredential starts a builder for a standard 7-day antibiotic script.
func NewCredential(id string) *CredentialBuilder {
	return &CredentialBuilder{
		id:         id,
		issuerDID:  "did:web:clinic.example:dr-a",
		patientRef: "patient-77",
		meds: []credential.Medication{
			{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily", DurationDays: 7, Quantity: 21},
		},
		issuedAt:  FixedIssueTime,
		expiresAt: FixedIssueTime.AddDate(0, 6, 0),
		repeats:   1,
	}
}

func (b *CredentialBuilder) Issuer(did string) *CredentialBuilder {
	b.issuerDID = did
	return b
}

func (b *CredentialBuilder) Medications(meds ...credential.Medication) *CredentialBuilder {
	b.meds = meds
	return b
}

func (b *CredentialBuilder) IssuedAt(t time.Time) *CredentialBuilder {
	b.issuedAt = t
	return b
}

func (b *CredentialBuilder) ExpiresAt(t time.Time) *CredentialBuilder {
	b.expiresAt = t
	return b
}

func (b *CredentialBuilder) Repeats(n int) *CredentialBuilder {
	b.repeats = n
	return b
}

func (b *CredentialBuilder) Controlled() *CredentialBuilder {
	b.controlled = true
	return b
}

func (b *CredentialBuilder) MinRepeatInterval(days int) *CredentialBuilder {
	b.minInterval = days
	return b
}

// Build constructs the credential, failing the test on invariant violations.
func (b *CredentialBuilder) Build(t testing.TB) *credential.PrescriptionCredential {
	t.Helper()
	c, err := credential.New(b.id, b.issuerDID, b.patientRef, b.meds,
		b.issuedAt, b.expiresAt, b.repeats, b.controlled,
		credential.WithMinRepeatInterval(b.minInterval))
	if err != nil {
		t.Fatalf("build credential: %v", err)
	}
	return c
}

// BuildSigned constructs and signs the credential with the given key.
func (b *CredentialBuilder) BuildSigned(t testing.TB, key ed25519.PrivateKey, verificationMethod string) *credential.PrescriptionCredential {
	t.Helper()
	c := b.Build(t)
	signer, err := credential.NewSigner(key, verificationMethod)
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}
	if err := signer.Sign(c, b.issuedAt); err != nil {
		t.Fatalf("sign credential: %v", err)
	}
	return c
}
