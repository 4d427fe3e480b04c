// Package exchange implements the credential handover protocol: the issuer
// side mints, signs, and presents prescriptions as QR artifacts; the holder
// side scans, verifies, and decides.
//
// A QR artifact has its own short validity window, independent of the
// credential's expiry. An expired QR is regenerated with a fresh window; the
// underlying credential is never re-signed for that.
package exchange

import (
	"time"

	"rxchange/internal/credential"
	"rxchange/pkg/domain"
)

// OfferState is the issuer-side lifecycle state of an exchange offer.
type OfferState string

const (
	StateDraft       OfferState = "draft"
	StateSigned      OfferState = "signed"
	StateQRGenerated OfferState = "qr_generated"
	StateMarkedGiven OfferState = "marked_given"
)

// validTransitions encodes the one-way lifecycle. Regenerating a QR is the
// only self-transition.
var validTransitions = map[OfferState][]OfferState{
	StateDraft:       {StateSigned},
	StateSigned:      {StateQRGenerated},
	StateQRGenerated: {StateQRGenerated, StateMarkedGiven},
	StateMarkedGiven: {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to OfferState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// QRArtifact is a generated QR payload with its validity window.
type QRArtifact struct {
	Token       string    `json:"token"`
	GeneratedAt time.Time `json:"generatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Offer is an issuer-side credential handover in progress.
type Offer struct {
	ID         domain.OfferID                     `json:"id"`
	State      OfferState                         `json:"state"`
	Credential *credential.PrescriptionCredential `json:"credential"`
	QR         *QRArtifact                        `json:"qr,omitempty"`
	CreatedAt  time.Time                          `json:"createdAt"`
	SignedAt   time.Time                          `json:"signedAt,omitzero"`
	GivenAt    time.Time                          `json:"givenAt,omitzero"`
}
