// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "rxchange/pkg/domain-errors"
)

// CredentialID is the opaque, globally unique identifier of a prescription
// credential. Issuers mint UUIDs, but verifiers treat the value as opaque.
type CredentialID string

// OfferID identifies an issuer-side exchange offer. Offers are local to this
// service, so the UUID shape is enforced.
type OfferID uuid.UUID

// DID is a decentralized identifier (e.g. "did:web:clinic.example:dr-n-dlamini").
// Only syntactic validation happens here; resolution is a separate concern.
type DID string

// SubjectRef identifies the patient a prescription is for. It may be a DID or
// a pseudonymous opaque reference, so it is validated only for presence.
type SubjectRef string

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseCredentialID(s string) (CredentialID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential ID cannot be empty")
	}
	if len(s) > 128 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential ID too long")
	}
	return CredentialID(s), nil
}

func ParseOfferID(s string) (OfferID, error) {
	if s == "" {
		return OfferID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "offer ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return OfferID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "invalid offer ID format")
	}
	return OfferID(id), nil
}

// ParseDID validates the minimal did:<method>:<id> shape.
func ParseDID(s string) (DID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "DID cannot be empty")
	}
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid DID format")
	}
	return DID(s), nil
}

func ParseSubjectRef(s string) (SubjectRef, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject reference cannot be empty")
	}
	return SubjectRef(s), nil
}

// NewCredentialID generates a fresh credential identifier.
func NewCredentialID() CredentialID { return CredentialID(uuid.NewString()) }

// NewOfferID generates a fresh offer identifier.
func NewOfferID() OfferID { return OfferID(uuid.New()) }

// String methods - for logging and debugging.

func (id CredentialID) String() string { return string(id) }
func (id OfferID) String() string      { return uuid.UUID(id).String() }
func (d DID) String() string           { return string(d) }
func (r SubjectRef) String() string    { return string(r) }

// MarshalText and UnmarshalText keep OfferID rendering as the canonical UUID
// string in JSON bodies and URL parameters.

func (id OfferID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *OfferID) UnmarshalText(b []byte) error {
	parsed, err := ParseOfferID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsNil checks - used for service-layer validation.

func (id CredentialID) IsNil() bool { return id == "" }
func (id OfferID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (d DID) IsNil() bool           { return d == "" }
func (r SubjectRef) IsNil() bool    { return r == "" }
