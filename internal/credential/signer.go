package credential

import (
	"crypto/ed25519"
	"fmt"
	"time"
)

// Signer produces detached Ed25519 proofs over canonical credential bytes.
// In production the private key lives inside the SSI agent; this type exists
// for the issuer-side service and the demo CLI, which play that role locally.
type Signer struct {
	key                ed25519.PrivateKey
	verificationMethod string
}

// NewSigner creates a signer bound to one verification method reference
// (e.g. "did:web:clinic.example:dr-n-dlamini#key-1").
func NewSigner(key ed25519.PrivateKey, verificationMethod string) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key size %d", len(key))
	}
	if verificationMethod == "" {
		return nil, fmt.Errorf("verification method reference is required")
	}
	return &Signer{key: key, verificationMethod: verificationMethod}, nil
}

// Sign attaches a proof to the credential. Signing an already signed
// credential is refused; immutability after issuance is the whole point.
func (s *Signer) Sign(c *PrescriptionCredential, now time.Time) error {
	if c.IsSigned() {
		return errAlreadySigned
	}
	now = now.UTC().Truncate(time.Second)
	if now.Before(c.IssuedAt) {
		return errCreatedBeforeIssue
	}

	canonical, err := CanonicalBytes(c)
	if err != nil {
		return err
	}

	c.Proof = &Proof{
		Type:               ProofTypeEd25519,
		Created:            now,
		VerificationMethod: s.verificationMethod,
		SignatureValue:     ed25519.Sign(s.key, canonical),
	}
	return nil
}

// PublicKey returns the signer's public key, for registering the
// verification method in a DID document.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}
