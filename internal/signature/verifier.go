// Package signature verifies detached credential proofs against resolved DID
// documents.
//
// Verification is offline once the document is in hand: canonical bytes are
// re-derived locally and checked against the proof. Any failure here is
// terminal, never transient.
package signature

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"rxchange/internal/credential"
	"rxchange/internal/didresolver"
	dErrors "rxchange/pkg/domain-errors"
)

// Verify checks a credential's detached proof against the issuer's DID
// document.
//
// The failure taxonomy, all under CodeCryptographicFailure:
//   - the credential carries no proof
//   - the proof type is not a supported suite
//   - the verification method belongs to a different DID than the issuer
//   - the document publishes no such verification method
//   - the signature does not verify over the canonical bytes
func Verify(cred *credential.PrescriptionCredential, doc *didresolver.Document) error {
	if cred == nil || doc == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "credential and document are required")
	}
	if !cred.IsSigned() {
		return dErrors.New(dErrors.CodeCryptographicFailure, "credential carries no proof")
	}
	proof := cred.Proof

	if proof.Type != credential.ProofTypeEd25519 {
		return dErrors.New(dErrors.CodeCryptographicFailure,
			fmt.Sprintf("unsupported proof type %q", proof.Type))
	}

	// The verification method must be controlled by the issuer DID. A valid
	// signature from someone else's key is still a forgery.
	if controller, _, found := strings.Cut(proof.VerificationMethod, "#"); !found || controller != cred.IssuerDID {
		return dErrors.New(dErrors.CodeCryptographicFailure,
			fmt.Sprintf("verification method %q is not controlled by issuer %s",
				proof.VerificationMethod, cred.IssuerDID))
	}

	method, err := doc.Method(proof.VerificationMethod)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeCryptographicFailure,
			"issuer document does not publish the proof's verification method")
	}
	key, err := method.Ed25519Key()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeCryptographicFailure,
			"verification method carries unusable key material")
	}

	canonical, err := credential.CanonicalBytes(cred)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "canonicalize credential")
	}
	if !ed25519.Verify(key, canonical, proof.SignatureValue) {
		return dErrors.New(dErrors.CodeCryptographicFailure,
			"signature does not verify over credential content")
	}
	return nil
}

// ResolveKey locates a verification method in the issuer document and decodes
// its ed25519 key. Used for reference token verification, where the key is
// named by the token's kid header rather than a credential proof.
func ResolveKey(doc *didresolver.Document, methodID string) (ed25519.PublicKey, error) {
	method, err := doc.Method(methodID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCryptographicFailure,
			"issuer document does not publish the named verification method")
	}
	key, err := method.Ed25519Key()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCryptographicFailure,
			"verification method carries unusable key material")
	}
	return key, nil
}
