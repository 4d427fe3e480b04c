// Package didresolver resolves issuer DIDs to their published documents.
//
// Resolution failures keep the distinction the verification pipeline depends
// on: a DID that does not exist is terminal, while a resolver outage is a
// transient condition the caller must not conflate with non-existence.
package didresolver

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	dErrors "rxchange/pkg/domain-errors"
)

// VerificationMethod is a public key entry published in a DID document.
type VerificationMethod struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller"`
	PublicKeyBase64 string `json:"publicKeyBase64"`
}

// Ed25519Key decodes the published key material. Only 32-byte ed25519 keys
// are accepted; anything else is a malformed document entry.
func (m VerificationMethod) Ed25519Key() (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(m.PublicKeyBase64)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "verification method key is not valid base64")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, dErrors.New(dErrors.CodeMalformed,
			fmt.Sprintf("verification method key has %d bytes, want %d", len(raw), ed25519.PublicKeySize))
	}
	return ed25519.PublicKey(raw), nil
}

// Document is a resolved DID document.
type Document struct {
	DID                 string               `json:"id"`
	VerificationMethods []VerificationMethod `json:"verificationMethod"`
}

// Method returns the verification method with the given ID, or an error when
// the document publishes no such key.
func (d *Document) Method(id string) (VerificationMethod, error) {
	for _, m := range d.VerificationMethods {
		if m.ID == id {
			return m, nil
		}
	}
	return VerificationMethod{}, dErrors.New(dErrors.CodeNotFound,
		fmt.Sprintf("document for %s has no verification method %s", d.DID, id))
}
