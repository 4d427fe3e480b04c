package credential

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalBytes returns the RFC 8785 (JCS) canonical JSON form of the
// credential with its proof removed. Signing and verification both go through
// this function; if the two sides ever disagree on a single byte, every
// signature fails, so nothing else in the repository may serialize a
// credential for cryptographic purposes.
func CanonicalBytes(c *PrescriptionCredential) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("credential is nil")
	}
	unsigned := *c
	unsigned.Proof = nil

	raw, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize credential: %w", err)
	}
	return canonical, nil
}
