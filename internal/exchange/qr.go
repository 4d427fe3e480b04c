package exchange

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "rxchange/pkg/domain-errors"
)

// DefaultQRValidity is how long a generated QR artifact stays scannable.
const DefaultQRValidity = 5 * time.Minute

// QRSigner wraps transport payloads into short-lived signed QR tokens. The
// signature binds the window to the payload so a stale screenshot cannot be
// replayed past its validity.
type QRSigner struct {
	key      ed25519.PrivateKey
	validity time.Duration
}

// NewQRSigner creates a signer; validity <= 0 uses the default window.
func NewQRSigner(key ed25519.PrivateKey, validity time.Duration) (*QRSigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "QR signing key must be an ed25519 private key")
	}
	if validity <= 0 {
		validity = DefaultQRValidity
	}
	return &QRSigner{key: key, validity: validity}, nil
}

// PublicKey returns the verification key for scanners.
func (s *QRSigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Wrap signs a payload into a QR artifact valid from now.
func (s *QRSigner) Wrap(payload []byte, now time.Time) (*QRArtifact, error) {
	now = now.UTC().Truncate(time.Second)
	expiresAt := now.Add(s.validity)

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"iat":     now.Unix(),
		"exp":     expiresAt.Unix(),
		"payload": base64.RawURLEncoding.EncodeToString(payload),
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign QR token")
	}
	return &QRArtifact{Token: signed, GeneratedAt: now, ExpiresAt: expiresAt}, nil
}

// UnwrapQR verifies a scanned QR token and returns the transport payload.
//
// An expired window yields CodePolicyViolation: the credential inside may
// still be perfectly valid, the presenter just needs a fresh QR. A bad
// signature yields CodeCryptographicFailure.
func UnwrapQR(token string, key ed25519.PublicKey, now time.Time) ([]byte, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.Parse(token, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodePolicyViolation,
				"QR code has expired, ask the issuer to regenerate it")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeCryptographicFailure, "QR token signature invalid")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeMalformed, "QR token claims malformed")
	}
	encoded, _ := claims["payload"].(string)
	if encoded == "" {
		return nil, dErrors.New(dErrors.CodeMalformed, "QR token carries no payload")
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "QR payload is not valid base64")
	}
	return payload, nil
}
