// Package codec serializes prescription credentials to and from the compact
// transport payload carried inside a QR artifact.
//
// Small credentials are embedded directly; credentials over the transport
// budget are replaced by a signed reference that the verifier must fetch and
// re-verify through the exact same pipeline. There is no trust shortcut for
// the reference form.
package codec

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"rxchange/internal/credential"
	dErrors "rxchange/pkg/domain-errors"
)

// DefaultTransportBudget is the maximum embedded payload size in bytes,
// leaving headroom for QR error-correction overhead.
const DefaultTransportBudget = 2500

// PayloadKind discriminates the two envelope forms.
type PayloadKind string

const (
	PayloadEmbedded  PayloadKind = "embedded"
	PayloadReference PayloadKind = "reference"
)

// Reference points at a credential too large to embed. The refToken is an
// EdDSA JWS minted by the issuer over the reference fields, verified against
// the same DID document as the credential proof itself.
type Reference struct {
	CredentialID string `json:"credentialId"`
	IssuerDID    string `json:"issuerDid"`
	FetchURL     string `json:"fetchUrl"`
	RefToken     string `json:"refToken"`
}

// Envelope is the decoded transport payload.
type Envelope struct {
	Version    string                             `json:"v"`
	Kind       PayloadKind                        `json:"kind"`
	Credential *credential.PrescriptionCredential `json:"credential,omitempty"`
	Reference  *Reference                         `json:"reference,omitempty"`
}

// Payload is the encoded transport payload.
type Payload struct {
	Kind  PayloadKind
	Bytes []byte
}

// Option configures the Codec.
type Option func(*Codec)

// WithTransportBudget overrides the embedded payload size limit.
func WithTransportBudget(budget int) Option {
	return func(c *Codec) {
		if budget > 0 {
			c.budget = budget
		}
	}
}

// WithReferenceIssuer enables reference payloads for oversized credentials.
// The key signs refTokens and must be the same issuer key whose verification
// method appears in the DID document.
func WithReferenceIssuer(fetchBaseURL string, key ed25519.PrivateKey, verificationMethod string) Option {
	return func(c *Codec) {
		c.fetchBaseURL = fetchBaseURL
		c.refKey = key
		c.refMethod = verificationMethod
	}
}

// Codec encodes and decodes transport payloads.
type Codec struct {
	budget       int
	schema       *jsonschema.Schema
	fetchBaseURL string
	refKey       ed25519.PrivateKey
	refMethod    string
}

// New compiles the payload schema and returns a ready codec.
func New(opts ...Option) (*Codec, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("payload.json", bytes.NewReader([]byte(payloadSchema))); err != nil {
		return nil, fmt.Errorf("add payload schema: %w", err)
	}
	schema, err := compiler.Compile("payload.json")
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	c := &Codec{
		budget: DefaultTransportBudget,
		schema: schema,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode serializes a signed credential into a transport payload.
// Credentials within the budget are embedded; larger ones become a signed
// reference, which requires WithReferenceIssuer to have been configured.
func (c *Codec) Encode(cred *credential.PrescriptionCredential) (*Payload, error) {
	if cred == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential is required")
	}
	if !cred.IsSigned() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential must be signed before encoding")
	}

	embedded, err := json.Marshal(Envelope{
		Version:    credential.SchemaVersion,
		Kind:       PayloadEmbedded,
		Credential: cred,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode credential payload")
	}

	if len(embedded) <= c.budget {
		return &Payload{Kind: PayloadEmbedded, Bytes: embedded}, nil
	}

	return c.encodeReference(cred)
}

func (c *Codec) encodeReference(cred *credential.PrescriptionCredential) (*Payload, error) {
	if c.refKey == nil || c.fetchBaseURL == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			"credential exceeds transport budget and no reference issuer is configured")
	}

	fetchURL := c.fetchBaseURL + "/" + cred.ID
	token, err := c.signReference(cred.ID, cred.IssuerDID, fetchURL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign reference token")
	}

	payload, err := json.Marshal(Envelope{
		Version: credential.SchemaVersion,
		Kind:    PayloadReference,
		Reference: &Reference{
			CredentialID: cred.ID,
			IssuerDID:    cred.IssuerDID,
			FetchURL:     fetchURL,
			RefToken:     token,
		},
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode reference payload")
	}
	return &Payload{Kind: PayloadReference, Bytes: payload}, nil
}

// signReference mints the EdDSA JWS binding credential ID to fetch location.
func (c *Codec) signReference(credentialID, issuerDID, fetchURL string) (string, error) {
	claims := jwt.MapClaims{
		"sub": credentialID,
		"iss": issuerDID,
		"aud": fetchURL,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = c.refMethod
	return token.SignedString(c.refKey)
}

// Decode parses and schema-validates a transport payload.
//
// Errors carry the verification failure taxonomy: CodeMalformed for invalid
// JSON or schema violations, CodeUnsupportedVersion for a version this build
// does not understand. Both are terminal.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "payload is not valid JSON")
	}
	if err := c.schema.Validate(generic); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "payload does not match schema")
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "payload does not match envelope shape")
	}

	if env.Version != credential.SchemaVersion {
		return nil, dErrors.New(dErrors.CodeUnsupportedVersion,
			fmt.Sprintf("unsupported payload version %q", env.Version))
	}

	if env.Kind == PayloadEmbedded {
		// Issuance invariants are re-checked on receipt, never trusted.
		if err := env.Credential.Validate(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "credential violates issuance invariants")
		}
		// Normalize timestamps the way issuance does, so canonical bytes
		// re-serialize identically.
		env.Credential.IssuedAt = env.Credential.IssuedAt.UTC().Truncate(time.Second)
		env.Credential.ExpiresAt = env.Credential.ExpiresAt.UTC().Truncate(time.Second)
		if env.Credential.Proof != nil {
			env.Credential.Proof.Created = env.Credential.Proof.Created.UTC().Truncate(time.Second)
		}
	}

	return &env, nil
}

// ReferenceVerificationMethod extracts the verification method ID (the kid
// header) from a reference token without verifying it. The caller resolves
// the named key from the issuer's DID document and then calls
// VerifyReferenceToken.
func ReferenceVerificationMethod(ref *Reference) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"EdDSA"}))
	token, _, err := parser.ParseUnverified(ref.RefToken, jwt.MapClaims{})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeMalformed, "reference token unparsable")
	}
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return "", dErrors.New(dErrors.CodeMalformed, "reference token names no verification method")
	}
	return kid, nil
}

// VerifyReferenceToken checks a reference payload's JWS against the issuer
// public key located through the DID document. Called by the verification
// pipeline after DID resolution; the codec itself stays policy-free.
func VerifyReferenceToken(ref *Reference, publicKey ed25519.PublicKey) error {
	parsed, err := jwt.Parse(ref.RefToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeCryptographicFailure, "reference token signature invalid")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return dErrors.New(dErrors.CodeMalformed, "reference token claims malformed")
	}
	if sub, _ := claims["sub"].(string); sub != ref.CredentialID {
		return dErrors.New(dErrors.CodeCryptographicFailure, "reference token bound to a different credential")
	}
	return nil
}
