package signature

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rxchange/internal/credential"
	"rxchange/internal/didresolver"
	"rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
)

type VerifierSuite struct {
	suite.Suite
	resolver *didresolver.MemoryResolver
	key      ed25519.PrivateKey
	methodID string
	did      domain.DID
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	pub, key, err := ed25519.GenerateKey(nil)
	s.Require().NoError(err)
	s.key = key

	s.did, err = domain.ParseDID("did:web:clinic.example:dr-a")
	s.Require().NoError(err)

	s.resolver = didresolver.NewMemoryResolver()
	s.methodID = s.resolver.RegisterKey(s.did, pub)
}

func (s *VerifierSuite) signedCredential() *credential.PrescriptionCredential {
	issuedAt := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
	c, err := credential.New("rx-1", s.did.String(), "patient-77",
		[]credential.Medication{{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily", DurationDays: 7, Quantity: 21}},
		issuedAt, issuedAt.AddDate(0, 6, 0), 0, false)
	s.Require().NoError(err)

	signer, err := credential.NewSigner(s.key, s.methodID)
	s.Require().NoError(err)
	s.Require().NoError(signer.Sign(c, issuedAt))
	return c
}

func (s *VerifierSuite) resolvedDoc() *didresolver.Document {
	doc, err := s.resolver.Resolve(s.T().Context(), s.did)
	s.Require().NoError(err)
	return doc
}

func (s *VerifierSuite) TestValidSignature() {
	s.NoError(Verify(s.signedCredential(), s.resolvedDoc()))
}

func (s *VerifierSuite) TestUnsignedCredential() {
	c := s.signedCredential()
	c.Proof = nil
	err := Verify(c, s.resolvedDoc())
	s.True(dErrors.HasCode(err, dErrors.CodeCryptographicFailure))
}

func (s *VerifierSuite) TestTamperedContent() {
	c := s.signedCredential()
	c.Medications[0].Quantity = 210
	err := Verify(c, s.resolvedDoc())
	s.True(dErrors.HasCode(err, dErrors.CodeCryptographicFailure))
}

func (s *VerifierSuite) TestTamperedSignature() {
	c := s.signedCredential()
	c.Proof.SignatureValue[0] ^= 0xff
	err := Verify(c, s.resolvedDoc())
	s.True(dErrors.HasCode(err, dErrors.CodeCryptographicFailure))
}

func (s *VerifierSuite) TestUnsupportedProofType() {
	c := s.signedCredential()
	c.Proof.Type = "RsaSignature2018"
	err := Verify(c, s.resolvedDoc())
	s.True(dErrors.HasCode(err, dErrors.CodeCryptographicFailure))
}

func (s *VerifierSuite) TestMethodFromDifferentIssuer() {
	// A valid signature whose key is controlled by a different DID must fail
	// even if that key were resolvable.
	c := s.signedCredential()
	c.Proof.VerificationMethod = "did:web:mallory.example:x#key-1"
	err := Verify(c, s.resolvedDoc())
	s.True(dErrors.HasCode(err, dErrors.CodeCryptographicFailure))
}

func (s *VerifierSuite) TestMethodMissingFromDocument() {
	c := s.signedCredential()
	doc := s.resolvedDoc()
	doc.VerificationMethods = nil
	err := Verify(c, doc)
	s.True(dErrors.HasCode(err, dErrors.CodeCryptographicFailure))
}

func (s *VerifierSuite) TestAllFailuresAreTerminal() {
	c := s.signedCredential()
	c.Proof.SignatureValue[0] ^= 0xff
	err := Verify(c, s.resolvedDoc())
	s.False(dErrors.Retryable(err))
}
