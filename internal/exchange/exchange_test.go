package exchange

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rxchange/internal/credential"
	"rxchange/internal/credential/codec"
	"rxchange/internal/didresolver"
	"rxchange/internal/revocation"
	"rxchange/internal/trustregistry"
	"rxchange/internal/verify"
	"rxchange/internal/wallet"
	"rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
	"rxchange/pkg/platform/audit"
	"rxchange/pkg/platform/audit/publisher"
	"rxchange/pkg/platform/clock"
)

// ExchangeSuite runs the full handover loop end to end: issuer drafts, signs
// and presents; holder scans, verifies and decides. Everything in memory,
// times pinned through the request clock.
type ExchangeSuite struct {
	suite.Suite

	issuer   *IssuerService
	holder   *HolderService
	resolver *didresolver.MemoryResolver
	sink     *audit.MemoryStore
	walletSv *wallet.Service
	now      time.Time
}

func TestExchangeSuite(t *testing.T) {
	suite.Run(t, new(ExchangeSuite))
}

func (s *ExchangeSuite) SetupTest() {
	issuerPub, issuerKey, err := ed25519.GenerateKey(nil)
	s.Require().NoError(err)
	_, qrKey, err := ed25519.GenerateKey(nil)
	s.Require().NoError(err)

	issuerDID, err := domain.ParseDID("did:web:clinic.example:dr-a")
	s.Require().NoError(err)
	s.now = time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)

	s.resolver = didresolver.NewMemoryResolver()
	methodID := s.resolver.RegisterKey(issuerDID, issuerPub)

	trustUp := trustregistry.NewMemoryUpstream()
	trustUp.SetTrusted(issuerDID, true)
	trust := trustregistry.NewClient(trustUp, trustregistry.NewMemoryStore(15*time.Minute))
	rev := revocation.NewChecker(revocation.NewMemoryUpstream(), revocation.NewMemoryStore(5*time.Minute))

	c, err := codec.New()
	s.Require().NoError(err)
	signer, err := credential.NewSigner(issuerKey, methodID)
	s.Require().NoError(err)
	qrSigner, err := NewQRSigner(qrKey, DefaultQRValidity)
	s.Require().NoError(err)

	s.sink = audit.NewMemoryStore()
	emitter := publisher.NewPublisher(s.sink)

	s.issuer = NewIssuerService(NewMemoryOfferStore(), signer, c, qrSigner,
		WithIssuerAudit(emitter))

	verifier := verify.NewService(c, s.resolver, trust, rev)
	s.walletSv = wallet.NewService(wallet.NewMemoryStore(), wallet.WithAudit(emitter))
	s.holder = NewHolderService(qrSigner.PublicKey(), c, verifier, s.walletSv)
}

func (s *ExchangeSuite) ctxAt(t time.Time) context.Context {
	return clock.WithTime(context.Background(), t)
}

func (s *ExchangeSuite) newCredential(id string) *credential.PrescriptionCredential {
	c, err := credential.New(id, "did:web:clinic.example:dr-a", "patient-77",
		[]credential.Medication{{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily", DurationDays: 7, Quantity: 21}},
		s.now, s.now.AddDate(0, 6, 0), 1, false)
	s.Require().NoError(err)
	return c
}

// draftToQR walks a fresh offer through draft, sign, and QR generation.
func (s *ExchangeSuite) draftToQR(id string) *Offer {
	ctx := s.ctxAt(s.now)
	offer, err := s.issuer.CreateDraft(ctx, s.newCredential(id))
	s.Require().NoError(err)
	offer, err = s.issuer.SignOffer(ctx, offer.ID)
	s.Require().NoError(err)
	offer, err = s.issuer.GenerateQR(ctx, offer.ID)
	s.Require().NoError(err)
	return offer
}

func (s *ExchangeSuite) TestIssuerLifecycle() {
	ctx := s.ctxAt(s.now)

	offer, err := s.issuer.CreateDraft(ctx, s.newCredential("rx-ex-1"))
	s.Require().NoError(err)
	s.Equal(StateDraft, offer.State)
	s.False(offer.Credential.IsSigned())

	offer, err = s.issuer.SignOffer(ctx, offer.ID)
	s.Require().NoError(err)
	s.Equal(StateSigned, offer.State)
	s.True(offer.Credential.IsSigned())

	offer, err = s.issuer.GenerateQR(ctx, offer.ID)
	s.Require().NoError(err)
	s.Equal(StateQRGenerated, offer.State)
	s.Require().NotNil(offer.QR)
	s.Equal(5*time.Minute, offer.QR.ExpiresAt.Sub(offer.QR.GeneratedAt))

	offer, err = s.issuer.MarkGiven(ctx, offer.ID)
	s.Require().NoError(err)
	s.Equal(StateMarkedGiven, offer.State)
	s.False(offer.GivenAt.IsZero())

	events := s.sink.Events()
	s.Require().Len(events, 3)
	s.Equal(string(audit.EventOfferSigned), events[0].Action)
	s.Equal(string(audit.EventQRGenerated), events[1].Action)
	s.Equal(string(audit.EventOfferMarkedGiven), events[2].Action)
}

func (s *ExchangeSuite) TestInvalidTransitionsRefused() {
	ctx := s.ctxAt(s.now)
	offer, err := s.issuer.CreateDraft(ctx, s.newCredential("rx-ex-2"))
	s.Require().NoError(err)

	// Skipping the signature is not allowed.
	_, err = s.issuer.GenerateQR(ctx, offer.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	_, err = s.issuer.MarkGiven(ctx, offer.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	offer, err = s.issuer.SignOffer(ctx, offer.ID)
	s.Require().NoError(err)

	// Signing is one-shot.
	_, err = s.issuer.SignOffer(ctx, offer.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	// MarkGiven requires a generated QR first.
	_, err = s.issuer.MarkGiven(ctx, offer.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	offer, err = s.issuer.GenerateQR(ctx, offer.ID)
	s.Require().NoError(err)
	offer, err = s.issuer.MarkGiven(ctx, offer.ID)
	s.Require().NoError(err)

	// A closed offer is closed.
	_, err = s.issuer.GenerateQR(ctx, offer.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ExchangeSuite) TestQRRegenerationKeepsProof() {
	offer := s.draftToQR("rx-ex-3")
	firstToken := offer.QR.Token
	firstProof := append([]byte(nil), offer.Credential.Proof.SignatureValue...)

	later := s.now.Add(10 * time.Minute)
	regenerated, err := s.issuer.GenerateQR(s.ctxAt(later), offer.ID)
	s.Require().NoError(err)

	s.Equal(StateQRGenerated, regenerated.State)
	s.NotEqual(firstToken, regenerated.QR.Token, "regeneration must mint a fresh window")
	s.True(regenerated.QR.GeneratedAt.Equal(later))
	s.Equal(firstProof, regenerated.Credential.Proof.SignatureValue,
		"regeneration must not re-sign the credential")
}

func (s *ExchangeSuite) TestScanVerifiesAndAccepts() {
	offer := s.draftToQR("rx-ex-4")

	scanAt := s.now.Add(time.Minute)
	result, err := s.holder.Scan(s.ctxAt(scanAt), offer.QR.Token)
	s.Require().NoError(err)
	s.False(result.AlreadyAccepted)
	s.Equal("rx-ex-4", result.CredentialID)
	s.Equal(verify.OutcomeVerified, result.Report.Overall)

	entry, _, err := s.holder.Decide(s.ctxAt(scanAt), result.Report, true, false, "")
	s.Require().NoError(err)
	s.Equal(wallet.DecisionAccepted, entry.Decision)
}

func (s *ExchangeSuite) TestExpiredQRRefusedBeforeVerification() {
	offer := s.draftToQR("rx-ex-5")

	late := s.now.Add(6 * time.Minute)
	_, err := s.holder.Scan(s.ctxAt(late), offer.QR.Token)
	s.True(dErrors.HasCode(err, dErrors.CodePolicyViolation), "got %v", err)

	// A fresh QR for the same credential scans fine.
	regenerated, err := s.issuer.GenerateQR(s.ctxAt(late), offer.ID)
	s.Require().NoError(err)
	result, err := s.holder.Scan(s.ctxAt(late.Add(time.Minute)), regenerated.QR.Token)
	s.Require().NoError(err)
	s.Equal(verify.OutcomeVerified, result.Report.Overall)
}

func (s *ExchangeSuite) TestRescanIsIdempotent() {
	offer := s.draftToQR("rx-ex-6")
	scanAt := s.now.Add(time.Minute)

	result, err := s.holder.Scan(s.ctxAt(scanAt), offer.QR.Token)
	s.Require().NoError(err)
	_, _, err = s.holder.Decide(s.ctxAt(scanAt), result.Report, true, false, "")
	s.Require().NoError(err)

	// Break the resolver: an idempotent re-scan must not touch the pipeline.
	s.resolver.FailWith = dErrors.New(dErrors.CodeUnavailable, "resolver down")

	again, err := s.holder.Scan(s.ctxAt(scanAt.Add(time.Minute)), offer.QR.Token)
	s.Require().NoError(err)
	s.True(again.AlreadyAccepted)
	s.Equal(verify.OutcomeVerified, again.Report.Overall)
	s.Require().NotNil(again.Entry)
	s.Equal("rx-ex-6", again.Entry.CredentialID)
}

func (s *ExchangeSuite) TestTamperedQRSignatureRefused() {
	offer := s.draftToQR("rx-ex-7")
	tampered := offer.QR.Token[:len(offer.QR.Token)-2] + "xx"

	_, err := s.holder.Scan(s.ctxAt(s.now.Add(time.Minute)), tampered)
	s.True(dErrors.HasCode(err, dErrors.CodeCryptographicFailure), "got %v", err)
}

func (s *ExchangeSuite) TestRejectedScanLeavesNoWalletEntry() {
	offer := s.draftToQR("rx-ex-8")
	scanAt := s.now.Add(time.Minute)

	result, err := s.holder.Scan(s.ctxAt(scanAt), offer.QR.Token)
	s.Require().NoError(err)

	result.Report.Overall = verify.OutcomeRejected
	_, ack, err := s.holder.Decide(s.ctxAt(scanAt), result.Report, false, false, "pharmacist declined")
	s.Require().NoError(err)
	s.Equal("rx-ex-8", ack.CredentialID)

	entries, err := s.walletSv.Entries(context.Background())
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *ExchangeSuite) TestDraftRequiresUnsignedCredential() {
	cred := s.newCredential("rx-ex-9")
	signed := s.draftToQR("rx-ex-9b")
	_, err := s.issuer.CreateDraft(s.ctxAt(s.now), signed.Credential)
	s.Error(err)
	_, err = s.issuer.CreateDraft(s.ctxAt(s.now), cred)
	s.NoError(err)
}
