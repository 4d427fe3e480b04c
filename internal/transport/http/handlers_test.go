package httptransport

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rxchange/internal/credential"
	"rxchange/internal/credential/codec"
	"rxchange/internal/didresolver"
	"rxchange/internal/exchange"
	"rxchange/internal/revocation"
	"rxchange/internal/trustregistry"
	"rxchange/internal/verify"
	"rxchange/internal/wallet"
	"rxchange/pkg/domain"
)

// HandlerSuite drives the HTTP surface over a fully in-memory stack. The
// request clock middleware stamps real time, so credentials are issued
// relative to now.
type HandlerSuite struct {
	suite.Suite
	router   http.Handler
	issuedAt time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	issuerPub, issuerKey, err := ed25519.GenerateKey(nil)
	s.Require().NoError(err)
	_, qrKey, err := ed25519.GenerateKey(nil)
	s.Require().NoError(err)

	issuerDID, err := domain.ParseDID("did:web:clinic.example:dr-a")
	s.Require().NoError(err)
	s.issuedAt = time.Now().UTC().Truncate(time.Second)

	resolver := didresolver.NewMemoryResolver()
	methodID := resolver.RegisterKey(issuerDID, issuerPub)

	trustUp := trustregistry.NewMemoryUpstream()
	trustUp.SetTrusted(issuerDID, true)
	trust := trustregistry.NewClient(trustUp, trustregistry.NewMemoryStore(15*time.Minute))
	rev := revocation.NewChecker(revocation.NewMemoryUpstream(), revocation.NewMemoryStore(5*time.Minute))

	c, err := codec.New()
	s.Require().NoError(err)
	signer, err := credential.NewSigner(issuerKey, methodID)
	s.Require().NoError(err)
	qrSigner, err := exchange.NewQRSigner(qrKey, exchange.DefaultQRValidity)
	s.Require().NoError(err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := exchange.NewIssuerService(exchange.NewMemoryOfferStore(), signer, c, qrSigner)
	verifier := verify.NewService(c, resolver, trust, rev)
	walletSv := wallet.NewService(wallet.NewMemoryStore())
	holder := exchange.NewHolderService(qrSigner.PublicKey(), c, verifier, walletSv)

	h := NewHandler(issuer, holder, walletSv, log)
	s.router = NewRouter(h, log, nil, nil)
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, into any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), into))
}

func (s *HandlerSuite) offerRequest(id string) CreateOfferRequest {
	return CreateOfferRequest{
		CredentialID: id,
		IssuerDID:    "did:web:clinic.example:dr-a",
		PatientRef:   "patient-77",
		Medications: []credential.Medication{
			{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily", DurationDays: 7, Quantity: 21},
		},
		IssuedAt:       s.issuedAt,
		ExpiresAt:      s.issuedAt.AddDate(0, 6, 0),
		RepeatsAllowed: 1,
	}
}

// offerToQR walks an offer through the lifecycle over HTTP and returns the QR
// token.
func (s *HandlerSuite) offerToQR(id string) string {
	rec := s.do(http.MethodPost, "/api/v1/offers", s.offerRequest(id))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var offer exchange.Offer
	s.decode(rec, &offer)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/v1/offers/%s/sign", offer.ID), nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/v1/offers/%s/qr", offer.ID), nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var withQR exchange.Offer
	s.decode(rec, &withQR)
	s.Require().NotNil(withQR.QR)
	return withQR.QR.Token
}

func (s *HandlerSuite) TestOfferLifecycle() {
	rec := s.do(http.MethodPost, "/api/v1/offers", s.offerRequest("rx-http-1"))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var offer exchange.Offer
	s.decode(rec, &offer)
	s.Equal(exchange.StateDraft, offer.State)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/v1/offers/%s/sign", offer.ID), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/v1/offers/%s/qr", offer.ID), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/v1/offers/%s/given", offer.ID), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var closed exchange.Offer
	s.decode(rec, &closed)
	s.Equal(exchange.StateMarkedGiven, closed.State)
}

func (s *HandlerSuite) TestInvalidTransitionConflicts() {
	rec := s.do(http.MethodPost, "/api/v1/offers", s.offerRequest("rx-http-2"))
	s.Require().Equal(http.StatusCreated, rec.Code)
	var offer exchange.Offer
	s.decode(rec, &offer)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/v1/offers/%s/qr", offer.ID), nil)
	s.Equal(http.StatusConflict, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) TestUnknownOffer() {
	rec := s.do(http.MethodPost, "/api/v1/offers/not-a-uuid/sign", nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/offers/a1b2c3d4-e5f6-7890-abcd-ef1234567890/sign", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestScanAndAccept() {
	token := s.offerToQR("rx-http-3")

	rec := s.do(http.MethodPost, "/api/v1/scan", ScanRequest{QRToken: token})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var result exchange.ScanResult
	s.decode(rec, &result)
	s.Equal(verify.OutcomeVerified, result.Report.Overall)
	s.False(result.AlreadyAccepted)

	rec = s.do(http.MethodPost, "/api/v1/decisions", DecisionRequest{
		CredentialID: "rx-http-3",
		Accept:       true,
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/wallet/rx-http-3", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var entry wallet.WalletEntry
	s.decode(rec, &entry)
	s.Equal(wallet.DecisionAccepted, entry.Decision)
}

func (s *HandlerSuite) TestDecisionWithoutScan() {
	rec := s.do(http.MethodPost, "/api/v1/decisions", DecisionRequest{
		CredentialID: "rx-never-scanned",
		Accept:       true,
	})
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestRescanReturnsStoredReport() {
	token := s.offerToQR("rx-http-4")

	rec := s.do(http.MethodPost, "/api/v1/scan", ScanRequest{QRToken: token})
	s.Require().Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/decisions", DecisionRequest{CredentialID: "rx-http-4", Accept: true})
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/scan", ScanRequest{QRToken: token})
	s.Require().Equal(http.StatusOK, rec.Code)
	var result exchange.ScanResult
	s.decode(rec, &result)
	s.True(result.AlreadyAccepted)
}

func (s *HandlerSuite) TestDispenseAndRepeatEligibility() {
	token := s.offerToQR("rx-http-5")
	rec := s.do(http.MethodPost, "/api/v1/scan", ScanRequest{QRToken: token})
	s.Require().Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/decisions", DecisionRequest{CredentialID: "rx-http-5", Accept: true})
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/wallet/rx-http-5/repeat-eligibility", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var status wallet.RepeatStatus
	s.decode(rec, &status)
	s.True(status.Eligible, "initial fill needs no waiting")

	rec = s.do(http.MethodPost, "/api/v1/wallet/rx-http-5/dispenses", DispenseRequest{DaysSupply: 7})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/wallet/rx-http-5/repeat-eligibility", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &status)
	s.False(status.Eligible, "75%% of the supply must elapse first")
	s.Positive(status.DaysUntilEligible)
}

func (s *HandlerSuite) TestEarlyDispenseNeedsPharmacistRef() {
	rec := s.do(http.MethodPost, "/api/v1/wallet/rx-any/dispenses", DispenseRequest{Override: true})
	s.Equal(http.StatusBadRequest, rec.Code, "override without pharmacistRef must fail validation")
}

func (s *HandlerSuite) TestMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}
