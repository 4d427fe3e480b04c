package didresolver

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
)

type ResolverSuite struct {
	suite.Suite
	key ed25519.PublicKey
	did domain.DID
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	pub, _, err := ed25519.GenerateKey(nil)
	s.Require().NoError(err)
	s.key = pub

	did, err := domain.ParseDID("did:web:clinic.example:dr-a")
	s.Require().NoError(err)
	s.did = did
}

func (s *ResolverSuite) document() *Document {
	return &Document{
		DID: s.did.String(),
		VerificationMethods: []VerificationMethod{{
			ID:              s.did.String() + "#key-1",
			Type:            "Ed25519VerificationKey2020",
			Controller:      s.did.String(),
			PublicKeyBase64: base64.StdEncoding.EncodeToString(s.key),
		}},
	}
}

func (s *ResolverSuite) TestResolveSuccess() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		s.NoError(json.NewEncoder(w).Encode(s.document()))
	}))
	defer srv.Close()

	doc, err := NewHTTPResolver(srv.URL).Resolve(context.Background(), s.did)
	s.Require().NoError(err)
	s.Equal(s.did.String(), doc.DID)

	method, err := doc.Method(s.did.String() + "#key-1")
	s.Require().NoError(err)
	key, err := method.Ed25519Key()
	s.Require().NoError(err)
	s.Equal(s.key, key)
}

func (s *ResolverSuite) TestResolveNotFoundIsTerminal() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPResolver(srv.URL).Resolve(context.Background(), s.did)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.False(dErrors.Retryable(err))
}

func (s *ResolverSuite) TestResolveOutageIsRetryable() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPResolver(srv.URL).Resolve(context.Background(), s.did)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.True(dErrors.Retryable(err))
}

func (s *ResolverSuite) TestResolveUnreachableIsRetryable() {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := NewHTTPResolver(srv.URL).Resolve(context.Background(), s.did)
	s.True(dErrors.Retryable(err))
}

func (s *ResolverSuite) TestResolveDIDMismatchIsMalformed() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		doc := s.document()
		doc.DID = "did:web:other.example:dr-b"
		s.NoError(json.NewEncoder(w).Encode(doc))
	}))
	defer srv.Close()

	_, err := NewHTTPResolver(srv.URL).Resolve(context.Background(), s.did)
	s.True(dErrors.HasCode(err, dErrors.CodeMalformed))
}

func (s *ResolverSuite) TestMethodLookupMissing() {
	doc := s.document()
	_, err := doc.Method(s.did.String() + "#key-9")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ResolverSuite) TestBadKeyMaterial() {
	m := VerificationMethod{PublicKeyBase64: "not-base64!!"}
	_, err := m.Ed25519Key()
	s.True(dErrors.HasCode(err, dErrors.CodeMalformed))

	m = VerificationMethod{PublicKeyBase64: base64.StdEncoding.EncodeToString([]byte("short"))}
	_, err = m.Ed25519Key()
	s.True(dErrors.HasCode(err, dErrors.CodeMalformed))
}
