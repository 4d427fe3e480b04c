package trustregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
)

// Upstream is the authoritative trust registry.
type Upstream interface {
	Lookup(ctx context.Context, issuer domain.DID) (*Status, error)
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPUpstream queries a trust registry service over HTTP.
type HTTPUpstream struct {
	baseURL string
	client  HTTPDoer
}

// HTTPOption configures the HTTPUpstream.
type HTTPOption func(*HTTPUpstream)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) HTTPOption {
	return func(u *HTTPUpstream) {
		if client != nil {
			u.client = client
		}
	}
}

// NewHTTPUpstream creates an upstream against the given base URL.
func NewHTTPUpstream(baseURL string, opts ...HTTPOption) *HTTPUpstream {
	u := &HTTPUpstream{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Lookup fetches the accreditation status of an issuer.
//
// A 404 is a definitive answer: the issuer is not in the registry, so it is
// not trusted. Only transport failures and 5xx responses are transient.
func (u *HTTPUpstream) Lookup(ctx context.Context, issuer domain.DID) (*Status, error) {
	endpoint := fmt.Sprintf("%s/issuers/%s", u.baseURL, url.PathEscape(issuer.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build trust lookup request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "trust registry lookup timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "trust registry unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read trust registry response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			Trusted bool `json:"trusted"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "trust registry returned malformed status")
		}
		return &Status{IssuerDID: issuer.String(), Trusted: payload.Trusted, CheckedAt: time.Now().UTC()}, nil
	case http.StatusNotFound:
		return &Status{IssuerDID: issuer.String(), Trusted: false, CheckedAt: time.Now().UTC()}, nil
	default:
		return nil, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("trust registry returned %d", resp.StatusCode))
	}
}

// MemoryUpstream is an in-memory upstream for tests and local development.
type MemoryUpstream struct {
	mu      sync.RWMutex
	trusted map[string]bool
	// FailWith, when set, makes every Lookup return this error.
	FailWith error
	// Calls counts upstream lookups, for cache behavior assertions.
	Calls int
}

func NewMemoryUpstream() *MemoryUpstream {
	return &MemoryUpstream{trusted: make(map[string]bool)}
}

// SetTrusted records an issuer's accreditation.
func (u *MemoryUpstream) SetTrusted(issuer domain.DID, trusted bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.trusted[issuer.String()] = trusted
}

func (u *MemoryUpstream) Lookup(_ context.Context, issuer domain.DID) (*Status, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Calls++
	if u.FailWith != nil {
		return nil, u.FailWith
	}
	return &Status{
		IssuerDID: issuer.String(),
		Trusted:   u.trusted[issuer.String()],
		CheckedAt: time.Now().UTC(),
	}, nil
}
