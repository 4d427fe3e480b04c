package revocation

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

// Upstream is the authoritative revocation service.
type Upstream interface {
	Lookup(ctx context.Context, credentialID domain.CredentialID) (*Status, error)
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPUpstream queries a revocation service over HTTP.
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

// Lookup fetches the revocation status of a credential.
//
// A 404 means the service has no revocation on record, which is a definitive
// not-revoked answer.
func (u *HTTPUpstream) Lookup(ctx context.Context, credentialID domain.CredentialID) (*Status, error) {
	endpoint := fmt.Sprintf("%s/revocations/%s", u.baseURL, url.PathEscape(credentialID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build revocation lookup request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "revocation lookup timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "revocation service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read revocation response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			Revoked bool   `json:"revoked"`
			Reason  string `json:"reason"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "revocation service returned malformed status")
		}
		return &Status{
			CredentialID: credentialID.String(),
			Revoked:      payload.Revoked,
			Reason:       payload.Reason,
			CheckedAt:    time.Now().UTC(),
		}, nil
	case http.StatusNotFound:
		return &Status{CredentialID: credentialID.String(), Revoked: false, CheckedAt: time.Now().UTC()}, nil
	default:
		return nil, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("revocation service returned %d", resp.StatusCode))
	}
}

// MemoryUpstream is an in-memory upstream for tests and local development.
type MemoryUpstream struct {
	mu      sync.RWMutex
	revoked map[string]string
	// FailWith, when set, makes every Lookup return this error.
	FailWith error
	// Calls counts upstream lookups, for cache behavior assertions.
	Calls int
}

func NewMemoryUpstream() *MemoryUpstream {
	return &MemoryUpstream{revoked: make(map[string]string)}
}

// Revoke marks a credential revoked with a reason.
func (u *MemoryUpstream) Revoke(credentialID domain.CredentialID, reason string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.revoked[credentialID.String()] = reason
}

func (u *MemoryUpstream) Lookup(_ context.Context, credentialID domain.CredentialID) (*Status, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Calls++
	if u.FailWith != nil {
		return nil, u.FailWith
	}
	reason, revoked := u.revoked[credentialID.String()]
	return &Status{
		CredentialID: credentialID.String(),
		Revoked:      revoked,
		Reason:       reason,
		CheckedAt:    time.Now().UTC(),
	}, nil
}
