package didresolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPResolver resolves DIDs against a resolver service over HTTP.
type HTTPResolver struct {
	baseURL string
	client  HTTPDoer
}

// HTTPOption configures the HTTPResolver.
type HTTPOption func(*HTTPResolver)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) HTTPOption {
	return func(r *HTTPResolver) {
		if client != nil {
			r.client = client
		}
	}
}

// NewHTTPResolver creates a resolver against the given base URL.
func NewHTTPResolver(baseURL string, opts ...HTTPOption) *HTTPResolver {
	r := &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches the document for a DID.
func (r *HTTPResolver) Resolve(ctx context.Context, did domain.DID) (*Document, error) {
	endpoint := fmt.Sprintf("%s/dids/%s", r.baseURL, url.PathEscape(did.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build resolve request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "DID resolution timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "DID resolver unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read resolver response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, dErrors.New(dErrors.CodeNotFound,
			fmt.Sprintf("no document published for %s", did))
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("resolver returned %d", resp.StatusCode))
	default:
		return nil, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("resolver returned unexpected status %d", resp.StatusCode))
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "resolver returned a malformed document")
	}
	if doc.DID != did.String() {
		return nil, dErrors.New(dErrors.CodeMalformed,
			fmt.Sprintf("resolver returned document for %s, asked for %s", doc.DID, did))
	}
	return &doc, nil
}
