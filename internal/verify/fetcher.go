package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rxchange/internal/credential"
	"rxchange/internal/credential/codec"
	dErrors "rxchange/pkg/domain-errors"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFetcher retrieves reference-payload credentials from the issuer's fetch
// endpoint, presenting the reference token as authorization.
type HTTPFetcher struct {
	client HTTPDoer
}

// NewHTTPFetcher creates a fetcher with the given client; nil uses a default
// 10-second client.
func NewHTTPFetcher(client HTTPDoer) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

// Fetch downloads the credential named by the reference.
//
// The returned credential is normalized and invariant-checked but NOT
// trusted: the caller runs the full verification pipeline over it and must
// confirm it is the credential the reference named.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref *codec.Reference) (*credential.PrescriptionCredential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.FetchURL, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build reference fetch request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+ref.RefToken)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "reference fetch timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "credential fetch endpoint unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read fetched credential")
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, dErrors.New(dErrors.CodeUnavailable,
				fmt.Sprintf("fetch endpoint returned %d", resp.StatusCode))
		}
		return nil, dErrors.New(dErrors.CodeMalformed,
			fmt.Sprintf("fetch endpoint refused the reference: %d", resp.StatusCode))
	}

	var cred credential.PrescriptionCredential
	if err := json.Unmarshal(body, &cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "fetched credential is not valid JSON")
	}
	if err := cred.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "fetched credential violates issuance invariants")
	}
	cred.IssuedAt = cred.IssuedAt.UTC().Truncate(time.Second)
	cred.ExpiresAt = cred.ExpiresAt.UTC().Truncate(time.Second)
	if cred.Proof != nil {
		cred.Proof.Created = cred.Proof.Created.UTC().Truncate(time.Second)
	}

	// Binding: the fetched credential must be the one the reference named.
	if cred.ID != ref.CredentialID {
		return nil, dErrors.New(dErrors.CodeCryptographicFailure,
			"fetch endpoint returned a different credential than the reference named")
	}
	if cred.IssuerDID != ref.IssuerDID {
		return nil, dErrors.New(dErrors.CodeCryptographicFailure,
			"fetched credential names a different issuer than the reference")
	}
	return &cred, nil
}
