package verify

import (
	"context"

	"rxchange/internal/credential"
	"rxchange/internal/credential/codec"
	"rxchange/internal/revocation"
	"rxchange/internal/trustregistry"
	"rxchange/pkg/domain"
)

// TrustChecker answers issuer accreditation checks.
type TrustChecker interface {
	Check(ctx context.Context, issuer domain.DID) (*trustregistry.Status, error)
}

// RevocationChecker answers credential revocation checks.
type RevocationChecker interface {
	Check(ctx context.Context, credentialID domain.CredentialID) (*revocation.Status, error)
}

// ReferenceFetcher retrieves the full credential behind a reference payload.
// The fetched credential goes through the same verification pipeline as an
// embedded one; fetching confers no trust.
type ReferenceFetcher interface {
	Fetch(ctx context.Context, ref *codec.Reference) (*credential.PrescriptionCredential, error)
}
