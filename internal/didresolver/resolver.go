package didresolver

import (
	"context"

	"rxchange/pkg/domain"
)

// Resolver resolves a DID to its published document.
//
// Implementations classify failures through domain error codes: CodeNotFound
// for a DID with no document (terminal), CodeUnavailable or CodeTimeout for
// resolver outages (transient), CodeMalformed for documents that cannot be
// interpreted.
type Resolver interface {
	Resolve(ctx context.Context, did domain.DID) (*Document, error)
}
