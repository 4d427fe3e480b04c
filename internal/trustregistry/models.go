// Package trustregistry answers whether an issuer DID is accredited to issue
// prescription credentials.
//
// Statuses are cached with a TTL. A stale entry is treated exactly like a
// missing one: it triggers a fresh upstream lookup and is never served as an
// answer. When the upstream cannot be reached and no fresh entry exists, the
// check reports unavailability rather than guessing either way.
package trustregistry

import "time"

// Status is the accreditation status of an issuer at a point in time.
type Status struct {
	IssuerDID string    `json:"issuerDid"`
	Trusted   bool      `json:"trusted"`
	CheckedAt time.Time `json:"checkedAt"`
}
