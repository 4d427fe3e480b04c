// Package revocation checks whether a prescription credential has been
// revoked by its issuer.
//
// Caching is freshness-biased in one direction only. A cached revoked status
// never expires: revocation is permanent, so a sticky positive can never be
// wrong. A cached not-revoked status goes stale quickly and must be
// re-queried, because the one dangerous cache error is dispensing against a
// prescription that was revoked after the cache was written.
package revocation

import "time"

// Status is the revocation state of a credential at a point in time.
type Status struct {
	CredentialID string    `json:"credentialId"`
	Revoked      bool      `json:"revoked"`
	Reason       string    `json:"reason,omitempty"`
	CheckedAt    time.Time `json:"checkedAt"`
}
