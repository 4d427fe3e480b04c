package audit

import (
	"context"
	"time"

	id "rxchange/pkg/domain"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp    time.Time
	CredentialID id.CredentialID
	IssuerDID    id.DID
	Action       string
	Outcome      string
	Reason       string
	RequestID    string
}

type AuditEvent string

const (
	EventOfferSigned        AuditEvent = "offer_signed"
	EventQRGenerated        AuditEvent = "qr_generated"
	EventOfferMarkedGiven   AuditEvent = "offer_marked_given"
	EventCredentialVerified AuditEvent = "credential_verified"
	EventCredentialAccepted AuditEvent = "credential_accepted"
	EventCredentialRejected AuditEvent = "credential_rejected"
	EventDispenseRecorded   AuditEvent = "dispense_recorded"
)

// Store persists audit events. Implementations must be append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
}
