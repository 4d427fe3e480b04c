package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rxchange/internal/credential"
	"rxchange/internal/credential/codec"
	"rxchange/internal/platform/privacy"
	"rxchange/internal/sentinel"
	id "rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
	"rxchange/pkg/platform/audit"
	"rxchange/pkg/platform/clock"
)

// AuditEmitter records exchange actions in the audit trail.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// IssuerService drives the issuer side of the handover: draft, sign, present
// as QR, and mark as given. States only ever move forward; the one exception
// is QR regeneration, which stays in the same state and never re-signs the
// credential.
type IssuerService struct {
	store  OfferStore
	signer *credential.Signer
	codec  *codec.Codec
	qr     *QRSigner
	logger *slog.Logger
	audit  AuditEmitter
}

// IssuerOption configures the IssuerService.
type IssuerOption func(*IssuerService)

// WithIssuerLogger sets the structured logger.
func WithIssuerLogger(logger *slog.Logger) IssuerOption {
	return func(s *IssuerService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIssuerAudit enables audit event emission.
func WithIssuerAudit(emitter AuditEmitter) IssuerOption {
	return func(s *IssuerService) {
		s.audit = emitter
	}
}

// NewIssuerService wires the issuer-side exchange flow.
func NewIssuerService(store OfferStore, signer *credential.Signer, c *codec.Codec, qr *QRSigner, opts ...IssuerOption) *IssuerService {
	s := &IssuerService{
		store:  store,
		signer: signer,
		codec:  c,
		qr:     qr,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDraft opens a new offer around an unsigned credential.
func (s *IssuerService) CreateDraft(ctx context.Context, cred *credential.PrescriptionCredential) (*Offer, error) {
	if cred == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a credential is required")
	}
	if cred.IsSigned() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a draft offer must start from an unsigned credential")
	}
	if err := cred.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "credential violates issuance invariants")
	}

	offer := &Offer{
		ID:         id.NewOfferID(),
		State:      StateDraft,
		Credential: cred,
		CreatedAt:  clock.Now(ctx),
	}
	if err := s.store.Save(ctx, offer); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist offer")
	}
	s.logger.InfoContext(ctx, "offer drafted",
		"offer_id", offer.ID.String(),
		"credential_id", cred.ID,
		"subject", privacy.Pseudonym(cred.SubjectRef))
	return offer, nil
}

// SignOffer attaches the issuer proof and moves the offer to Signed. The
// credential is immutable from here on.
func (s *IssuerService) SignOffer(ctx context.Context, offerID id.OfferID) (*Offer, error) {
	offer, err := s.load(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(offer, StateSigned); err != nil {
		return nil, err
	}

	now := clock.Now(ctx)
	if err := s.signer.Sign(offer.Credential, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign credential")
	}
	offer.SignedAt = now

	if err := s.store.Save(ctx, offer); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist offer")
	}
	s.emit(ctx, offer, audit.EventOfferSigned, string(StateSigned))
	return offer, nil
}

// GenerateQR encodes the signed credential and wraps it in a fresh QR
// artifact. Calling it again on a QrGenerated offer regenerates the QR with a
// new validity window; the credential and its proof are untouched.
func (s *IssuerService) GenerateQR(ctx context.Context, offerID id.OfferID) (*Offer, error) {
	offer, err := s.load(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(offer, StateQRGenerated); err != nil {
		return nil, err
	}

	payload, err := s.codec.Encode(offer.Credential)
	if err != nil {
		return nil, err
	}
	artifact, err := s.qr.Wrap(payload.Bytes, clock.Now(ctx))
	if err != nil {
		return nil, err
	}
	offer.QR = artifact

	if err := s.store.Save(ctx, offer); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist offer")
	}
	s.emit(ctx, offer, audit.EventQRGenerated, string(payload.Kind))
	return offer, nil
}

// MarkGiven closes the offer after the patient has scanned the QR.
func (s *IssuerService) MarkGiven(ctx context.Context, offerID id.OfferID) (*Offer, error) {
	offer, err := s.load(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(offer, StateMarkedGiven); err != nil {
		return nil, err
	}

	offer.GivenAt = clock.Now(ctx)
	if err := s.store.Save(ctx, offer); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist offer")
	}
	s.emit(ctx, offer, audit.EventOfferMarkedGiven, string(StateMarkedGiven))
	return offer, nil
}

// Offer returns a single offer.
func (s *IssuerService) Offer(ctx context.Context, offerID id.OfferID) (*Offer, error) {
	return s.load(ctx, offerID)
}

// Offers lists all offers in creation order.
func (s *IssuerService) Offers(ctx context.Context) ([]*Offer, error) {
	offers, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list offers")
	}
	return offers, nil
}

func (s *IssuerService) load(ctx context.Context, offerID id.OfferID) (*Offer, error) {
	offer, err := s.store.Find(ctx, offerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "offer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load offer")
	}
	return offer, nil
}

func (s *IssuerService) transition(offer *Offer, to OfferState) error {
	if !CanTransition(offer.State, to) {
		return dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("offer in state %q cannot move to %q", offer.State, to))
	}
	offer.State = to
	return nil
}

func (s *IssuerService) emit(ctx context.Context, offer *Offer, action audit.AuditEvent, outcome string) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		Timestamp:    clock.Now(ctx),
		CredentialID: id.CredentialID(offer.Credential.ID),
		IssuerDID:    id.DID(offer.Credential.IssuerDID),
		Action:       string(action),
		Outcome:      outcome,
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action, "error", err)
	}
}
