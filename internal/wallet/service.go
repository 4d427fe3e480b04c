package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rxchange/internal/sentinel"
	"rxchange/internal/temporal"
	"rxchange/internal/verify"
	id "rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
	"rxchange/pkg/platform/audit"
	"rxchange/pkg/platform/clock"
)

// AuditEmitter records wallet actions in the audit trail.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service implements the holder-side decision and dispense operations.
type Service struct {
	store  Store
	logger *slog.Logger
	audit  AuditEmitter
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAudit enables audit event emission.
func WithAudit(emitter AuditEmitter) Option {
	return func(s *Service) {
		s.audit = emitter
	}
}

// NewService creates a wallet service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Accept records a verified credential in the ledger.
//
// Only a Verified report is acceptable on its own. An Indeterminate report
// can be accepted under pharmacist override, stored with a distinct decision
// so the override is auditable. A Rejected report can never be accepted.
//
// Accept is idempotent: re-accepting a credential already in the ledger
// returns the stored entry unchanged, with no side effects.
func (s *Service) Accept(ctx context.Context, report *verify.Report, override bool) (*WalletEntry, error) {
	if report == nil || report.Credential == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a report with its decoded credential is required")
	}

	decision := DecisionAccepted
	switch report.Overall {
	case verify.OutcomeVerified:
	case verify.OutcomeIndeterminate:
		if !override {
			return nil, dErrors.New(dErrors.CodePolicyViolation,
				fmt.Sprintf("inconclusive verification (%v) requires pharmacist override", report.IndeterminateChecks()))
		}
		decision = DecisionAcceptedWithOverride
	case verify.OutcomeRejected:
		return nil, dErrors.New(dErrors.CodePolicyViolation,
			fmt.Sprintf("rejected credential cannot be accepted (failing checks: %v)", report.FailingChecks()))
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("unknown report outcome %q", report.Overall))
	}

	now := clock.Now(ctx)
	entry, created, err := s.store.Insert(ctx, &WalletEntry{
		CredentialID: report.CredentialID,
		Credential:   report.Credential,
		Report:       report,
		Decision:     decision,
		AcceptedAt:   now,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist wallet entry")
	}
	if !created {
		s.logger.InfoContext(ctx, "credential already in wallet, returning stored entry",
			"credential_id", report.CredentialID)
		return entry, nil
	}

	s.emit(ctx, audit.Event{
		Timestamp:    now,
		CredentialID: id.CredentialID(report.CredentialID),
		IssuerDID:    id.DID(report.IssuerDID),
		Action:       string(audit.EventCredentialAccepted),
		Outcome:      string(entry.Decision),
	})
	return entry, nil
}

// Reject acknowledges a rejection. Nothing is added to the ledger; the
// decision lives only in the audit trail.
func (s *Service) Reject(ctx context.Context, report *verify.Report, reason string) (*RejectionAck, error) {
	if report == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a report is required")
	}
	now := clock.Now(ctx)
	if reason == "" && len(report.FailingChecks()) > 0 {
		reason = fmt.Sprintf("failing checks: %v", report.FailingChecks())
	}

	s.emit(ctx, audit.Event{
		Timestamp:    now,
		CredentialID: id.CredentialID(report.CredentialID),
		IssuerDID:    id.DID(report.IssuerDID),
		Action:       string(audit.EventCredentialRejected),
		Outcome:      string(DecisionRejected),
		Reason:       reason,
	})
	return &RejectionAck{
		CredentialID: report.CredentialID,
		Reason:       reason,
		RejectedAt:   now,
	}, nil
}

// RecordDispense appends a dispense to a wallet entry after checking repeat
// eligibility. An ineligible dispense is refused with CodePolicyViolation
// unless the record carries a pharmacist override for an early repeat.
func (s *Service) RecordDispense(ctx context.Context, credentialID string, record DispenseRecord) error {
	entry, err := s.store.Find(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "credential is not in the wallet")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load wallet entry")
	}

	now := clock.Now(ctx)
	lastAt, lastSupply := lastDispense(entry)
	eligibility := temporal.RepeatEligibility(entry.Credential,
		len(entry.Dispenses), lastAt, lastSupply, now, record.Override)
	if !eligibility.Eligible {
		return dErrors.New(dErrors.CodePolicyViolation, eligibility.Reason)
	}

	record.CredentialID = credentialID
	if record.DispensedAt.IsZero() {
		record.DispensedAt = now
	}
	if record.DaysSupply == 0 {
		record.DaysSupply = entry.Credential.TotalDaysSupply()
	}
	if err := s.store.AppendDispense(ctx, credentialID, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist dispense record")
	}

	outcome := "dispensed"
	if eligibility.Overridden {
		outcome = "dispensed_with_override"
	}
	s.emit(ctx, audit.Event{
		Timestamp:    now,
		CredentialID: id.CredentialID(credentialID),
		IssuerDID:    id.DID(entry.Credential.IssuerDID),
		Action:       string(audit.EventDispenseRecorded),
		Outcome:      outcome,
		Reason:       record.Note,
	})
	return nil
}

// RepeatEligibility answers the countdown query for a wallet entry without
// running a full verification.
func (s *Service) RepeatEligibility(ctx context.Context, credentialID string) (*RepeatStatus, error) {
	entry, err := s.store.Find(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential is not in the wallet")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load wallet entry")
	}

	now := clock.Now(ctx)
	lastAt, lastSupply := lastDispense(entry)
	eligibility := temporal.RepeatEligibility(entry.Credential,
		len(entry.Dispenses), lastAt, lastSupply, now, false)

	status := &RepeatStatus{
		Eligible:         eligibility.Eligible,
		EarliestAt:       eligibility.EarliestAt,
		RemainingRepeats: eligibility.RemainingRepeats,
		Reason:           eligibility.Reason,
	}
	if !eligibility.Eligible && !eligibility.EarliestAt.IsZero() && eligibility.EarliestAt.After(now) {
		status.DaysUntilEligible = int((eligibility.EarliestAt.Sub(now) + 24*time.Hour - 1) / (24 * time.Hour))
	}
	return status, nil
}

// Entry returns a single wallet entry.
func (s *Service) Entry(ctx context.Context, credentialID string) (*WalletEntry, error) {
	entry, err := s.store.Find(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential is not in the wallet")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load wallet entry")
	}
	return entry, nil
}

// Entries lists the wallet contents ordered by acceptance time.
func (s *Service) Entries(ctx context.Context) ([]*WalletEntry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list wallet entries")
	}
	return entries, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action, "error", err)
	}
}

// lastDispense returns when the most recent dispense happened and how many
// days of supply it handed over.
func lastDispense(entry *WalletEntry) (time.Time, int) {
	if len(entry.Dispenses) == 0 {
		return time.Time{}, 0
	}
	last := entry.Dispenses[len(entry.Dispenses)-1]
	return last.DispensedAt, last.DaysSupply
}
