package exchange

import (
	"context"
	"crypto/ed25519"
	"log/slog"

	"rxchange/internal/credential/codec"
	"rxchange/internal/verify"
	"rxchange/internal/wallet"
	dErrors "rxchange/pkg/domain-errors"
	"rxchange/pkg/platform/clock"
)

// Verifier runs the full verification pipeline over a transport payload.
type Verifier interface {
	Verify(ctx context.Context, payload []byte) (*verify.Report, error)
}

// ScanResult is what a pharmacist sees after scanning a QR.
type ScanResult struct {
	CredentialID string         `json:"credentialId"`
	Report       *verify.Report `json:"report"`
	// AlreadyAccepted is true when the credential was accepted on a prior
	// scan; Report is then the stored report and no re-verification ran.
	AlreadyAccepted bool                `json:"alreadyAccepted"`
	Entry           *wallet.WalletEntry `json:"entry,omitempty"`
}

// HolderService drives the holder side: scan a QR, verify its payload, and
// record the accept/reject decision in the wallet.
type HolderService struct {
	qrKey    ed25519.PublicKey
	codec    *codec.Codec
	verifier Verifier
	wallet   *wallet.Service
	logger   *slog.Logger
}

// HolderOption configures the HolderService.
type HolderOption func(*HolderService)

// WithHolderLogger sets the structured logger.
func WithHolderLogger(logger *slog.Logger) HolderOption {
	return func(s *HolderService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHolderService wires the holder-side exchange flow. qrKey verifies the
// issuer's QR wrapper signature, not the credential proof.
func NewHolderService(qrKey ed25519.PublicKey, c *codec.Codec, verifier Verifier, w *wallet.Service, opts ...HolderOption) *HolderService {
	s := &HolderService{
		qrKey:    qrKey,
		codec:    c,
		verifier: verifier,
		wallet:   w,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan unwraps a QR token and verifies its payload.
//
// Re-scanning a credential already accepted into the wallet is a no-op: the
// stored report comes back unchanged and the pipeline does not run again. An
// expired QR window is refused before any payload inspection.
func (s *HolderService) Scan(ctx context.Context, qrToken string) (*ScanResult, error) {
	payload, err := UnwrapQR(qrToken, s.qrKey, clock.Now(ctx))
	if err != nil {
		return nil, err
	}

	credentialID, err := s.peekCredentialID(payload)
	if err != nil {
		return nil, err
	}

	if credentialID != "" {
		entry, err := s.wallet.Entry(ctx, credentialID)
		switch {
		case err == nil:
			s.logger.InfoContext(ctx, "credential already accepted, skipping re-verification",
				"credential_id", credentialID)
			return &ScanResult{
				CredentialID:    credentialID,
				Report:          entry.Report,
				AlreadyAccepted: true,
				Entry:           entry,
			}, nil
		case !dErrors.HasCode(err, dErrors.CodeNotFound):
			return nil, err
		}
	}

	report, err := s.verifier.Verify(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &ScanResult{CredentialID: report.CredentialID, Report: report}, nil
}

// VerifyPayload runs the verification pipeline over a bare transport payload,
// for channels that deliver payloads without a QR wrapper.
func (s *HolderService) VerifyPayload(ctx context.Context, payload []byte) (*verify.Report, error) {
	return s.verifier.Verify(ctx, payload)
}

// Decide records the pharmacist's decision for a scanned credential.
func (s *HolderService) Decide(ctx context.Context, report *verify.Report, accept, override bool, reason string) (*wallet.WalletEntry, *wallet.RejectionAck, error) {
	if !accept {
		ack, err := s.wallet.Reject(ctx, report, reason)
		return nil, ack, err
	}
	entry, err := s.wallet.Accept(ctx, report, override)
	return entry, nil, err
}

// peekCredentialID reads the credential identity out of a payload without
// verifying anything, so the idempotency check can run first.
func (s *HolderService) peekCredentialID(payload []byte) (string, error) {
	env, err := s.codec.Decode(payload)
	if err != nil {
		// A malformed payload still deserves a verification report, so the
		// decision is auditable. Let the pipeline produce it.
		if dErrors.HasCode(err, dErrors.CodeMalformed) || dErrors.HasCode(err, dErrors.CodeUnsupportedVersion) {
			return "", nil
		}
		return "", err
	}
	switch env.Kind {
	case codec.PayloadEmbedded:
		return env.Credential.ID, nil
	case codec.PayloadReference:
		return env.Reference.CredentialID, nil
	}
	return "", nil
}
