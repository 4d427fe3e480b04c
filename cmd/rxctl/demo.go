package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rxchange/internal/credential"
	"rxchange/internal/credential/codec"
	"rxchange/internal/didresolver"
	"rxchange/internal/exchange"
	"rxchange/internal/revocation"
	"rxchange/internal/trustregistry"
	"rxchange/internal/verify"
	"rxchange/internal/wallet"
	"rxchange/pkg/domain"
)

func decodePayload(data []byte) (*codec.Envelope, error) {
	c, err := codec.New()
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}

// newDemoCmd runs the entire exchange loop in-process: a clinic issues and
// signs a prescription, presents it as a QR, a pharmacy scans and verifies
// it, accepts it into the wallet, and dispenses.
func newDemoCmd() *cobra.Command {
	var controlled bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the full issue/sign/scan/verify/dispense loop in memory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, controlled)
		},
	}
	cmd.Flags().BoolVar(&controlled, "controlled", false, "issue a controlled substance (30-day regulatory cap)")
	return cmd
}

func runDemo(cmd *cobra.Command, controlled bool) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	issuerPub, issuerKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}
	_, qrKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}

	issuerDID, err := domain.ParseDID(viper.GetString("issuer_did"))
	if err != nil {
		return err
	}

	resolver := didresolver.NewMemoryResolver()
	methodID := resolver.RegisterKey(issuerDID, issuerPub)
	trustUp := trustregistry.NewMemoryUpstream()
	trustUp.SetTrusted(issuerDID, true)
	trust := trustregistry.NewClient(trustUp, trustregistry.NewMemoryStore(15*time.Minute))
	rev := revocation.NewChecker(revocation.NewMemoryUpstream(), revocation.NewMemoryStore(5*time.Minute))

	payloadCodec, err := codec.New()
	if err != nil {
		return err
	}
	signer, err := credential.NewSigner(issuerKey, methodID)
	if err != nil {
		return err
	}
	qrSigner, err := exchange.NewQRSigner(qrKey, exchange.DefaultQRValidity)
	if err != nil {
		return err
	}

	issuer := exchange.NewIssuerService(exchange.NewMemoryOfferStore(), signer, payloadCodec, qrSigner)
	verifier := verify.NewService(payloadCodec, resolver, trust, rev)
	walletService := wallet.NewService(wallet.NewMemoryStore())
	holder := exchange.NewHolderService(qrSigner.PublicKey(), payloadCodec, verifier, walletService)

	now := time.Now().UTC().Truncate(time.Second)
	cred, err := credential.New(
		domain.NewCredentialID().String(), issuerDID.String(), "patient-demo",
		[]credential.Medication{{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily", DurationDays: 7, Quantity: 21}},
		now, now.AddDate(0, 6, 0), 1, controlled)
	if err != nil {
		return err
	}

	offer, err := issuer.CreateDraft(ctx, cred)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "drafted offer %s for credential %s\n", offer.ID, cred.ID)

	if offer, err = issuer.SignOffer(ctx, offer.ID); err != nil {
		return err
	}
	fmt.Fprintln(out, "credential signed")

	if offer, err = issuer.GenerateQR(ctx, offer.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "QR generated, valid until %s\n", offer.QR.ExpiresAt.Format(time.RFC3339))

	result, err := holder.Scan(ctx, offer.QR.Token)
	if err != nil {
		return err
	}
	reportJSON, err := json.MarshalIndent(result.Report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "verification report:\n%s\n", reportJSON)

	if result.Report.Overall != verify.OutcomeVerified {
		fmt.Fprintln(out, "credential did not verify, stopping")
		return nil
	}

	entry, _, err := holder.Decide(ctx, result.Report, true, false, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "accepted into wallet as %s\n", entry.Decision)

	if _, err = issuer.MarkGiven(ctx, offer.ID); err != nil {
		return err
	}

	if err := walletService.RecordDispense(ctx, cred.ID, wallet.DispenseRecord{
		PharmacistRef: "pharm-demo",
	}); err != nil {
		return err
	}
	status, err := walletService.RepeatEligibility(ctx, cred.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "dispensed; repeat eligible=%t daysUntilEligible=%d remainingRepeats=%d\n",
		status.Eligible, status.DaysUntilEligible, status.RemainingRepeats)
	return nil
}
