package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rxchange/internal/credential"
	"rxchange/internal/verify"
	"rxchange/pkg/platform/audit"
	"rxchange/pkg/platform/audit/publisher"
	"rxchange/pkg/platform/clock"
)

type ServiceSuite struct {
	suite.Suite
	store    *MemoryStore
	sink     *audit.MemoryStore
	service  *Service
	issuedAt time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.sink = audit.NewMemoryStore()
	s.service = NewService(s.store, WithAudit(publisher.NewPublisher(s.sink)))
	s.issuedAt = time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) newCredential(id string, repeats, durationDays int) *credential.PrescriptionCredential {
	c, err := credential.New(id, "did:web:clinic.example:dr-a", "patient-77",
		[]credential.Medication{{Name: "A", Dosage: "1", Frequency: "daily", DurationDays: durationDays, Quantity: durationDays}},
		s.issuedAt, s.issuedAt.AddDate(0, 6, 0), repeats, false)
	s.Require().NoError(err)
	return c
}

func (s *ServiceSuite) verifiedReport(c *credential.PrescriptionCredential) *verify.Report {
	return &verify.Report{
		CredentialID: c.ID,
		IssuerDID:    c.IssuerDID,
		Overall:      verify.OutcomeVerified,
		Checks:       []verify.Check{{Name: verify.CheckCodec, Outcome: verify.CheckPass}},
		EvaluatedAt:  s.issuedAt,
		Credential:   c,
	}
}

func (s *ServiceSuite) ctxAt(t time.Time) context.Context {
	return clock.WithTime(context.Background(), t)
}

func (s *ServiceSuite) TestAcceptVerifiedReport() {
	c := s.newCredential("rx-w1", 1, 28)
	entry, err := s.service.Accept(s.ctxAt(s.issuedAt), s.verifiedReport(c), false)
	s.Require().NoError(err)
	s.Equal(DecisionAccepted, entry.Decision)
	s.Equal("rx-w1", entry.CredentialID)
}

func (s *ServiceSuite) TestAcceptIsIdempotent() {
	c := s.newCredential("rx-w2", 1, 28)
	report := s.verifiedReport(c)

	first, err := s.service.Accept(s.ctxAt(s.issuedAt), report, false)
	s.Require().NoError(err)
	second, err := s.service.Accept(s.ctxAt(s.issuedAt.Add(time.Hour)), report, false)
	s.Require().NoError(err)

	s.Equal(first.AcceptedAt, second.AcceptedAt, "re-accept must return the original entry")

	entries, err := s.service.Entries(context.Background())
	s.Require().NoError(err)
	s.Len(entries, 1, "no duplicate ledger rows")
}

func (s *ServiceSuite) TestConcurrentAcceptsCreateOneEntry() {
	c := s.newCredential("rx-w3", 1, 28)
	report := s.verifiedReport(c)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Accept(s.ctxAt(s.issuedAt), report, false)
			s.NoError(err)
		}()
	}
	wg.Wait()

	entries, err := s.service.Entries(context.Background())
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *ServiceSuite) TestRejectedReportCannotBeAccepted() {
	c := s.newCredential("rx-w4", 1, 28)
	report := s.verifiedReport(c)
	report.Overall = verify.OutcomeRejected

	_, err := s.service.Accept(s.ctxAt(s.issuedAt), report, false)
	s.Error(err)
	// Not even with an override.
	_, err = s.service.Accept(s.ctxAt(s.issuedAt), report, true)
	s.Error(err)
}

func (s *ServiceSuite) TestIndeterminateRequiresOverride() {
	c := s.newCredential("rx-w5", 1, 28)
	report := s.verifiedReport(c)
	report.Overall = verify.OutcomeIndeterminate

	_, err := s.service.Accept(s.ctxAt(s.issuedAt), report, false)
	s.Error(err)

	entry, err := s.service.Accept(s.ctxAt(s.issuedAt), report, true)
	s.Require().NoError(err)
	s.Equal(DecisionAcceptedWithOverride, entry.Decision)
}

func (s *ServiceSuite) TestRejectLeavesNoLedgerEntry() {
	c := s.newCredential("rx-w6", 1, 28)
	report := s.verifiedReport(c)
	report.Overall = verify.OutcomeRejected

	ack, err := s.service.Reject(s.ctxAt(s.issuedAt), report, "pharmacist declined")
	s.Require().NoError(err)
	s.Equal("rx-w6", ack.CredentialID)

	entries, err := s.service.Entries(context.Background())
	s.Require().NoError(err)
	s.Empty(entries)

	events := s.sink.Events()
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventCredentialRejected), events[0].Action)
}

func (s *ServiceSuite) TestRepeatEligibilityCountdown() {
	// One prior dispense 10 days ago against a 28-day supply: the 21-day
	// threshold leaves 11 days to go.
	c := s.newCredential("rx-w7", 1, 28)
	_, err := s.service.Accept(s.ctxAt(s.issuedAt), s.verifiedReport(c), false)
	s.Require().NoError(err)

	dispensedAt := s.issuedAt.Add(time.Hour)
	s.Require().NoError(s.service.RecordDispense(s.ctxAt(dispensedAt), "rx-w7", DispenseRecord{
		DispensedAt: dispensedAt,
		DaysSupply:  28,
	}))

	now := dispensedAt.Add(10 * 24 * time.Hour)
	status, err := s.service.RepeatEligibility(s.ctxAt(now), "rx-w7")
	s.Require().NoError(err)
	s.False(status.Eligible)
	s.Equal(11, status.DaysUntilEligible)
	s.Equal(1, status.RemainingRepeats)
}

func (s *ServiceSuite) TestPartialFillShortensRepeatInterval() {
	// The pharmacy dispensed only 14 of the prescribed 28 days, so the
	// waiting period is 75% of 14 days: a repeat 12 days later goes through.
	c := s.newCredential("rx-w10", 1, 28)
	_, err := s.service.Accept(s.ctxAt(s.issuedAt), s.verifiedReport(c), false)
	s.Require().NoError(err)

	dispensedAt := s.issuedAt.Add(time.Hour)
	s.Require().NoError(s.service.RecordDispense(s.ctxAt(dispensedAt), "rx-w10", DispenseRecord{
		DispensedAt: dispensedAt,
		DaysSupply:  14,
	}))

	now := dispensedAt.Add(12 * 24 * time.Hour)
	status, err := s.service.RepeatEligibility(s.ctxAt(now), "rx-w10")
	s.Require().NoError(err)
	s.True(status.Eligible)
	s.Zero(status.DaysUntilEligible)

	s.NoError(s.service.RecordDispense(s.ctxAt(now), "rx-w10", DispenseRecord{
		DispensedAt: now,
		DaysSupply:  14,
	}))
}

func (s *ServiceSuite) TestPrescriberIntervalHoldsBackPartialFillRepeat() {
	c, err := credential.New("rx-w11", "did:web:clinic.example:dr-a", "patient-77",
		[]credential.Medication{{Name: "A", Dosage: "1", Frequency: "daily", DurationDays: 28, Quantity: 28}},
		s.issuedAt, s.issuedAt.AddDate(0, 6, 0), 1, false,
		credential.WithMinRepeatInterval(21))
	s.Require().NoError(err)
	_, err = s.service.Accept(s.ctxAt(s.issuedAt), s.verifiedReport(c), false)
	s.Require().NoError(err)

	dispensedAt := s.issuedAt.Add(time.Hour)
	s.Require().NoError(s.service.RecordDispense(s.ctxAt(dispensedAt), "rx-w11", DispenseRecord{
		DispensedAt: dispensedAt,
		DaysSupply:  14,
	}))

	// 12 days in, the supply-based default has elapsed but the prescriber's
	// 21-day floor has not.
	now := dispensedAt.Add(12 * 24 * time.Hour)
	status, err := s.service.RepeatEligibility(s.ctxAt(now), "rx-w11")
	s.Require().NoError(err)
	s.False(status.Eligible)
	s.Equal(9, status.DaysUntilEligible)
}

func (s *ServiceSuite) TestEarlyDispenseRefusedWithoutOverride() {
	c := s.newCredential("rx-w8", 1, 28)
	_, err := s.service.Accept(s.ctxAt(s.issuedAt), s.verifiedReport(c), false)
	s.Require().NoError(err)

	dispensedAt := s.issuedAt.Add(time.Hour)
	s.Require().NoError(s.service.RecordDispense(s.ctxAt(dispensedAt), "rx-w8", DispenseRecord{
		DispensedAt: dispensedAt,
	}))

	early := dispensedAt.Add(5 * 24 * time.Hour)
	err = s.service.RecordDispense(s.ctxAt(early), "rx-w8", DispenseRecord{DispensedAt: early})
	s.Error(err)

	err = s.service.RecordDispense(s.ctxAt(early), "rx-w8", DispenseRecord{
		DispensedAt:   early,
		Override:      true,
		PharmacistRef: "pharm-42",
		Note:          "patient travelling",
	})
	s.NoError(err)
}

func (s *ServiceSuite) TestDispenseAgainstUnknownCredential() {
	err := s.service.RecordDispense(s.ctxAt(s.issuedAt), "rx-missing", DispenseRecord{})
	s.Error(err)
}

func (s *ServiceSuite) TestExhaustedRepeatsRefused() {
	c := s.newCredential("rx-w9", 0, 7) // single fill only
	_, err := s.service.Accept(s.ctxAt(s.issuedAt), s.verifiedReport(c), false)
	s.Require().NoError(err)

	dispensedAt := s.issuedAt.Add(time.Hour)
	s.Require().NoError(s.service.RecordDispense(s.ctxAt(dispensedAt), "rx-w9", DispenseRecord{
		DispensedAt: dispensedAt,
	}))

	later := dispensedAt.Add(30 * 24 * time.Hour)
	err = s.service.RecordDispense(s.ctxAt(later), "rx-w9", DispenseRecord{DispensedAt: later, Override: true})
	s.Error(err, "override must not restore exhausted repeats")
}
