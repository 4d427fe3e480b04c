package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rxchange/internal/credential"
)

type TemporalSuite struct {
	suite.Suite
	issuedAt time.Time
}

func TestTemporalSuite(t *testing.T) {
	suite.Run(t, new(TemporalSuite))
}

func (s *TemporalSuite) SetupTest() {
	s.issuedAt = time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
}

func (s *TemporalSuite) newCredential(expiresAt time.Time, controlled bool, repeats, durationDays int) *credential.PrescriptionCredential {
	c, err := credential.New("rx-temp-1", "did:web:clinic.example:dr-a", "patient-77",
		[]credential.Medication{{Name: "A", Dosage: "1", Frequency: "daily", DurationDays: durationDays, Quantity: durationDays}},
		s.issuedAt, expiresAt, repeats, controlled)
	s.Require().NoError(err)
	return c
}

func (s *TemporalSuite) TestEffectiveExpiryStandardCappedAtSixMonths() {
	stated := s.issuedAt.AddDate(1, 0, 0)
	c := s.newCredential(stated, false, 0, 7)

	result := Evaluate(c, s.issuedAt.AddDate(0, 1, 0))
	s.True(result.Valid)
	s.Equal(s.issuedAt.AddDate(0, 6, 0), result.EffectiveExpiry,
		"stated expiry beyond six months must be capped")
}

func (s *TemporalSuite) TestEffectiveExpiryControlledCappedAtThirtyDays() {
	stated := s.issuedAt.AddDate(0, 6, 0)
	c := s.newCredential(stated, true, 0, 7)

	result := Evaluate(c, s.issuedAt.AddDate(0, 0, 31))
	s.False(result.Valid)
	s.Equal(s.issuedAt.AddDate(0, 0, 30), result.EffectiveExpiry)
	s.Contains(result.Reason, "regulatory")
}

func (s *TemporalSuite) TestStatedExpiryWinsWhenEarlier() {
	stated := s.issuedAt.AddDate(0, 0, 14)
	c := s.newCredential(stated, false, 0, 7)

	result := Evaluate(c, s.issuedAt)
	s.Equal(stated, result.EffectiveExpiry)
}

func (s *TemporalSuite) TestExactExpiryInstantIsStillValid() {
	stated := s.issuedAt.AddDate(0, 0, 14)
	c := s.newCredential(stated, false, 0, 7)

	s.True(Evaluate(c, stated).Valid, "the boundary instant is inside the window")
	s.False(Evaluate(c, stated.Add(time.Second)).Valid)
}

func (s *TemporalSuite) TestNotYetValidBeforeIssue() {
	c := s.newCredential(s.issuedAt.AddDate(0, 1, 0), false, 0, 7)
	result := Evaluate(c, s.issuedAt.Add(-time.Hour))
	s.False(result.Valid)
	s.Contains(result.Reason, "not valid until")
}

func (s *TemporalSuite) TestProximityWarnings() {
	stated := s.issuedAt.AddDate(0, 0, 14)
	c := s.newCredential(stated, false, 0, 7)

	s.Equal(ProximityNone, Evaluate(c, s.issuedAt).Proximity)
	s.Equal(ProximityWeek, Evaluate(c, stated.Add(-6*24*time.Hour)).Proximity)
	s.Equal(ProximityWeek, Evaluate(c, stated.Add(-7*24*time.Hour)).Proximity)
	s.Equal(ProximityDay, Evaluate(c, stated.Add(-23*time.Hour)).Proximity)
	s.Equal(ProximityPassed, Evaluate(c, stated.Add(time.Hour)).Proximity)
}

func (s *TemporalSuite) TestRepeatEligibilityInitialFill() {
	c := s.newCredential(s.issuedAt.AddDate(0, 3, 0), false, 2, 28)
	e := RepeatEligibility(c, 0, time.Time{}, 0, s.issuedAt.Add(time.Hour), false)
	s.True(e.Eligible)
	s.Equal(3, e.DispensesAllowed)
	s.Equal(3, e.RemainingRepeats)
}

func (s *TemporalSuite) TestRepeatEligibleAfterThreeQuartersOfSupply() {
	c := s.newCredential(s.issuedAt.AddDate(0, 3, 0), false, 2, 28)
	lastDispensed := s.issuedAt

	// 75% of a 28-day supply is 21 days.
	tooEarly := lastDispensed.Add(20 * 24 * time.Hour)
	e := RepeatEligibility(c, 1, lastDispensed, 28, tooEarly, false)
	s.False(e.Eligible)
	s.Equal(lastDispensed.Add(21*24*time.Hour), e.EarliestAt)

	onTime := lastDispensed.Add(21 * 24 * time.Hour)
	e = RepeatEligibility(c, 1, lastDispensed, 28, onTime, false)
	s.True(e.Eligible)
	s.False(e.Overridden)
}

func (s *TemporalSuite) TestRepeatIntervalFollowsPriorDispenseSupply() {
	// Partial fill: the pharmacy handed over 14 of the 28 prescribed days, so
	// the waiting period is 75% of 14 days, not of the credential's 28.
	c := s.newCredential(s.issuedAt.AddDate(0, 3, 0), false, 2, 28)
	lastDispensed := s.issuedAt

	twelveDaysLater := lastDispensed.Add(12 * 24 * time.Hour)
	e := RepeatEligibility(c, 1, lastDispensed, 14, twelveDaysLater, false)
	s.True(e.Eligible, "three quarters of the 14-day prior supply elapsed after 10.5 days")
	s.Equal(lastDispensed.Add(252*time.Hour), e.EarliestAt)

	// With no recorded supply the credential's own days-supply still governs.
	e = RepeatEligibility(c, 1, lastDispensed, 0, twelveDaysLater, false)
	s.False(e.Eligible)
	s.Equal(lastDispensed.Add(21*24*time.Hour), e.EarliestAt)
}

func (s *TemporalSuite) TestPrescriberMinimumIntervalWinsWhenLonger() {
	c, err := credential.New("rx-temp-2", "did:web:clinic.example:dr-a", "patient-77",
		[]credential.Medication{{Name: "A", Dosage: "1", Frequency: "daily", DurationDays: 28, Quantity: 28}},
		s.issuedAt, s.issuedAt.AddDate(0, 3, 0), 2, false,
		credential.WithMinRepeatInterval(21))
	s.Require().NoError(err)
	lastDispensed := s.issuedAt

	// The supply-based default (75% of 14 days) would allow a repeat after
	// 10.5 days; the prescriber's 21-day floor holds it back.
	twelveDaysLater := lastDispensed.Add(12 * 24 * time.Hour)
	e := RepeatEligibility(c, 1, lastDispensed, 14, twelveDaysLater, false)
	s.False(e.Eligible)
	s.Equal(lastDispensed.Add(21*24*time.Hour), e.EarliestAt)

	e = RepeatEligibility(c, 1, lastDispensed, 14, lastDispensed.Add(21*24*time.Hour), false)
	s.True(e.Eligible)
}

func (s *TemporalSuite) TestOverrideGrantsEarlyRepeat() {
	c := s.newCredential(s.issuedAt.AddDate(0, 3, 0), false, 2, 28)
	lastDispensed := s.issuedAt
	early := lastDispensed.Add(5 * 24 * time.Hour)

	e := RepeatEligibility(c, 1, lastDispensed, 28, early, true)
	s.True(e.Eligible)
	s.True(e.Overridden)
}

func (s *TemporalSuite) TestOverrideCannotRestoreExhaustedRepeats() {
	c := s.newCredential(s.issuedAt.AddDate(0, 3, 0), false, 1, 28)
	e := RepeatEligibility(c, 2, s.issuedAt, 28, s.issuedAt.AddDate(0, 1, 0), true)
	s.False(e.Eligible)
	s.Contains(e.Reason, "repeats")
}

func (s *TemporalSuite) TestOverrideCannotReviveExpiredPrescription() {
	c := s.newCredential(s.issuedAt.AddDate(0, 0, 14), false, 2, 7)
	afterExpiry := s.issuedAt.AddDate(0, 0, 15)
	e := RepeatEligibility(c, 1, s.issuedAt, 7, afterExpiry, true)
	s.False(e.Eligible)
}
