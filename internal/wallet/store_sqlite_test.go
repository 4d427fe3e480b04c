package wallet

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	_ "modernc.org/sqlite"

	"rxchange/internal/credential"
	"rxchange/internal/sentinel"
	"rxchange/internal/verify"
)

type SQLiteStoreSuite struct {
	suite.Suite
	db    *sql.DB
	store *SQLiteStore
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func (s *SQLiteStoreSuite) SetupTest() {
	db, err := sql.Open("sqlite", ":memory:")
	s.Require().NoError(err)
	// A single connection keeps every statement on the same in-memory
	// database.
	db.SetMaxOpenConns(1)
	s.db = db

	s.store = NewSQLiteStore(db)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *SQLiteStoreSuite) TearDownTest() {
	s.NoError(s.db.Close())
}

func (s *SQLiteStoreSuite) entry(id string) *WalletEntry {
	issuedAt := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
	c, err := credential.New(id, "did:web:clinic.example:dr-a", "patient-77",
		[]credential.Medication{{Name: "A", Dosage: "1", Frequency: "daily", DurationDays: 7, Quantity: 7}},
		issuedAt, issuedAt.AddDate(0, 6, 0), 1, false)
	s.Require().NoError(err)

	return &WalletEntry{
		CredentialID: id,
		Credential:   c,
		Report: &verify.Report{
			CredentialID: id,
			IssuerDID:    c.IssuerDID,
			Overall:      verify.OutcomeVerified,
			Checks:       []verify.Check{{Name: verify.CheckCodec, Outcome: verify.CheckPass}},
			EvaluatedAt:  issuedAt,
		},
		Decision:   DecisionAccepted,
		AcceptedAt: issuedAt,
	}
}

func (s *SQLiteStoreSuite) TestInsertAndFindRoundTrip() {
	entry := s.entry("rx-sql-1")
	stored, created, err := s.store.Insert(context.Background(), entry)
	s.Require().NoError(err)
	s.True(created)
	s.Equal("rx-sql-1", stored.CredentialID)

	found, err := s.store.Find(context.Background(), "rx-sql-1")
	s.Require().NoError(err)
	s.Equal(entry.CredentialID, found.CredentialID)
	s.Equal(entry.Decision, found.Decision)
	s.Equal(entry.Credential.ID, found.Credential.ID)
	s.Equal(verify.OutcomeVerified, found.Report.Overall)
	s.True(entry.AcceptedAt.Equal(found.AcceptedAt))
}

func (s *SQLiteStoreSuite) TestInsertIsIdempotent() {
	entry := s.entry("rx-sql-2")
	_, created, err := s.store.Insert(context.Background(), entry)
	s.Require().NoError(err)
	s.True(created)

	again := s.entry("rx-sql-2")
	again.AcceptedAt = entry.AcceptedAt.Add(time.Hour)
	stored, created, err := s.store.Insert(context.Background(), again)
	s.Require().NoError(err)
	s.False(created)
	s.True(stored.AcceptedAt.Equal(entry.AcceptedAt), "original entry must be preserved")
}

func (s *SQLiteStoreSuite) TestConcurrentInsertsCreateOneRow() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.store.Insert(context.Background(), s.entry("rx-sql-3"))
			s.NoError(err)
		}()
	}
	wg.Wait()

	entries, err := s.store.List(context.Background())
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *SQLiteStoreSuite) TestFindMissing() {
	_, err := s.store.Find(context.Background(), "rx-absent")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SQLiteStoreSuite) TestDispenseHistory() {
	entry := s.entry("rx-sql-4")
	_, _, err := s.store.Insert(context.Background(), entry)
	s.Require().NoError(err)

	first := DispenseRecord{
		CredentialID: "rx-sql-4",
		DispensedAt:  entry.AcceptedAt.Add(time.Hour),
		DaysSupply:   7,
	}
	second := DispenseRecord{
		CredentialID:  "rx-sql-4",
		DispensedAt:   entry.AcceptedAt.Add(8 * 24 * time.Hour),
		DaysSupply:    7,
		Override:      true,
		PharmacistRef: "pharm-42",
	}
	s.Require().NoError(s.store.AppendDispense(context.Background(), "rx-sql-4", first))
	s.Require().NoError(s.store.AppendDispense(context.Background(), "rx-sql-4", second))

	found, err := s.store.Find(context.Background(), "rx-sql-4")
	s.Require().NoError(err)
	s.Require().Len(found.Dispenses, 2)
	s.True(found.Dispenses[0].DispensedAt.Before(found.Dispenses[1].DispensedAt))
	s.True(found.Dispenses[1].Override)
	s.Equal("pharm-42", found.Dispenses[1].PharmacistRef)

	s.ErrorIs(s.store.AppendDispense(context.Background(), "rx-absent", first), sentinel.ErrNotFound)
}
