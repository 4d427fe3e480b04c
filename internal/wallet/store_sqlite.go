package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rxchange/internal/credential"
	"rxchange/internal/sentinel"
	"rxchange/internal/verify"
)

// SQLiteStore persists the ledger in an embedded SQLite database, the
// natural fit for a holder device that must work offline.
//
// The credential and report are stored as JSON documents; dispense records
// get their own rows so history queries do not rewrite the entry.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an opened database handle. Callers open the handle
// with the modernc.org/sqlite driver and run Migrate before first use.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the ledger tables when they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS wallet_entries (
			credential_id TEXT PRIMARY KEY,
			decision      TEXT NOT NULL,
			accepted_at   TIMESTAMP NOT NULL,
			credential    TEXT NOT NULL,
			report        TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS dispense_records (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			credential_id  TEXT NOT NULL REFERENCES wallet_entries(credential_id),
			dispensed_at   TIMESTAMP NOT NULL,
			days_supply    INTEGER NOT NULL,
			pharmacist_ref TEXT NOT NULL DEFAULT '',
			override       BOOLEAN NOT NULL DEFAULT FALSE,
			note           TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_dispense_credential
			ON dispense_records (credential_id, dispensed_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate wallet schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, entry *WalletEntry) (*WalletEntry, bool, error) {
	credJSON, reportJSON, err := encodeEntry(entry)
	if err != nil {
		return nil, false, err
	}

	// Check-and-insert in one statement: the primary key makes the race
	// impossible, ON CONFLICT makes the loser a no-op.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_entries (credential_id, decision, accepted_at, credential, report)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (credential_id) DO NOTHING
	`, entry.CredentialID, string(entry.Decision), entry.AcceptedAt.UTC(), credJSON, reportJSON)
	if err != nil {
		return nil, false, fmt.Errorf("insert wallet entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert wallet entry: %w", err)
	}
	if affected == 0 {
		existing, err := s.Find(ctx, entry.CredentialID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return copyEntry(entry), true, nil
}

func (s *SQLiteStore) Find(ctx context.Context, credentialID string) (*WalletEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT credential_id, decision, accepted_at, credential, report
		FROM wallet_entries WHERE credential_id = ?
	`, credentialID)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find wallet entry: %w", err)
	}

	entry.Dispenses, err = s.listDispenses(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*WalletEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT credential_id, decision, accepted_at, credential, report
		FROM wallet_entries ORDER BY accepted_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list wallet entries: %w", err)
	}
	defer rows.Close()

	var entries []*WalletEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list wallet entries: %w", err)
		}
		entry.Dispenses, err = s.listDispenses(ctx, entry.CredentialID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) AppendDispense(ctx context.Context, credentialID string, record DispenseRecord) error {
	if _, err := s.Find(ctx, credentialID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispense_records (credential_id, dispensed_at, days_supply, pharmacist_ref, override, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`, credentialID, record.DispensedAt.UTC(), record.DaysSupply, record.PharmacistRef, record.Override, record.Note)
	if err != nil {
		return fmt.Errorf("append dispense record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) listDispenses(ctx context.Context, credentialID string) ([]DispenseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT credential_id, dispensed_at, days_supply, pharmacist_ref, override, note
		FROM dispense_records WHERE credential_id = ? ORDER BY dispensed_at
	`, credentialID)
	if err != nil {
		return nil, fmt.Errorf("list dispense records: %w", err)
	}
	defer rows.Close()

	var records []DispenseRecord
	for rows.Next() {
		var rec DispenseRecord
		var dispensedAt time.Time
		if err := rows.Scan(&rec.CredentialID, &dispensedAt, &rec.DaysSupply, &rec.PharmacistRef, &rec.Override, &rec.Note); err != nil {
			return nil, fmt.Errorf("scan dispense record: %w", err)
		}
		rec.DispensedAt = dispensedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

type entryRow interface {
	Scan(dest ...any) error
}

func scanEntry(row entryRow) (*WalletEntry, error) {
	var entry WalletEntry
	var decision string
	var acceptedAt time.Time
	var credJSON, reportJSON []byte
	if err := row.Scan(&entry.CredentialID, &decision, &acceptedAt, &credJSON, &reportJSON); err != nil {
		return nil, err
	}
	entry.Decision = Decision(decision)
	entry.AcceptedAt = acceptedAt.UTC()

	var cred credential.PrescriptionCredential
	if err := json.Unmarshal(credJSON, &cred); err != nil {
		return nil, fmt.Errorf("decode stored credential: %w", err)
	}
	entry.Credential = &cred

	var report verify.Report
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, fmt.Errorf("decode stored report: %w", err)
	}
	report.Credential = &cred
	entry.Report = &report
	return &entry, nil
}

func encodeEntry(entry *WalletEntry) (credJSON, reportJSON []byte, err error) {
	credJSON, err = json.Marshal(entry.Credential)
	if err != nil {
		return nil, nil, fmt.Errorf("encode credential: %w", err)
	}
	reportJSON, err = json.Marshal(entry.Report)
	if err != nil {
		return nil, nil, fmt.Errorf("encode report: %w", err)
	}
	return credJSON, reportJSON, nil
}
