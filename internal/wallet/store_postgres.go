package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rxchange/internal/sentinel"
)

// PostgresStore persists the ledger in PostgreSQL, for pharmacy deployments
// where several terminals share one wallet.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an opened database handle; the schema ships in the
// migrations directory.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, entry *WalletEntry) (*WalletEntry, bool, error) {
	credJSON, reportJSON, err := encodeEntry(entry)
	if err != nil {
		return nil, false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_entries (credential_id, decision, accepted_at, credential, report)
		VALUES ($1, $2, $3, $4, $5)
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

func (s *PostgresStore) Find(ctx context.Context, credentialID string) (*WalletEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT credential_id, decision, accepted_at, credential, report
		FROM wallet_entries WHERE credential_id = $1
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

func (s *PostgresStore) List(ctx context.Context) ([]*WalletEntry, error) {
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

func (s *PostgresStore) AppendDispense(ctx context.Context, credentialID string, record DispenseRecord) error {
	if _, err := s.Find(ctx, credentialID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispense_records (credential_id, dispensed_at, days_supply, pharmacist_ref, override, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, credentialID, record.DispensedAt.UTC(), record.DaysSupply, record.PharmacistRef, record.Override, record.Note)
	if err != nil {
		return fmt.Errorf("append dispense record: %w", err)
	}
	return nil
}

func (s *PostgresStore) listDispenses(ctx context.Context, credentialID string) ([]DispenseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT credential_id, dispensed_at, days_supply, pharmacist_ref, override, note
		FROM dispense_records WHERE credential_id = $1 ORDER BY dispensed_at
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
