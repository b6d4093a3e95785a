package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
)

// UpsertEntry inserts or replaces an encrypted entry row.
func UpsertEntry(d *DB, owner string, e vault.EncryptedEntry) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}

	_, err := d.sql.Exec(
		`INSERT INTO vault_entries (owner_id, entry_id, ciphertext, iv, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, entry_id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			iv         = excluded.iv,
			updated_at = excluded.updated_at`,
		owner, e.ID, e.Ciphertext, e.IV,
		e.CreatedAt.UTC().Format(timeLayout), e.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (vault.EncryptedEntry, error) {
	var (
		e                vault.EncryptedEntry
		created, updated string
	)
	if err := s.Scan(&e.ID, &e.Ciphertext, &e.IV, &created, &updated); err != nil {
		return e, err
	}

	var err error
	if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return e, fmt.Errorf("parse entry created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return e, fmt.Errorf("parse entry updated_at: %w", err)
	}
	return e, nil
}

// GetEntry returns one entry or vault.ErrEntryNotFound.
func GetEntry(d *DB, owner, id string) (vault.EncryptedEntry, error) {
	if d == nil || d.sql == nil {
		return vault.EncryptedEntry{}, fmt.Errorf("database handle is nil")
	}

	row := d.sql.QueryRow(
		`SELECT entry_id, ciphertext, iv, created_at, updated_at
		 FROM vault_entries
		 WHERE owner_id = ? AND entry_id = ?`,
		owner, id,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, vault.ErrEntryNotFound
		}
		return e, fmt.Errorf("select entry: %w", err)
	}
	return e, nil
}

// ListEntries returns all entries of owner, oldest first.
func ListEntries(d *DB, owner string) ([]vault.EncryptedEntry, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}

	rows, err := d.sql.Query(
		`SELECT entry_id, ciphertext, iv, created_at, updated_at
		 FROM vault_entries
		 WHERE owner_id = ?
		 ORDER BY created_at, entry_id`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	results := []vault.EncryptedEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", err)
	}

	return results, nil
}

// DeleteEntry removes one entry. It returns vault.ErrEntryNotFound if nothing
// was deleted.
func DeleteEntry(d *DB, owner, id string) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}

	res, err := d.sql.Exec(
		`DELETE FROM vault_entries WHERE owner_id = ? AND entry_id = ?`,
		owner, id,
	)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if n == 0 {
		return vault.ErrEntryNotFound
	}
	return nil
}
