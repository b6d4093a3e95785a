package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
	"github.com/Hussein-Mazeh/PasswordVault/krypto"
)

// timeLayout is fixed-width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InsertProfile stores p for owner. The owner_id primary key makes a second
// insert for the same owner fail with vault.ErrProfileAlreadyExists.
func InsertProfile(d *DB, owner string, p *vault.SecurityProfile) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}

	kdf, err := json.Marshal(p.KDF)
	if err != nil {
		return fmt.Errorf("encode kdf params: %w", err)
	}

	res, err := d.sql.Exec(
		`INSERT INTO security_profiles (owner_id, version, salt, canary_ciphertext, canary_iv, kdf, cipher, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO NOTHING`,
		owner, p.Version, p.Salt, p.CanaryCiphertext, p.CanaryIV, string(kdf), string(p.Cipher),
		p.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert profile rows affected: %w", err)
	}
	if n == 0 {
		return vault.ErrProfileAlreadyExists
	}
	return nil
}

// GetProfile loads the owner's profile or returns vault.ErrProfileNotFound.
func GetProfile(d *DB, owner string) (*vault.SecurityProfile, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}

	var (
		p               vault.SecurityProfile
		kdf, cipher, at string
	)
	err := d.sql.QueryRow(
		`SELECT owner_id, version, salt, canary_ciphertext, canary_iv, kdf, cipher, created_at
		 FROM security_profiles
		 WHERE owner_id = ?`,
		owner,
	).Scan(
		&p.Owner,
		&p.Version,
		&p.Salt,
		&p.CanaryCiphertext,
		&p.CanaryIV,
		&kdf,
		&cipher,
		&at,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vault.ErrProfileNotFound
		}
		return nil, fmt.Errorf("select profile: %w", err)
	}

	if err := json.Unmarshal([]byte(kdf), &p.KDF); err != nil {
		return nil, fmt.Errorf("decode kdf params: %w", err)
	}
	p.Cipher = krypto.Suite(cipher)
	if p.CreatedAt, err = time.Parse(timeLayout, at); err != nil {
		return nil, fmt.Errorf("parse profile created_at: %w", err)
	}
	return &p, nil
}
