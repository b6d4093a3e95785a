package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
)

const (
	profilesDir = "profiles"
	entriesDir  = "entries"
)

// FS stores profiles and entries as JSON files under a vault directory:
//
//	<dir>/profiles/<owner>.json
//	<dir>/entries/<owner>/<id>.json
//
// Profiles are published with a hard link so a second writer for the same
// owner fails instead of replacing the first.
type FS struct {
	Dir string
}

var (
	_ vault.ProfileStore = FS{}
	_ vault.EntryStore   = FS{}
)

// ProfilePath resolves the profile JSON path for owner.
func (s FS) ProfilePath(owner string) string {
	return filepath.Join(s.Dir, profilesDir, owner+".json")
}

func (s FS) entryDir(owner string) string {
	return filepath.Join(s.Dir, entriesDir, owner)
}

func (s FS) entryPath(owner, id string) string {
	return filepath.Join(s.entryDir(owner), id+".json")
}

func ensureDir(dir string) error {
	if dir == "" {
		return errors.New("vault directory not specified")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}
	return nil
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\\x00") || id == "." || id == ".." {
		return fmt.Errorf("invalid entry id %q", id)
	}
	return nil
}

// ReadProfile reads the owner's profile from disk.
func (s FS) ReadProfile(_ context.Context, owner string) (*vault.SecurityProfile, error) {
	if err := vault.ValidateOwner(owner); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.ProfilePath(owner))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, vault.ErrProfileNotFound
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p vault.SecurityProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// WriteProfile persists the profile with restrictive permissions. It never
// overwrites an existing profile.
func (s FS) WriteProfile(_ context.Context, owner string, p *vault.SecurityProfile) error {
	if err := vault.ValidateOwner(owner); err != nil {
		return err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	dir := filepath.Join(s.Dir, profilesDir)
	tmpPath, err := writeTemp(dir, "profile-*.json", data)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, s.ProfilePath(owner)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return vault.ErrProfileAlreadyExists
		}
		return fmt.Errorf("publish profile: %w", err)
	}
	return nil
}

// PutEntry writes the entry atomically, replacing any previous version. The
// temp file is named after the entry with a random suffix, so it never
// matches the *.json listing pattern.
func (s FS) PutEntry(_ context.Context, owner string, e vault.EncryptedEntry) error {
	if err := vault.ValidateOwner(owner); err != nil {
		return err
	}
	if err := validateID(e.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	if err := ensureDir(s.entryDir(owner)); err != nil {
		return err
	}
	if err := atomic.WriteFile(s.entryPath(owner, e.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("replace entry: %w", err)
	}
	return nil
}

// GetEntry reads one entry.
func (s FS) GetEntry(_ context.Context, owner, id string) (vault.EncryptedEntry, error) {
	if err := vault.ValidateOwner(owner); err != nil {
		return vault.EncryptedEntry{}, err
	}
	if err := validateID(id); err != nil {
		return vault.EncryptedEntry{}, err
	}
	return readEntry(s.entryPath(owner, id))
}

func readEntry(path string) (vault.EncryptedEntry, error) {
	var e vault.EncryptedEntry

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return e, vault.ErrEntryNotFound
		}
		return e, fmt.Errorf("read entry: %w", err)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("decode entry: %w", err)
	}
	return e, nil
}

// ListEntries returns every entry of owner ordered by creation time.
func (s FS) ListEntries(_ context.Context, owner string) ([]vault.EncryptedEntry, error) {
	if err := vault.ValidateOwner(owner); err != nil {
		return nil, err
	}

	names, err := filepath.Glob(filepath.Join(s.entryDir(owner), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	out := make([]vault.EncryptedEntry, 0, len(names))
	for _, name := range names {
		e, err := readEntry(name)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// DeleteEntry removes one entry.
func (s FS) DeleteEntry(_ context.Context, owner, id string) error {
	if err := vault.ValidateOwner(owner); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}

	if err := os.Remove(s.entryPath(owner, id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return vault.ErrEntryNotFound
		}
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// writeTemp writes data to a new 0600 temp file in dir and returns its path.
// Profiles are published from it with a hard link.
func writeTemp(dir, pattern string, data []byte) (string, error) {
	if err := ensureDir(dir); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("chmod temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmpPath, nil
}
