package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Hussein-Mazeh/PasswordVault/krypto"
)

// EntryType discriminates the entry payloads a vault can hold.
type EntryType string

const (
	TypeWebLogin   EntryType = "web_login"
	TypeSecureNote EntryType = "secure_note"
)

var (
	// ErrEntryNotFound is returned when no entry exists for the owner and id.
	ErrEntryNotFound = errors.New("vault entry not found")
	// ErrInvalidEntry wraps entry validation failures.
	ErrInvalidEntry = errors.New("invalid vault entry")
)

// Entry is the plaintext payload of a vault entry. It only exists in memory
// while the session is unlocked.
type Entry struct {
	Type EntryType `json:"type"`

	// web_login
	Domain   string `json:"domain,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Note     string `json:"note,omitempty"`

	// secure_note
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// Label is the non-secret display name of the entry.
func (e Entry) Label() string {
	if e.Type == TypeSecureNote {
		return e.Title
	}
	return e.Domain
}

// Validate applies the per-type field limits.
func (e Entry) Validate() error {
	switch e.Type {
	case TypeWebLogin:
		return firstErr(
			field("domain", e.Domain, true, 255),
			field("username", e.Username, true, 255),
			field("password", e.Password, true, 500),
			field("note", e.Note, false, 40),
		)
	case TypeSecureNote:
		return firstErr(
			field("title", e.Title, true, 255),
			field("content", e.Content, true, 2000),
		)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEntry, e.Type)
	}
}

func field(name, v string, required bool, limit int) error {
	if required && strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidEntry, name)
	}
	if utf8.RuneCountInString(v) > limit {
		return fmt.Errorf("%w: %s is too long", ErrInvalidEntry, name)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// EncryptedEntry is the persisted shape of an entry. It shares the owner's
// profile salt; only the ciphertext and per-entry IV are stored.
type EncryptedEntry struct {
	ID         string    `json:"id"`
	Ciphertext string    `json:"ciphertext"`
	IV         string    `json:"iv"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EntryStore persists opaque entry blobs keyed by owner and entry id.
type EntryStore interface {
	PutEntry(ctx context.Context, owner string, e EncryptedEntry) error
	// GetEntry returns ErrEntryNotFound when absent.
	GetEntry(ctx context.Context, owner, id string) (EncryptedEntry, error)
	ListEntries(ctx context.Context, owner string) ([]EncryptedEntry, error)
	// DeleteEntry returns ErrEntryNotFound when nothing was deleted.
	DeleteEntry(ctx context.Context, owner, id string) error
}

func entryAAD(owner, id string) []byte {
	return []byte("entry:v1:" + owner + ":" + id)
}

// SealEntry encrypts e under key. The owner and id are bound as associated
// data so a blob cannot be replayed under another id.
func SealEntry(c krypto.Cipher, key *krypto.Key, owner, id string, e Entry) (ciphertext, iv string, err error) {
	if err := e.Validate(); err != nil {
		return "", "", err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return "", "", fmt.Errorf("encode entry: %w", err)
	}
	defer zeroize(payload)

	ciphertext, iv, err = c.EncryptString(key, payload, entryAAD(owner, id))
	if err != nil {
		return "", "", fmt.Errorf("encrypt entry: %w", err)
	}
	return ciphertext, iv, nil
}

// OpenEntry decrypts a stored entry. Tampering, a wrong key and malformed
// records all report krypto.ErrDecryptionFailed.
func OpenEntry(c krypto.Cipher, key *krypto.Key, owner string, rec EncryptedEntry) (Entry, error) {
	pt, err := c.DecryptString(key, rec.Ciphertext, rec.IV, entryAAD(owner, rec.ID))
	if err != nil {
		return Entry{}, fmt.Errorf("decrypt entry %s: %w", rec.ID, err)
	}
	defer zeroize(pt)

	var e Entry
	if err := json.Unmarshal(pt, &e); err != nil {
		return Entry{}, fmt.Errorf("decrypt entry %s: %w", rec.ID, krypto.ErrDecryptionFailed)
	}
	return e, nil
}

// zeroize overwrites sensitive byte slices in place to reduce lifetime in memory.
func zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
