package vault

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Hussein-Mazeh/PasswordVault/krypto"
)

// CanaryPlaintext is the marker sealed into every security profile. Recovering
// it is the only proof that a candidate master password is correct.
const CanaryPlaintext = "vault-canary:v1:6f3c1b0e-the-vault-is-open"

// ProfileVersion is the current SecurityProfile layout.
const ProfileVersion = 1

var (
	// ErrProfileAlreadyExists is returned when the owner already has a profile.
	ErrProfileAlreadyExists = errors.New("security profile already exists")
	// ErrProfileNotFound is returned when the owner has no profile yet.
	ErrProfileNotFound = errors.New("security profile not found")
	// ErrInvalidMasterPassword does not distinguish a wrong password from a damaged profile.
	ErrInvalidMasterPassword = errors.New("invalid master password")
)

// SecurityProfile is the persisted canary record; one per owner, immutable.
type SecurityProfile struct {
	Version          int           `json:"version"`
	Owner            string        `json:"owner"`
	Salt             string        `json:"salt"`
	CanaryCiphertext string        `json:"canary_ciphertext"`
	CanaryIV         string        `json:"canary_iv"`
	KDF              krypto.Params `json:"kdf"`
	Cipher           krypto.Suite  `json:"cipher"`
	CreatedAt        time.Time     `json:"created_at"`
}

// SaltBytes decodes the profile salt.
func (p *SecurityProfile) SaltBytes() ([]byte, error) {
	return krypto.Decode(p.Salt)
}

// CipherSuite returns the AEAD suite recorded in the profile.
func (p *SecurityProfile) CipherSuite() krypto.Cipher {
	return krypto.Cipher{Suite: p.Cipher}
}

// ProfileStore persists security profiles. Uniqueness per owner is the
// store's responsibility.
type ProfileStore interface {
	// ReadProfile returns ErrProfileNotFound when the owner has none.
	ReadProfile(ctx context.Context, owner string) (*SecurityProfile, error)
	// WriteProfile returns ErrProfileAlreadyExists on conflict.
	WriteProfile(ctx context.Context, owner string, p *SecurityProfile) error
}

// ProfileOptions selects the derivation and cipher for a new profile.
type ProfileOptions struct {
	KDF    krypto.Params
	Cipher krypto.Suite
	// Now is used for CreatedAt; defaults to time.Now.
	Now func() time.Time
}

// DefaultProfileOptions returns PBKDF2-SHA256 (600,000 rounds) with AES-256-GCM.
func DefaultProfileOptions() ProfileOptions {
	return ProfileOptions{
		KDF:    krypto.DefaultParams(),
		Cipher: krypto.AES256GCM,
	}
}

func canaryAAD(owner string) []byte {
	return []byte("canary:v1:" + owner)
}

// ValidateOwner rejects owner identifiers that cannot key a store record.
func ValidateOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return errors.New("owner is required")
	}
	if len(owner) > 128 {
		return errors.New("owner is too long")
	}
	if strings.ContainsAny(owner, "/\\\x00") || owner == "." || owner == ".." {
		return fmt.Errorf("owner %q contains invalid characters", owner)
	}
	return nil
}

// NewProfile builds a security profile for owner without persisting it.
func NewProfile(owner, password string, opts ProfileOptions) (*SecurityProfile, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}
	if opts.Cipher == "" {
		opts.Cipher = krypto.AES256GCM
	}
	c, err := krypto.NewCipher(opts.Cipher)
	if err != nil {
		return nil, err
	}
	if opts.KDF.Algorithm == "" {
		opts.KDF = krypto.DefaultParams()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	salt, err := krypto.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key, err := krypto.DeriveKey(password, salt, opts.KDF, krypto.UsageEncrypt)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer key.Destroy()

	ct, iv, err := c.EncryptString(key, []byte(CanaryPlaintext), canaryAAD(owner))
	if err != nil {
		return nil, fmt.Errorf("encrypt canary: %w", err)
	}

	return &SecurityProfile{
		Version:          ProfileVersion,
		Owner:            owner,
		Salt:             krypto.Encode(salt),
		CanaryCiphertext: ct,
		CanaryIV:         iv,
		KDF:              opts.KDF,
		Cipher:           opts.Cipher,
		CreatedAt:        now().UTC(),
	}, nil
}

// CreateProfile creates and persists the owner's profile. The existence check
// and the write are not atomic; a store conflict is reported the same way as
// an existing profile.
func CreateProfile(ctx context.Context, store ProfileStore, owner, password string, opts ProfileOptions) (*SecurityProfile, error) {
	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	existing, err := store.ReadProfile(ctx, owner)
	switch {
	case err == nil && existing != nil:
		return nil, ErrProfileAlreadyExists
	case err != nil && !errors.Is(err, ErrProfileNotFound):
		return nil, fmt.Errorf("read profile: %w", err)
	}

	p, err := NewProfile(owner, password, opts)
	if err != nil {
		return nil, err
	}

	if err := store.WriteProfile(ctx, owner, p); err != nil {
		if errors.Is(err, ErrProfileAlreadyExists) {
			return nil, ErrProfileAlreadyExists
		}
		return nil, fmt.Errorf("write profile: %w", err)
	}
	return p, nil
}

// Verify reports whether password unlocks p. Every failure, including a
// damaged profile, is reported as false.
func Verify(password string, p *SecurityProfile) bool {
	key, err := openProfile(password, p, krypto.UsageDecrypt)
	if err != nil {
		return false
	}
	key.Destroy()
	return true
}

// OpenProfile verifies password against p and returns the vault key on
// success. Failures are ErrProfileNotFound, krypto.ErrEnvironmentInsecure or
// ErrInvalidMasterPassword.
func OpenProfile(password string, p *SecurityProfile) (*krypto.Key, error) {
	return openProfile(password, p, krypto.UsageEncrypt|krypto.UsageDecrypt)
}

func openProfile(password string, p *SecurityProfile, usage krypto.Usage) (*krypto.Key, error) {
	if p == nil {
		return nil, ErrProfileNotFound
	}
	if p.Version != ProfileVersion {
		return nil, ErrInvalidMasterPassword
	}
	// Reject out-of-range stored costs before deriving.
	if err := p.KDF.Validate(); err != nil {
		return nil, ErrInvalidMasterPassword
	}

	salt, err := p.SaltBytes()
	if err != nil {
		return nil, ErrInvalidMasterPassword
	}

	key, err := krypto.DeriveKey(password, salt, p.KDF, usage|krypto.UsageDecrypt)
	if err != nil {
		if errors.Is(err, krypto.ErrEnvironmentInsecure) {
			return nil, krypto.ErrEnvironmentInsecure
		}
		return nil, ErrInvalidMasterPassword
	}

	pt, err := p.CipherSuite().DecryptString(key, p.CanaryCiphertext, p.CanaryIV, canaryAAD(p.Owner))
	if err != nil || subtle.ConstantTimeCompare(pt, []byte(CanaryPlaintext)) != 1 {
		key.Destroy()
		return nil, ErrInvalidMasterPassword
	}

	return key, nil
}
