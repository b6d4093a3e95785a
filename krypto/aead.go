package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the per-encryption nonce length in bytes (96 bits).
const NonceSize = 12

// Suite names an AEAD construction.
type Suite string

const (
	AES256GCM        Suite = "aes-256-gcm"
	ChaCha20Poly1305 Suite = "chacha20-poly1305"
)

// ErrDecryptionFailed covers every decrypt failure: bad tag, wrong key,
// corrupted bytes or malformed encoding.
var ErrDecryptionFailed = errors.New("decryption failed")

// Validate reports whether s is a supported suite.
func (s Suite) Validate() error {
	switch s {
	case AES256GCM, ChaCha20Poly1305:
		return nil
	default:
		return fmt.Errorf("unsupported cipher %q", s)
	}
}

func (s Suite) newAEAD(key []byte) (cipher.AEAD, error) {
	switch s {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create gcm: %w", err)
		}
		return gcm, nil
	case ChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("create chacha20poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, s.Validate()
	}
}

// Cipher performs authenticated encryption under derived keys.
// The zero value uses AES-256-GCM.
type Cipher struct {
	Suite Suite
}

// NewCipher returns a Cipher for the given suite.
func NewCipher(s Suite) (Cipher, error) {
	if err := s.Validate(); err != nil {
		return Cipher{}, err
	}
	return Cipher{Suite: s}, nil
}

func (c Cipher) suite() Suite {
	if c.Suite == "" {
		return AES256GCM
	}
	return c.Suite
}

// Encrypt seals plaintext under key with a fresh random nonce. The nonce is
// always generated here; callers cannot supply one.
func (c Cipher) Encrypt(key *Key, plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	err = key.use(UsageEncrypt, func(raw []byte) error {
		aead, err := c.suite().newAEAD(raw)
		if err != nil {
			return err
		}
		n, err := randomBytes(aead.NonceSize())
		if err != nil {
			return fmt.Errorf("generate nonce: %w", err)
		}
		nonce = n
		ciphertext = aead.Seal(nil, nonce, plaintext, aad)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext (including its tag) under key and nonce.
// Key misuse is reported as such; every other failure is ErrDecryptionFailed.
func (c Cipher) Decrypt(key *Key, ciphertext, nonce, aad []byte) ([]byte, error) {
	var plaintext []byte
	err := key.use(UsageDecrypt, func(raw []byte) error {
		aead, err := c.suite().newAEAD(raw)
		if err != nil {
			return ErrDecryptionFailed
		}
		if len(nonce) != aead.NonceSize() {
			return ErrDecryptionFailed
		}
		pt, err := aead.Open(nil, nonce, ciphertext, aad)
		if err != nil {
			return ErrDecryptionFailed
		}
		plaintext = pt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// EncryptString seals plaintext and returns base64 ciphertext and nonce.
func (c Cipher) EncryptString(key *Key, plaintext, aad []byte) (ciphertext, nonce string, err error) {
	ct, n, err := c.Encrypt(key, plaintext, aad)
	if err != nil {
		return "", "", err
	}
	return Encode(ct), Encode(n), nil
}

// DecryptString decodes base64 ciphertext and nonce, then decrypts. A
// malformed encoding matches both ErrDecryptionFailed and ErrMalformedEncoding.
func (c Cipher) DecryptString(key *Key, ciphertext, nonce string, aad []byte) ([]byte, error) {
	ct, err := Decode(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %w", ErrDecryptionFailed, err)
	}
	n, err := Decode(nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", ErrDecryptionFailed, err)
	}
	return c.Decrypt(key, ct, n, aad)
}

// Encrypt seals plaintext with AES-256-GCM.
func Encrypt(key *Key, plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	return Cipher{}.Encrypt(key, plaintext, aad)
}

// Decrypt opens an AES-256-GCM ciphertext.
func Decrypt(key *Key, ciphertext, nonce, aad []byte) ([]byte, error) {
	return Cipher{}.Decrypt(key, ciphertext, nonce, aad)
}
