package krypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the enforced salt length in bytes (128 bits).
	SaltSize = 16
	// KeySize is the derived key length in bytes (256 bits).
	KeySize = 32

	// AlgorithmPBKDF2 is PBKDF2-HMAC-SHA256, the default derivation.
	AlgorithmPBKDF2 = "pbkdf2-sha256"
	// AlgorithmArgon2id is the memory-hard alternative.
	AlgorithmArgon2id = "argon2id"

	// MinIterations is the lowest PBKDF2 round count accepted for new vaults.
	MinIterations = 600_000

	// Upper bounds on the cost read back from a stored profile.
	MaxIterations     = 10_000_000
	MaxArgon2MemoryKB = 1024 * 1024
	MaxArgon2Time     = 16
	MaxParallelism    = 64
)

var (
	// ErrEnvironmentInsecure means a required primitive or the random source is unusable.
	ErrEnvironmentInsecure = errors.New("environment insecure: required cryptographic primitive unavailable")

	errEmptyPassword = errors.New("password is required")
)

// randReader is the only source of salts and nonces.
var randReader io.Reader = rand.Reader

// Params captures tunable parameters for key derivation.
type Params struct {
	Algorithm  string `json:"name"`
	Iterations uint32 `json:"iterations,omitempty"`
	// Argon2id only.
	MemoryKB    uint32 `json:"memoryKB,omitempty"`
	Time        uint32 `json:"time,omitempty"`
	Parallelism uint8  `json:"parallelism,omitempty"`
}

// DefaultParams returns PBKDF2-HMAC-SHA256 with 600,000 rounds.
func DefaultParams() Params {
	return Params{
		Algorithm:  AlgorithmPBKDF2,
		Iterations: MinIterations,
	}
}

// DefaultArgon2Params returns the Argon2id settings used when argon2id is selected.
func DefaultArgon2Params() Params {
	return Params{
		Algorithm:   AlgorithmArgon2id,
		MemoryKB:    64 * 1024,
		Time:        3,
		Parallelism: 1,
	}
}

// Validate checks that the parameters describe a usable derivation whose
// cost stays within the Max* bounds.
func (p Params) Validate() error {
	switch p.Algorithm {
	case AlgorithmPBKDF2:
		if p.Iterations == 0 || p.Iterations > MaxIterations {
			return fmt.Errorf("iterations must be between 1 and %d", MaxIterations)
		}
	case AlgorithmArgon2id:
		if p.MemoryKB == 0 || p.MemoryKB > MaxArgon2MemoryKB {
			return fmt.Errorf("memory parameter must be between 1 and %d KiB", MaxArgon2MemoryKB)
		}
		if p.Time == 0 || p.Time > MaxArgon2Time {
			return fmt.Errorf("time parameter must be between 1 and %d", MaxArgon2Time)
		}
		if p.Parallelism == 0 || p.Parallelism > MaxParallelism {
			return fmt.Errorf("parallelism must be between 1 and %d", MaxParallelism)
		}
	default:
		return fmt.Errorf("unsupported kdf %q", p.Algorithm)
	}
	return nil
}

// DeriveKey turns (password, salt) into a key handle usable for the given operations.
// The same inputs always yield the same key. The raw bytes are sealed into the
// returned Key and wiped from the stack buffer.
func DeriveKey(password string, salt []byte, p Params, usage Usage) (*Key, error) {
	if err := SelfTest(); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, errEmptyPassword
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes", SaltSize)
	}
	if usage&(UsageEncrypt|UsageDecrypt) == 0 {
		return nil, errors.New("key usage is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	pw := []byte(password)
	defer wipe(pw)

	var raw []byte
	switch p.Algorithm {
	case AlgorithmPBKDF2:
		raw = pbkdf2.Key(pw, salt, int(p.Iterations), KeySize, sha256.New)
	case AlgorithmArgon2id:
		raw = argon2.IDKey(pw, salt, p.Time, p.MemoryKB, p.Parallelism, KeySize)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("derived key has unexpected length %d", len(raw))
	}

	return newKey(raw, usage)
}

// NewSalt returns a fresh random salt from the cryptographic random source.
func NewSalt() ([]byte, error) {
	return randomBytes(SaltSize)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("%w: read random: %v", ErrEnvironmentInsecure, err)
	}
	if bytes.Equal(b, make([]byte, n)) {
		return nil, fmt.Errorf("%w: random source produced zero bytes", ErrEnvironmentInsecure)
	}
	return b, nil
}

// PBKDF2-HMAC-SHA256("password", "salt", 2 rounds, 32 bytes).
const pbkdf2KnownAnswer = "ae4d0c95af6b46d32d0adff928f06dd02a303f8ef3c251dfd6e2d85a95474c43"

var (
	selfTestOnce sync.Once
	selfTestErr  error
)

// SelfTest verifies once per process that PBKDF2, AES-GCM and the random
// source behave. Its result is sticky.
func SelfTest() error {
	selfTestOnce.Do(func() {
		selfTestErr = runSelfTest()
	})
	return selfTestErr
}

func runSelfTest() error {
	want, _ := hex.DecodeString(pbkdf2KnownAnswer)
	got := pbkdf2.Key([]byte("password"), []byte("salt"), 2, KeySize, sha256.New)
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: pbkdf2 known-answer mismatch", ErrEnvironmentInsecure)
	}

	block, err := aes.NewCipher(make([]byte, KeySize))
	if err != nil {
		return fmt.Errorf("%w: aes: %v", ErrEnvironmentInsecure, err)
	}
	if _, err := cipher.NewGCM(block); err != nil {
		return fmt.Errorf("%w: gcm: %v", ErrEnvironmentInsecure, err)
	}

	sample := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, sample); err != nil {
		return fmt.Errorf("%w: read random: %v", ErrEnvironmentInsecure, err)
	}
	return nil
}
