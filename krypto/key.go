package krypto

import (
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// Usage restricts what a derived key may be used for.
type Usage uint8

const (
	UsageEncrypt Usage = 1 << iota
	UsageDecrypt
)

// Allows reports whether u includes every operation in op.
func (u Usage) Allows(op Usage) bool {
	return u&op == op
}

var (
	// ErrKeyDestroyed is returned when a destroyed key is used.
	ErrKeyDestroyed = errors.New("key material destroyed")
	// ErrKeyUsage is returned when a key is used outside its declared usage.
	ErrKeyUsage = errors.New("key usage not permitted")
)

// Key is a non-extractable handle to derived key material. The bytes live in
// a memguard enclave and are only exposed to this package for the duration
// of a single cipher operation.
type Key struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
	usage   Usage
}

// newKey seals raw into an enclave. raw is wiped.
func newKey(raw []byte, usage Usage) (*Key, error) {
	if len(raw) != KeySize {
		wipe(raw)
		return nil, errors.New("invalid key length")
	}
	enclave := memguard.NewEnclave(raw)
	if enclave == nil {
		return nil, errors.New("seal key")
	}
	return &Key{enclave: enclave, usage: usage}, nil
}

// Usage returns the operations the key was derived for.
func (k *Key) Usage() Usage {
	return k.usage
}

// Alive reports whether the key has not been destroyed.
func (k *Key) Alive() bool {
	if k == nil {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.enclave != nil
}

// Destroy discards the key material. It is safe to call more than once.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enclave = nil
}

// Equal compares two keys in constant time. The keys are opened one at a
// time, so no lock on k is held while other is locked.
func (k *Key) Equal(other *Key) bool {
	if k == other {
		return k.Alive()
	}

	var mine *memguard.LockedBuffer
	err := k.use(0, func(a []byte) error {
		mine = memguard.NewBufferFromBytes(append([]byte(nil), a...))
		return nil
	})
	if err != nil {
		return false
	}
	defer mine.Destroy()

	eq := false
	err = other.use(0, func(b []byte) error {
		eq = subtle.ConstantTimeCompare(mine.Bytes(), b) == 1
		return nil
	})
	return err == nil && eq
}

// use opens the enclave for the duration of fn. op is checked against the
// key's usage; 0 skips the check.
func (k *Key) use(op Usage, fn func(raw []byte) error) error {
	if k == nil {
		return ErrKeyDestroyed
	}
	if op != 0 && !k.usage.Allows(op) {
		return ErrKeyUsage
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.enclave == nil {
		return ErrKeyDestroyed
	}

	buf, err := k.enclave.Open()
	if err != nil {
		return ErrKeyDestroyed
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}

func wipe(b []byte) {
	memguard.WipeBytes(b)
}
