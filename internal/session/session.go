// Package session holds the derived vault key for a bounded time after a
// successful unlock.
package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/PasswordVault/internal/clock"
	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
	"github.com/Hussein-Mazeh/PasswordVault/krypto"
)

// DefaultDuration is how long an unlock lasts unless configured otherwise.
const DefaultDuration = 10 * time.Minute

// ErrLocked is returned when the key is requested while no session is active.
var ErrLocked = errors.New("vault is locked")

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source and timer scheduler.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithDuration sets the unlock lifetime. Non-positive values are ignored.
func WithDuration(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// Session is a Locked/Unlocked state machine. While unlocked it owns exactly
// one key and one expiry deadline; the key is only usable while now is before
// the deadline. It is safe for concurrent use.
type Session struct {
	clock    clock.Clock
	duration time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	key       *krypto.Key
	owner     string
	expiresAt time.Time
	timer     clock.Timer
	gen       uint64
}

// New returns a locked session.
func New(opts ...Option) *Session {
	s := &Session{
		clock:    clock.Real,
		duration: DefaultDuration,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("session")
	return s
}

// Duration returns the configured unlock lifetime.
func (s *Session) Duration() time.Duration {
	return s.duration
}

// Unlock verifies password against p and, on success, installs the derived
// key until now+Duration. Unlocking an unlocked session replaces its key and
// restarts the expiry. On failure the current state is left unchanged.
func (s *Session) Unlock(password string, p *vault.SecurityProfile) error {
	key, err := vault.OpenProfile(password, p)
	if err != nil {
		if p != nil {
			s.log.Info("unlock failed", zap.String("owner", p.Owner), zap.Error(err))
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	s.gen++
	gen := s.gen

	s.key = key
	s.owner = p.Owner
	s.expiresAt = s.clock.Now().Add(s.duration)
	s.timer = s.clock.AfterFunc(s.duration, func() { s.expire(gen) })

	s.log.Info("unlocked", zap.String("owner", p.Owner), zap.Time("expiresAt", s.expiresAt))
	return nil
}

// Lock destroys the key immediately. Locking a locked session is a no-op.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		s.log.Info("locked", zap.String("owner", s.owner))
	}
	s.clearLocked()
}

// IsUnlocked reports whether a key is held and has not expired.
func (s *Session) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.checkLocked()
}

// ExpiresAt returns the current deadline, or false when locked.
func (s *Session) ExpiresAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkLocked() {
		return time.Time{}, false
	}
	return s.expiresAt, true
}

// Remaining returns the time left before the session locks, measured on the
// session clock, or false when locked.
func (s *Session) Remaining() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkLocked() {
		return 0, false
	}
	return clock.Until(s.clock, s.expiresAt), true
}

// Owner returns the owner of the active session, or "" when locked.
func (s *Session) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkLocked() {
		return ""
	}
	return s.owner
}

// WithKey runs fn with the session key while holding the session lock. It
// returns ErrLocked when no unexpired key is held. fn must not retain key.
func (s *Session) WithKey(fn func(key *krypto.Key) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkLocked() {
		return ErrLocked
	}
	return fn(s.key)
}

// checkLocked enforces the deadline on read, independently of the timer.
func (s *Session) checkLocked() bool {
	if s.key == nil {
		return false
	}
	if s.clock.Now().Before(s.expiresAt) {
		return true
	}

	s.log.Info("session expired", zap.String("owner", s.owner))
	s.clearLocked()
	return false
}

func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.key == nil {
		return
	}

	s.log.Info("session expired", zap.String("owner", s.owner))
	s.timer = nil
	s.clearLocked()
}

func (s *Session) clearLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.key != nil {
		s.key.Destroy()
	}
	s.key = nil
	s.owner = ""
	s.expiresAt = time.Time{}
}
