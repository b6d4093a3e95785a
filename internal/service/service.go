package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/PasswordVault/auth"
	"github.com/Hussein-Mazeh/PasswordVault/internal/clock"
	"github.com/Hussein-Mazeh/PasswordVault/internal/config"
	"github.com/Hussein-Mazeh/PasswordVault/internal/db"
	"github.com/Hussein-Mazeh/PasswordVault/internal/session"
	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
	"github.com/Hussein-Mazeh/PasswordVault/krypto"
	"github.com/Hussein-Mazeh/PasswordVault/store"
)

// State is the coarse vault state a UI gates on.
type State string

const (
	StateSetupNeeded State = "setup_needed"
	StateLocked      State = "locked"
	StateUnlocked    State = "unlocked"
)

// Store is the persistence a Service needs.
type Store interface {
	vault.ProfileStore
	vault.EntryStore
}

// Summary is the listing view of an entry. Damaged entries could not be
// decrypted; only their id and timestamps are known.
type Summary struct {
	ID        string
	Type      vault.EntryType
	Label     string
	Damaged   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSession replaces the default session.
func WithSession(s *session.Session) Option {
	return func(svc *Service) { svc.sess = s }
}

// WithClock sets the time source for entry timestamps.
func WithClock(c clock.Clock) Option {
	return func(svc *Service) { svc.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.log = l
		}
	}
}

// WithProfileOptions sets the KDF and cipher used by Setup.
func WithProfileOptions(o vault.ProfileOptions) Option {
	return func(svc *Service) { svc.profileOpts = o }
}

// WithPolicy sets the master password policy used by Setup.
func WithPolicy(o auth.ValidateOptions) Option {
	return func(svc *Service) { svc.policy = o }
}

// Service exposes high-level vault operations for one owner to the CLI.
type Service struct {
	owner       string
	store       Store
	closer      io.Closer
	sess        *session.Session
	clock       clock.Clock
	log         *zap.Logger
	profileOpts vault.ProfileOptions
	policy      auth.ValidateOptions

	mu      sync.Mutex
	profile *vault.SecurityProfile
}

// New returns a service for owner backed by st.
func New(owner string, st Store, opts ...Option) *Service {
	s := &Service{
		owner:       owner,
		store:       st,
		clock:       clock.Real,
		log:         zap.NewNop(),
		profileOpts: vault.DefaultProfileOptions(),
		policy:      auth.DefaultValidateOptions(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sess == nil {
		s.sess = session.New(session.WithClock(s.clock), session.WithLogger(s.log))
	}
	s.log = s.log.Named("service")
	return s
}

// Open builds a service from cfg, opening the configured store.
func Open(cfg config.Config, log *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		st     Store
		closer io.Closer
	)
	switch cfg.Store {
	case config.StoreSQLite:
		d, err := db.Open(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("open sqlite (%s): %w", cfg.DBPath(), err)
		}
		dbStore := db.NewStore(d, log)
		st, closer = dbStore, dbStore
	default:
		st = store.FS{Dir: cfg.VaultDir}
	}

	policy := auth.DefaultValidateOptions()
	policy.EnableHIBP = cfg.EnableHIBP

	s := New(cfg.Owner, st,
		WithLogger(log),
		WithProfileOptions(cfg.ProfileOptions()),
		WithPolicy(policy),
		WithSession(session.New(session.WithDuration(cfg.SessionDuration), session.WithLogger(log))),
	)
	s.closer = closer
	return s, nil
}

// Owner returns the owner the service acts for.
func (s *Service) Owner() string {
	return s.owner
}

// Session exposes the underlying session.
func (s *Service) Session() *session.Session {
	return s.sess
}

// Close locks the session and releases the store.
func (s *Service) Close() error {
	s.sess.Lock()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// State reports whether setup is needed and, if not, whether the vault is unlocked.
func (s *Service) State(ctx context.Context) (State, error) {
	_, err := s.store.ReadProfile(ctx, s.owner)
	switch {
	case errors.Is(err, vault.ErrProfileNotFound):
		return StateSetupNeeded, nil
	case err != nil:
		return "", fmt.Errorf("read profile: %w", err)
	}
	if s.sess.IsUnlocked() {
		return StateUnlocked, nil
	}
	return StateLocked, nil
}

// Setup creates the owner's security profile and unlocks the session with it.
// It refuses when a profile already exists.
func (s *Service) Setup(ctx context.Context, password string) error {
	_, err := s.store.ReadProfile(ctx, s.owner)
	switch {
	case err == nil:
		return vault.ErrProfileAlreadyExists
	case !errors.Is(err, vault.ErrProfileNotFound):
		return fmt.Errorf("read profile: %w", err)
	}

	policy := s.policy
	policy.UserInputs = append(append([]string(nil), s.policy.UserInputs...), s.owner)
	if err := auth.ValidateMasterPasswordAdvanced(ctx, password, policy); err != nil {
		return fmt.Errorf("validate master password: %w", err)
	}

	p, err := vault.CreateProfile(ctx, s.store, s.owner, password, s.profileOpts)
	if err != nil {
		return err
	}
	s.log.Info("profile created",
		zap.String("owner", s.owner),
		zap.String("kdf", p.KDF.Algorithm),
		zap.String("cipher", string(p.Cipher)))

	return s.unlockWith(password, p)
}

// Unlock verifies password against the stored profile and opens the session.
func (s *Service) Unlock(ctx context.Context, password string) error {
	p, err := s.ownProfile(ctx)
	if err != nil {
		return err
	}
	return s.unlockWith(password, p)
}

// ownProfile reads the owner's profile. A profile recorded for a different
// owner is rejected like a wrong password.
func (s *Service) ownProfile(ctx context.Context) (*vault.SecurityProfile, error) {
	p, err := s.store.ReadProfile(ctx, s.owner)
	if err != nil {
		if errors.Is(err, vault.ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if p.Owner != s.owner {
		s.log.Warn("profile owner mismatch", zap.String("owner", s.owner))
		return nil, vault.ErrInvalidMasterPassword
	}
	return p, nil
}

func (s *Service) unlockWith(password string, p *vault.SecurityProfile) error {
	if err := s.sess.Unlock(password, p); err != nil {
		return err
	}

	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	return nil
}

// Verify reports whether password matches the stored profile without
// touching the session.
func (s *Service) Verify(ctx context.Context, password string) (bool, error) {
	p, err := s.ownProfile(ctx)
	switch {
	case errors.Is(err, vault.ErrInvalidMasterPassword):
		return false, nil
	case err != nil:
		return false, err
	}
	return vault.Verify(password, p), nil
}

// Lock ends the session immediately.
func (s *Service) Lock() {
	s.sess.Lock()
}

// IsUnlocked reports whether the session holds an unexpired key.
func (s *Service) IsUnlocked() bool {
	return s.sess.IsUnlocked()
}

func (s *Service) cipher() krypto.Cipher {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		return krypto.Cipher{}
	}
	return s.profile.CipherSuite()
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// AddEntry encrypts e under the session key and stores it with a new id.
func (s *Service) AddEntry(ctx context.Context, e vault.Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	rec, err := s.seal(id, e)
	if err != nil {
		return "", err
	}
	rec.CreatedAt = s.now()
	rec.UpdatedAt = rec.CreatedAt

	if err := s.store.PutEntry(ctx, s.owner, rec); err != nil {
		return "", fmt.Errorf("store entry: %w", err)
	}
	s.log.Debug("entry added", zap.String("id", id), zap.String("type", string(e.Type)))
	return id, nil
}

// UpdateEntry replaces the payload of an existing entry.
func (s *Service) UpdateEntry(ctx context.Context, id string, e vault.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if !s.sess.IsUnlocked() {
		return session.ErrLocked
	}

	old, err := s.store.GetEntry(ctx, s.owner, id)
	if err != nil {
		return err
	}

	rec, err := s.seal(id, e)
	if err != nil {
		return err
	}
	rec.CreatedAt = old.CreatedAt
	rec.UpdatedAt = s.now()

	if err := s.store.PutEntry(ctx, s.owner, rec); err != nil {
		return fmt.Errorf("store entry: %w", err)
	}
	s.log.Debug("entry updated", zap.String("id", id))
	return nil
}

func (s *Service) seal(id string, e vault.Entry) (vault.EncryptedEntry, error) {
	rec := vault.EncryptedEntry{ID: id}
	c := s.cipher()

	err := s.sess.WithKey(func(key *krypto.Key) error {
		var err error
		rec.Ciphertext, rec.IV, err = vault.SealEntry(c, key, s.owner, id, e)
		return err
	})
	return rec, err
}

func (s *Service) open(rec vault.EncryptedEntry) (vault.Entry, error) {
	var e vault.Entry
	c := s.cipher()

	err := s.sess.WithKey(func(key *krypto.Key) error {
		var err error
		e, err = vault.OpenEntry(c, key, s.owner, rec)
		return err
	})
	return e, err
}

// GetEntry decrypts one entry.
func (s *Service) GetEntry(ctx context.Context, id string) (vault.Entry, error) {
	if !s.sess.IsUnlocked() {
		return vault.Entry{}, session.ErrLocked
	}

	rec, err := s.store.GetEntry(ctx, s.owner, id)
	if err != nil {
		return vault.Entry{}, err
	}
	return s.open(rec)
}

// ListEntries decrypts every entry and returns their summaries, oldest first.
// An entry that fails to decrypt is listed as damaged so it can still be
// removed.
func (s *Service) ListEntries(ctx context.Context) ([]Summary, error) {
	if !s.sess.IsUnlocked() {
		return nil, session.ErrLocked
	}

	recs, err := s.store.ListEntries(ctx, s.owner)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		e, err := s.open(rec)
		switch {
		case errors.Is(err, krypto.ErrDecryptionFailed):
			s.log.Warn("entry damaged", zap.String("id", rec.ID))
			out = append(out, Summary{
				ID:        rec.ID,
				Damaged:   true,
				CreatedAt: rec.CreatedAt,
				UpdatedAt: rec.UpdatedAt,
			})
			continue
		case err != nil:
			return nil, err
		}
		out = append(out, Summary{
			ID:        rec.ID,
			Type:      e.Type,
			Label:     e.Label(),
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out, nil
}

// FindEntries returns the summaries whose label contains q, ignoring case.
// Damaged entries have no label and never match.
func (s *Service) FindEntries(ctx context.Context, q string) ([]Summary, error) {
	all, err := s.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	q = strings.ToLower(strings.TrimSpace(q))
	out := all[:0]
	for _, it := range all {
		if !it.Damaged && strings.Contains(strings.ToLower(it.Label), q) {
			out = append(out, it)
		}
	}
	return out, nil
}

// DeleteEntry removes an entry. The session must be unlocked.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	if !s.sess.IsUnlocked() {
		return session.ErrLocked
	}
	if err := s.store.DeleteEntry(ctx, s.owner, id); err != nil {
		return err
	}
	s.log.Debug("entry deleted", zap.String("id", id))
	return nil
}
