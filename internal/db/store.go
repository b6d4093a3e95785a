package db

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
)

// Store adapts a DB to the vault profile and entry store interfaces.
type Store struct {
	db  *DB
	log *zap.Logger
}

var (
	_ vault.ProfileStore = (*Store)(nil)
	_ vault.EntryStore   = (*Store)(nil)
)

// NewStore wraps d. A nil logger disables logging.
func NewStore(d *DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: d, log: log.Named("db")}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return Close(s.db)
}

func (s *Store) ReadProfile(_ context.Context, owner string) (*vault.SecurityProfile, error) {
	if err := vault.ValidateOwner(owner); err != nil {
		return nil, err
	}
	return GetProfile(s.db, owner)
}

func (s *Store) WriteProfile(_ context.Context, owner string, p *vault.SecurityProfile) error {
	if err := vault.ValidateOwner(owner); err != nil {
		return err
	}

	err := InsertProfile(s.db, owner, p)
	switch {
	case errors.Is(err, vault.ErrProfileAlreadyExists):
		s.log.Info("profile insert conflict", zap.String("owner", owner))
	case err != nil:
		s.log.Error("profile insert failed", zap.String("owner", owner), zap.Error(err))
	default:
		s.log.Debug("profile stored", zap.String("owner", owner))
	}
	return err
}

func (s *Store) PutEntry(_ context.Context, owner string, e vault.EncryptedEntry) error {
	if err := vault.ValidateOwner(owner); err != nil {
		return err
	}
	return UpsertEntry(s.db, owner, e)
}

func (s *Store) GetEntry(_ context.Context, owner, id string) (vault.EncryptedEntry, error) {
	return GetEntry(s.db, owner, id)
}

func (s *Store) ListEntries(_ context.Context, owner string) ([]vault.EncryptedEntry, error) {
	return ListEntries(s.db, owner)
}

func (s *Store) DeleteEntry(_ context.Context, owner, id string) error {
	return DeleteEntry(s.db, owner, id)
}
