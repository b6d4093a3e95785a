// Package config holds the settings shared by the CLI and the service layer.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Hussein-Mazeh/PasswordVault/internal/session"
	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
	"github.com/Hussein-Mazeh/PasswordVault/krypto"
)

// Store backends.
const (
	StoreFS     = "fs"
	StoreSQLite = "sqlite"
)

// Environment fallbacks for flags.
const (
	EnvVaultDir = "PM_VAULT_DIR"
	EnvOwner    = "PM_OWNER"
)

// DBFileName is the SQLite file inside the vault directory.
const DBFileName = "vault.db"

// Lowest Argon2id cost accepted for new vaults.
const (
	MinArgon2MemoryKB = 19 * 1024
	MinArgon2Time     = 2
)

// Config describes one vault and how to open it.
type Config struct {
	VaultDir        string
	Owner           string
	Store           string
	SessionDuration time.Duration
	KDF             krypto.Params
	Cipher          krypto.Suite
	EnableHIBP      bool
	LogLevel        string
}

// Default returns the production defaults, with env fallbacks applied.
func Default() Config {
	c := Config{
		VaultDir:        "./vault",
		Owner:           "default",
		Store:           StoreFS,
		SessionDuration: session.DefaultDuration,
		KDF:             krypto.DefaultParams(),
		Cipher:          krypto.AES256GCM,
		LogLevel:        "warn",
	}
	if v := strings.TrimSpace(os.Getenv(EnvVaultDir)); v != "" {
		c.VaultDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOwner)); v != "" {
		c.Owner = v
	}
	return c
}

// DBPath is where the SQLite backend keeps its file.
func (c Config) DBPath() string {
	return filepath.Join(c.VaultDir, DBFileName)
}

// ProfileOptions returns the derivation and cipher settings for new profiles.
func (c Config) ProfileOptions() vault.ProfileOptions {
	return vault.ProfileOptions{KDF: c.KDF, Cipher: c.Cipher}
}

// Validate rejects unusable or weakened settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.VaultDir) == "" {
		return errors.New("vault directory is required")
	}
	if err := vault.ValidateOwner(c.Owner); err != nil {
		return err
	}
	switch c.Store {
	case StoreFS, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreFS, StoreSQLite)
	}
	if c.SessionDuration <= 0 {
		return errors.New("session duration must be positive")
	}
	if err := c.KDF.Validate(); err != nil {
		return err
	}
	if c.KDF.Algorithm == krypto.AlgorithmPBKDF2 && c.KDF.Iterations < krypto.MinIterations {
		return fmt.Errorf("pbkdf2 iterations must be at least %d", krypto.MinIterations)
	}
	if c.KDF.Algorithm == krypto.AlgorithmArgon2id && (c.KDF.MemoryKB < MinArgon2MemoryKB || c.KDF.Time < MinArgon2Time) {
		return fmt.Errorf("argon2id needs at least %d KiB and %d passes", MinArgon2MemoryKB, MinArgon2Time)
	}
	if err := c.Cipher.Validate(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// Logger builds a console logger on stderr at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := c.Level()
	if err != nil {
		return nil, err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
