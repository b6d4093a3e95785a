package service

import (
	"errors"

	"github.com/Hussein-Mazeh/PasswordVault/auth"
	"github.com/Hussein-Mazeh/PasswordVault/internal/session"
	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
	"github.com/Hussein-Mazeh/PasswordVault/krypto"
)

// UserMessage maps an error to text safe to show to the user. It reports
// false for errors that have no user-facing meaning.
func UserMessage(err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, krypto.ErrEnvironmentInsecure):
		return "This environment cannot run the vault's cryptography safely. Nothing was changed.", true
	case errors.Is(err, vault.ErrInvalidMasterPassword):
		return "Master password is incorrect.", true
	case errors.Is(err, vault.ErrProfileNotFound):
		return "No vault has been set up yet. Run init first.", true
	case errors.Is(err, vault.ErrProfileAlreadyExists):
		return "A vault already exists for this account. Unlock it instead.", true
	case errors.Is(err, session.ErrLocked):
		return "The vault is locked. Unlock it to continue.", true
	case errors.Is(err, vault.ErrEntryNotFound):
		return "No such entry.", true
	case errors.Is(err, vault.ErrInvalidEntry):
		return err.Error(), true
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrBreachedPassword):
		return err.Error(), true
	case errors.Is(err, krypto.ErrDecryptionFailed):
		return "An entry could not be decrypted. It may be damaged.", true
	default:
		return "", false
	}
}
