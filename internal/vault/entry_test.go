package vault_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
	"github.com/Hussein-Mazeh/PasswordVault/krypto"
)

func openKey(t *testing.T) (*krypto.Key, *vault.SecurityProfile) {
	t.Helper()

	p := newProfile(t)
	key, err := vault.OpenProfile(testPassword, p)
	require.NoError(t, err)
	t.Cleanup(key.Destroy)
	return key, p
}

func TestSealOpenEntry(t *testing.T) {
	key, p := openKey(t)
	c := p.CipherSuite()

	login := vault.Entry{
		Type:     vault.TypeWebLogin,
		Domain:   "example.com",
		Username: "alice",
		Password: "hunter2",
		Note:     "work",
	}

	ct, iv, err := vault.SealEntry(c, key, testOwner, "id-1", login)
	require.NoError(t, err)
	require.NotContains(t, ct, "hunter2")

	got, err := vault.OpenEntry(c, key, testOwner, vault.EncryptedEntry{ID: "id-1", Ciphertext: ct, IV: iv})
	require.NoError(t, err)
	require.Equal(t, login, got)
	require.Equal(t, "example.com", got.Label())

	note := vault.Entry{Type: vault.TypeSecureNote, Title: "wifi", Content: "correct horse"}
	ct, iv, err = vault.SealEntry(c, key, testOwner, "id-2", note)
	require.NoError(t, err)

	got, err = vault.OpenEntry(c, key, testOwner, vault.EncryptedEntry{ID: "id-2", Ciphertext: ct, IV: iv})
	require.NoError(t, err)
	require.Equal(t, note, got)
	require.Equal(t, "wifi", got.Label())
}

func TestOpenEntryBindsOwnerAndID(t *testing.T) {
	key, p := openKey(t)
	c := p.CipherSuite()

	e := vault.Entry{Type: vault.TypeSecureNote, Title: "t", Content: "c"}
	ct, iv, err := vault.SealEntry(c, key, testOwner, "id-1", e)
	require.NoError(t, err)

	_, err = vault.OpenEntry(c, key, testOwner, vault.EncryptedEntry{ID: "id-2", Ciphertext: ct, IV: iv})
	require.ErrorIs(t, err, krypto.ErrDecryptionFailed)

	_, err = vault.OpenEntry(c, key, "bob", vault.EncryptedEntry{ID: "id-1", Ciphertext: ct, IV: iv})
	require.ErrorIs(t, err, krypto.ErrDecryptionFailed)

	_, err = vault.OpenEntry(c, key, testOwner, vault.EncryptedEntry{ID: "id-1", Ciphertext: "not base64!", IV: iv})
	require.ErrorIs(t, err, krypto.ErrDecryptionFailed)
}

func TestOpenEntryWrongKey(t *testing.T) {
	key, p := openKey(t)
	other, _ := openKey(t)
	c := p.CipherSuite()

	ct, iv, err := vault.SealEntry(c, key, testOwner, "id-1", vault.Entry{Type: vault.TypeSecureNote, Title: "t", Content: "c"})
	require.NoError(t, err)

	_, err = vault.OpenEntry(c, other, testOwner, vault.EncryptedEntry{ID: "id-1", Ciphertext: ct, IV: iv})
	require.ErrorIs(t, err, krypto.ErrDecryptionFailed)
}

func TestEntryValidate(t *testing.T) {
	long := func(n int) string { return strings.Repeat("x", n) }

	valid := []vault.Entry{
		{Type: vault.TypeWebLogin, Domain: "a", Username: "b", Password: "c"},
		{Type: vault.TypeWebLogin, Domain: long(255), Username: long(255), Password: long(500), Note: long(40)},
		{Type: vault.TypeSecureNote, Title: "t", Content: long(2000)},
		// limits count characters, not bytes
		{Type: vault.TypeSecureNote, Title: strings.Repeat("é", 255), Content: "c"},
	}
	for _, e := range valid {
		require.NoError(t, e.Validate())
	}

	invalid := map[string]vault.Entry{
		"unknown type":      {Type: "credit_card"},
		"missing domain":    {Type: vault.TypeWebLogin, Username: "b", Password: "c"},
		"blank username":    {Type: vault.TypeWebLogin, Domain: "a", Username: "  ", Password: "c"},
		"missing password":  {Type: vault.TypeWebLogin, Domain: "a", Username: "b"},
		"long domain":       {Type: vault.TypeWebLogin, Domain: long(256), Username: "b", Password: "c"},
		"long password":     {Type: vault.TypeWebLogin, Domain: "a", Username: "b", Password: long(501)},
		"long note":         {Type: vault.TypeWebLogin, Domain: "a", Username: "b", Password: "c", Note: long(41)},
		"missing title":     {Type: vault.TypeSecureNote, Content: "c"},
		"missing content":   {Type: vault.TypeSecureNote, Title: "t"},
		"long note content": {Type: vault.TypeSecureNote, Title: "t", Content: long(2001)},
	}
	for name, e := range invalid {
		require.ErrorIs(t, e.Validate(), vault.ErrInvalidEntry, name)
	}
}

func TestSealEntryRejectsInvalid(t *testing.T) {
	key, p := openKey(t)

	_, _, err := vault.SealEntry(p.CipherSuite(), key, testOwner, "id", vault.Entry{Type: vault.TypeWebLogin})
	require.ErrorIs(t, err, vault.ErrInvalidEntry)
}
