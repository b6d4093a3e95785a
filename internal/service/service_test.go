package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Hussein-Mazeh/PasswordVault/auth"
	"github.com/Hussein-Mazeh/PasswordVault/internal/config"
	"github.com/Hussein-Mazeh/PasswordVault/internal/faketime"
	"github.com/Hussein-Mazeh/PasswordVault/internal/service"
	"github.com/Hussein-Mazeh/PasswordVault/internal/session"
	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
	"github.com/Hussein-Mazeh/PasswordVault/krypto"
	"github.com/Hussein-Mazeh/PasswordVault/store"
)

const master = "Correct-Horse-1!"

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T, opts ...service.Option) (*service.Service, *faketime.Clock) {
	t.Helper()
	return newServiceOn(t, store.NewMemory(), opts...)
}

func newServiceOn(t *testing.T, st service.Store, opts ...service.Option) (*service.Service, *faketime.Clock) {
	t.Helper()

	clk := faketime.NewClock(epoch)
	opts = append([]service.Option{
		service.WithClock(clk),
		service.WithSession(session.New(session.WithClock(clk), session.WithDuration(5*time.Minute))),
		service.WithProfileOptions(vault.ProfileOptions{
			KDF:    krypto.Params{Algorithm: krypto.AlgorithmPBKDF2, Iterations: 1000},
			Cipher: krypto.AES256GCM,
		}),
		service.WithPolicy(auth.ValidateOptions{}),
	}, opts...)

	s := service.New("alice", st, opts...)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s, clk
}

func login(domain string) vault.Entry {
	return vault.Entry{Type: vault.TypeWebLogin, Domain: domain, Username: "alice", Password: "pw-" + domain}
}

func TestSetupAndStates(t *testing.T) {
	ctx := context.Background()
	s, clk := newService(t)

	st, err := s.State(ctx)
	require.NoError(t, err)
	require.Equal(t, service.StateSetupNeeded, st)

	require.ErrorIs(t, s.Unlock(ctx, master), vault.ErrProfileNotFound)

	require.NoError(t, s.Setup(ctx, master))
	st, err = s.State(ctx)
	require.NoError(t, err)
	require.Equal(t, service.StateUnlocked, st)

	require.ErrorIs(t, s.Setup(ctx, master), vault.ErrProfileAlreadyExists)

	clk.Advance(5*time.Minute + time.Millisecond)
	st, err = s.State(ctx)
	require.NoError(t, err)
	require.Equal(t, service.StateLocked, st)

	require.ErrorIs(t, s.Unlock(ctx, "wrong"), vault.ErrInvalidMasterPassword)
	require.False(t, s.IsUnlocked())
	require.NoError(t, s.Unlock(ctx, master))
	require.True(t, s.IsUnlocked())

	ok, err := s.Verify(ctx, master)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Verify(ctx, "wrong")
	require.NoError(t, err)
	require.False(t, ok)

	s.Lock()
	require.False(t, s.IsUnlocked())
}

func TestSetupRejectsWeakPassword(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	err := s.Setup(ctx, "short")
	require.ErrorIs(t, err, auth.ErrWeakPassword)

	st, err := s.State(ctx)
	require.NoError(t, err)
	require.Equal(t, service.StateSetupNeeded, st)
}

func TestSetupWithBreachedPassword(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, service.WithPolicy(auth.ValidateOptions{
		EnableHIBP: true,
		Breaches:   breached{},
	}))

	require.ErrorIs(t, s.Setup(ctx, master), auth.ErrBreachedPassword)
}

type breached struct{}

func (breached) Check(context.Context, string) (auth.HIBPResult, error) {
	return auth.HIBPResult{Found: true, Count: 3}, nil
}

func TestEntries(t *testing.T) {
	ctx := context.Background()
	s, clk := newService(t)
	require.NoError(t, s.Setup(ctx, master))

	id1, err := s.AddEntry(ctx, login("example.com"))
	require.NoError(t, err)
	clk.Advance(time.Second)
	id2, err := s.AddEntry(ctx, vault.Entry{Type: vault.TypeSecureNote, Title: "Wifi", Content: "hunter2"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	got, err := s.GetEntry(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, login("example.com"), got)

	list, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, id1, list[0].ID)
	require.Equal(t, "example.com", list[0].Label)
	require.Equal(t, vault.TypeSecureNote, list[1].Type)
	require.Equal(t, epoch.Add(time.Second), list[1].CreatedAt)

	found, err := s.FindEntries(ctx, "WIFI")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, id2, found[0].ID)

	clk.Advance(time.Minute)
	require.NoError(t, s.UpdateEntry(ctx, id1, login("example.org")))
	got, err = s.GetEntry(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, "example.org", got.Domain)

	list, err = s.ListEntries(ctx)
	require.NoError(t, err)
	require.Equal(t, epoch, list[0].CreatedAt)
	require.Equal(t, epoch.Add(61*time.Second), list[0].UpdatedAt)

	require.ErrorIs(t, s.UpdateEntry(ctx, "missing", login("x")), vault.ErrEntryNotFound)

	require.NoError(t, s.DeleteEntry(ctx, id1))
	_, err = s.GetEntry(ctx, id1)
	require.ErrorIs(t, err, vault.ErrEntryNotFound)
	require.ErrorIs(t, s.DeleteEntry(ctx, id1), vault.ErrEntryNotFound)

	_, err = s.AddEntry(ctx, vault.Entry{Type: vault.TypeWebLogin})
	require.ErrorIs(t, err, vault.ErrInvalidEntry)
}

func TestListEntriesKeepsDamagedEntries(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s, clk := newServiceOn(t, st)
	require.NoError(t, s.Setup(ctx, master))

	good, err := s.AddEntry(ctx, vault.Entry{Type: vault.TypeSecureNote, Title: "good", Content: "fine"})
	require.NoError(t, err)
	clk.Advance(time.Second)
	bad, err := s.AddEntry(ctx, vault.Entry{Type: vault.TypeSecureNote, Title: "bad", Content: "lost"})
	require.NoError(t, err)

	rec, err := st.GetEntry(ctx, "alice", bad)
	require.NoError(t, err)
	rec.Ciphertext = krypto.Encode([]byte("junk bytes that are not a sealed entry"))
	require.NoError(t, st.PutEntry(ctx, "alice", rec))

	list, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, good, list[0].ID)
	require.False(t, list[0].Damaged)
	require.Equal(t, "good", list[0].Label)
	require.Equal(t, bad, list[1].ID)
	require.True(t, list[1].Damaged)
	require.Empty(t, list[1].Label)

	found, err := s.FindEntries(ctx, "good")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, good, found[0].ID)

	_, err = s.GetEntry(ctx, bad)
	require.ErrorIs(t, err, krypto.ErrDecryptionFailed)

	require.NoError(t, s.DeleteEntry(ctx, bad))
	list, err = s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, good, list[0].ID)

	// a locked session is still a hard error
	s.Lock()
	_, err = s.ListEntries(ctx)
	require.ErrorIs(t, err, session.ErrLocked)
}

func TestUnlockRejectsProfileOfAnotherOwner(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	p, err := vault.NewProfile("bob", master, vault.ProfileOptions{
		KDF:    krypto.Params{Algorithm: krypto.AlgorithmPBKDF2, Iterations: 1000},
		Cipher: krypto.AES256GCM,
	})
	require.NoError(t, err)
	require.NoError(t, st.WriteProfile(ctx, "alice", p))

	s, _ := newServiceOn(t, st)

	require.ErrorIs(t, s.Unlock(ctx, master), vault.ErrInvalidMasterPassword)
	require.False(t, s.IsUnlocked())
	require.Equal(t, "", s.Session().Owner())

	ok, err := s.Verify(ctx, master)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEntriesRequireUnlock(t *testing.T) {
	ctx := context.Background()
	s, clk := newService(t)
	require.NoError(t, s.Setup(ctx, master))

	id, err := s.AddEntry(ctx, login("example.com"))
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)

	_, err = s.AddEntry(ctx, login("example.net"))
	require.ErrorIs(t, err, session.ErrLocked)
	_, err = s.GetEntry(ctx, id)
	require.ErrorIs(t, err, session.ErrLocked)
	_, err = s.ListEntries(ctx)
	require.ErrorIs(t, err, session.ErrLocked)
	require.ErrorIs(t, s.UpdateEntry(ctx, id, login("x")), session.ErrLocked)
	require.ErrorIs(t, s.DeleteEntry(ctx, id), session.ErrLocked)

	// entries survive a fresh unlock
	require.NoError(t, s.Unlock(ctx, master))
	got, err := s.GetEntry(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "example.com", got.Domain)
}

func TestServiceLogsNoSecrets(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	s, _ := newService(t, service.WithLogger(zap.New(core)))

	require.NoError(t, s.Setup(ctx, master))
	_, err := s.AddEntry(ctx, login("example.com"))
	require.NoError(t, err)

	require.Equal(t, 1, logs.FilterMessage("profile created").Len())
	for _, e := range logs.All() {
		for _, f := range e.Context {
			require.NotContains(t, f.String, master)
			require.NotContains(t, f.String, "pw-example.com")
		}
	}
}

func TestOpenFromConfig(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{config.StoreFS, config.StoreSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.VaultDir = t.TempDir()
			cfg.Owner = "alice"
			cfg.Store = backend

			s, err := service.Open(cfg, nil)
			require.NoError(t, err)
			defer s.Close()

			require.Equal(t, "alice", s.Owner())
			require.Equal(t, cfg.SessionDuration, s.Session().Duration())

			st, err := s.State(ctx)
			require.NoError(t, err)
			require.Equal(t, service.StateSetupNeeded, st)
		})
	}

	cfg := config.Default()
	cfg.Store = "s3"
	_, err := service.Open(cfg, nil)
	require.Error(t, err)
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{vault.ErrInvalidMasterPassword, "Master password is incorrect."},
		{fmt.Errorf("unlock: %w", vault.ErrProfileNotFound), "No vault has been set up yet. Run init first."},
		{vault.ErrProfileAlreadyExists, "A vault already exists for this account. Unlock it instead."},
		{session.ErrLocked, "The vault is locked. Unlock it to continue."},
		{krypto.ErrEnvironmentInsecure, "This environment cannot run the vault's cryptography safely. Nothing was changed."},
		{vault.ErrEntryNotFound, "No such entry."},
	}
	for _, tc := range cases {
		got, ok := service.UserMessage(tc.err)
		require.True(t, ok, tc.err)
		require.Equal(t, tc.want, got)
	}

	_, ok := service.UserMessage(errors.New("disk on fire"))
	require.False(t, ok)
	_, ok = service.UserMessage(nil)
	require.False(t, ok)
}
