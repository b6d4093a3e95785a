package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Hussein-Mazeh/PasswordVault/auth"
	"github.com/Hussein-Mazeh/PasswordVault/internal/service"
	"github.com/Hussein-Mazeh/PasswordVault/internal/session"
	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
	"github.com/Hussein-Mazeh/PasswordVault/krypto"
	"github.com/Hussein-Mazeh/PasswordVault/store"
)

const master = "Vq7#mountain-Ledger-92"

type result struct {
	code int
	out  string
	err  string
}

func runPM(t *testing.T, input string, args ...string) result {
	t.Helper()

	var out, errw bytes.Buffer
	code := run(args, strings.NewReader(input), &out, &errw)
	return result{code: code, out: out.String(), err: errw.String()}
}

func lines(s ...string) string {
	return strings.Join(s, "\n") + "\n"
}

func TestVersion(t *testing.T) {
	r := runPM(t, "", "version")
	require.Equal(t, 0, r.code)
	require.Equal(t, version+"\n", r.out)
}

func TestUsageErrors(t *testing.T) {
	r := runPM(t, "", "--no-such-flag", "version")
	require.Equal(t, 1, r.code)

	r = runPM(t, "", "--store", "s3", "version")
	require.Equal(t, 1, r.code)
	require.Contains(t, r.err, "unknown store")

	r = runPM(t, "", "--iterations", "1000", "version")
	require.Equal(t, 1, r.code)
	require.Contains(t, r.err, "at least 600000")
}

func TestInitVerifySession(t *testing.T) {
	for _, backend := range []string{"fs", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			flags := []string{"--dir", dir, "--owner", "alice", "--store", backend, "--log-level", "error"}
			with := func(args ...string) []string { return append(append([]string{}, flags...), args...) }

			r := runPM(t, lines(master, "different"), with("init")...)
			require.Equal(t, 1, r.code)
			require.Contains(t, r.err, "passwords do not match")

			r = runPM(t, lines(master, master), with("init")...)
			require.Equal(t, 0, r.code, r.err)
			require.Contains(t, r.out, "vault created for alice")

			r = runPM(t, "", with("init")...)
			require.Equal(t, 1, r.code)
			require.Contains(t, r.err, "already exists")

			r = runPM(t, lines("wrong"), with("verify")...)
			require.Equal(t, 1, r.code)
			require.Contains(t, r.err, "Master password is incorrect.")

			r = runPM(t, lines(master), with("verify")...)
			require.Equal(t, 0, r.code, r.err)

			r = runPM(t, lines(
				master,
				"add-note --title Wifi",
				"hunter2",
				"list",
				"lock",
				"list",
				"status",
				"exit",
			), with("session")...)
			require.Equal(t, 0, r.code, r.err)
			require.Contains(t, r.out, "session unlocked")
			require.Regexp(t, `stored Wifi \(id=[0-9a-f-]{36}\)`, r.out)
			require.Contains(t, r.out, "secure_note  Wifi")
			require.Contains(t, r.err, "The vault is locked.")
			require.Contains(t, r.out, "locked\n")
			require.NotContains(t, r.out, "hunter2")

			// entries persist across sessions
			r = runPM(t, lines(master, "list wi", "exit"), with("session")...)
			require.Equal(t, 0, r.code, r.err)
			require.Contains(t, r.out, "Wifi")

			r = runPM(t, lines("wrong"), with("session")...)
			require.Equal(t, 1, r.code)
			require.Contains(t, r.err, "Master password is incorrect.")
		})
	}
}

func TestSessionWithoutVault(t *testing.T) {
	r := runPM(t, lines(master), "--dir", t.TempDir(), "--owner", "bob", "session")
	require.Equal(t, 1, r.code)
	require.Contains(t, r.err, "No vault has been set up yet.")
}

func TestUnexpectedError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	r := runPM(t, "", "--dir", file, "init")
	require.Equal(t, 2, r.code)
	require.Contains(t, r.err, "unexpected error")
}

func newTestShell(t *testing.T, input string) (*shell, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	svc := service.New("alice", store.NewMemory(),
		service.WithProfileOptions(vault.ProfileOptions{
			KDF: krypto.Params{Algorithm: krypto.AlgorithmPBKDF2, Iterations: 1000},
		}),
		service.WithPolicy(auth.ValidateOptions{}),
	)
	t.Cleanup(func() { svc.Close() })
	require.NoError(t, svc.Setup(context.Background(), "Correct-Horse-1!"))

	var out, errw bytes.Buffer
	con := newConsole(strings.NewReader(input), &out, &errw)
	return newShell(svc, con, &out), &out, &errw
}

func TestShellLoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	sh, out, errw := newTestShell(t, lines("s3cret!", "s3cret!", "Correct-Horse-1!"))

	require.NoError(t, sh.dispatch(ctx, "add-login", []string{"--domain", "example.com", "--user", "alice", "--note", "work"}))
	m := regexp.MustCompile(`id=([0-9a-f-]{36})`).FindStringSubmatch(out.String())
	require.Len(t, m, 2)
	id := m[1]

	out.Reset()
	require.NoError(t, sh.dispatch(ctx, "get", []string{id}))
	require.Contains(t, out.String(), "domain:   example.com")
	require.Contains(t, out.String(), "password: s3cret!")
	require.Contains(t, out.String(), "note:     work")

	require.NoError(t, sh.dispatch(ctx, "lock", nil))
	require.ErrorIs(t, sh.dispatch(ctx, "get", []string{id}), session.ErrLocked)

	require.NoError(t, sh.dispatch(ctx, "unlock", nil))
	require.NoError(t, sh.dispatch(ctx, "rm", []string{id}))
	require.ErrorIs(t, sh.dispatch(ctx, "get", []string{id}), vault.ErrEntryNotFound)

	sh.report(userError{msg: "boom"})
	require.Contains(t, errw.String(), "boom")
}

func TestShellUsage(t *testing.T) {
	ctx := context.Background()
	sh, _, _ := newTestShell(t, "")

	var uerr userError
	require.ErrorAs(t, sh.dispatch(ctx, "frobnicate", nil), &uerr)
	require.ErrorAs(t, sh.dispatch(ctx, "get", nil), &uerr)
	require.ErrorAs(t, sh.dispatch(ctx, "rm", []string{"a", "b"}), &uerr)
	require.ErrorAs(t, sh.dispatch(ctx, "add-login", []string{"--bogus"}), &uerr)
}

func TestShellQuotedArguments(t *testing.T) {
	sh, out, _ := newTestShell(t, lines(`add-note --title "Home wifi"`, "hunter2", "list", "quit"))

	require.NoError(t, sh.run(context.Background()))
	require.Contains(t, out.String(), "stored Home wifi")
	require.Contains(t, out.String(), "secure_note  Home wifi")
}
