package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/PasswordVault/internal/config"
	"github.com/Hussein-Mazeh/PasswordVault/internal/service"
	"github.com/Hussein-Mazeh/PasswordVault/krypto"
)

type app struct {
	cfg        config.Config
	kdf        string
	iterations uint32
	cipher     string

	con *console
	out io.Writer
	log *zap.Logger

	// started is set once flag parsing succeeded and a command began running.
	started bool
}

func run(args []string, in io.Reader, out, errw io.Writer) int {
	a := &app{
		cfg: config.Default(),
		con: newConsole(in, out, errw),
		out: out,
		log: zap.NewNop(),
	}

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errw)

	err := root.Execute()
	_ = a.log.Sync()

	if err != nil && !a.started {
		// flag and argument errors from cobra
		err = userError{msg: err.Error()}
	}
	return exitCode(errw, err)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pm",
		Short:         "Local password vault",
		Long:          "pm keeps web logins and secure notes encrypted under a key derived from your master password.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	f := root.PersistentFlags()
	f.StringVar(&a.cfg.VaultDir, "dir", a.cfg.VaultDir, "vault directory (env "+config.EnvVaultDir+")")
	f.StringVar(&a.cfg.Owner, "owner", a.cfg.Owner, "vault owner (env "+config.EnvOwner+")")
	f.StringVar(&a.cfg.Store, "store", a.cfg.Store, "storage backend: fs or sqlite")
	f.DurationVar(&a.cfg.SessionDuration, "session-duration", a.cfg.SessionDuration, "how long an unlock lasts")
	f.StringVar(&a.kdf, "kdf", krypto.AlgorithmPBKDF2, "key derivation for new vaults: pbkdf2-sha256 or argon2id")
	f.Uint32Var(&a.iterations, "iterations", krypto.MinIterations, "pbkdf2 rounds for new vaults")
	f.StringVar(&a.cipher, "cipher", string(krypto.AES256GCM), "cipher for new vaults: aes-256-gcm or chacha20-poly1305")
	f.BoolVar(&a.cfg.EnableHIBP, "hibp", false, "check new master passwords against Have I Been Pwned")
	f.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level: debug, info, warn or error")

	root.AddCommand(
		a.initCmd(),
		a.verifyCmd(),
		a.sessionCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) setup() error {
	a.started = true

	switch a.kdf {
	case krypto.AlgorithmArgon2id:
		a.cfg.KDF = krypto.DefaultArgon2Params()
	default:
		a.cfg.KDF = krypto.Params{Algorithm: a.kdf, Iterations: a.iterations}
	}
	a.cfg.Cipher = krypto.Suite(a.cipher)

	if err := a.cfg.Validate(); err != nil {
		return userError{msg: err.Error()}
	}

	log, err := a.cfg.Logger()
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func (a *app) openService() (*service.Service, error) {
	return service.Open(a.cfg, a.log)
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the vault and its master password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			st, err := svc.State(ctx)
			if err != nil {
				return err
			}
			if st != service.StateSetupNeeded {
				return userError{msg: fmt.Sprintf("a vault already exists for %s; use pm session to unlock it", svc.Owner())}
			}

			pw, err := a.con.newPassword("New master password: ")
			if err != nil {
				return err
			}
			defer zeroBytes(pw)

			if err := svc.Setup(ctx, string(pw)); err != nil {
				return asUserError(err)
			}

			fmt.Fprintf(a.out, "vault created for %s\n", svc.Owner())
			return nil
		},
	}
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check a master password without unlocking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			pw, err := a.con.password("Master password: ")
			if err != nil {
				return fmt.Errorf("read master password: %w", err)
			}
			defer zeroBytes(pw)

			ok, err := svc.Verify(cmd.Context(), string(pw))
			if err != nil {
				return asUserError(err)
			}
			if !ok {
				return userError{msg: "Master password is incorrect."}
			}
			fmt.Fprintln(a.out, "master password OK")
			return nil
		},
	}
}

func (a *app) sessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Unlock the vault and start an interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			if err := a.unlock(ctx, svc); err != nil {
				return err
			}

			fmt.Fprintln(a.out, "session unlocked; type 'help' for commands")
			return newShell(svc, a.con, a.out).run(ctx)
		},
	}
}

func (a *app) unlock(ctx context.Context, svc *service.Service) error {
	pw, err := a.con.password("Master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer zeroBytes(pw)

	return asUserError(svc.Unlock(ctx, string(pw)))
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(a.out, version)
			return nil
		},
	}
}
