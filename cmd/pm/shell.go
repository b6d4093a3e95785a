package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/pflag"

	"github.com/Hussein-Mazeh/PasswordVault/internal/service"
	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
)

type shell struct {
	svc *service.Service
	con *console
	out io.Writer
}

func newShell(svc *service.Service, con *console, out io.Writer) *shell {
	return &shell{svc: svc, con: con, out: out}
}

func (sh *shell) run(ctx context.Context) error {
	for {
		fmt.Fprint(sh.out, "pm> ")
		line, err := sh.con.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(sh.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		fields, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(sh.con.err, "cannot parse command: %v\n", err)
			continue
		}
		if len(fields) == 0 {
			continue
		}

		cmd, args := fields[0], fields[1:]
		if cmd == "exit" || cmd == "quit" {
			return nil
		}
		if err := sh.dispatch(ctx, cmd, args); err != nil {
			sh.report(err)
		}
	}
}

func (sh *shell) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		sh.help()
		return nil
	case "add-login":
		return sh.addLogin(ctx, args)
	case "add-note":
		return sh.addNote(ctx, args)
	case "get":
		return sh.get(ctx, args)
	case "list", "ls":
		return sh.list(ctx, args)
	case "rm":
		return sh.remove(ctx, args)
	case "lock":
		sh.svc.Lock()
		fmt.Fprintln(sh.out, "locked")
		return nil
	case "unlock":
		return sh.unlock(ctx)
	case "status":
		return sh.status(ctx)
	default:
		return userError{msg: fmt.Sprintf("unknown command: %s", cmd)}
	}
}

func (sh *shell) report(err error) {
	var uerr userError
	if errors.As(asUserError(err), &uerr) {
		fmt.Fprintln(sh.con.err, uerr.Error())
		return
	}
	fmt.Fprintf(sh.con.err, "error: %v\n", err)
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (sh *shell) addLogin(ctx context.Context, args []string) error {
	fs := newFlagSet("add-login")
	domain := fs.String("domain", "", "website domain")
	user := fs.String("user", "", "username")
	note := fs.String("note", "", "short note")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "usage: add-login --domain <domain> --user <username> [--note <note>]"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	pw, err := sh.con.newPassword("Password: ")
	if err != nil {
		return err
	}
	defer zeroBytes(pw)

	id, err := sh.svc.AddEntry(ctx, vault.Entry{
		Type:     vault.TypeWebLogin,
		Domain:   *domain,
		Username: *user,
		Password: string(pw),
		Note:     *note,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "stored %s (id=%s)\n", *domain, id)
	return nil
}

func (sh *shell) addNote(ctx context.Context, args []string) error {
	fs := newFlagSet("add-note")
	title := fs.String("title", "", "note title")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "usage: add-note --title <title>"}
	}

	content, err := sh.con.prompt("Content: ")
	if err != nil {
		return fmt.Errorf("read note: %w", err)
	}

	id, err := sh.svc.AddEntry(ctx, vault.Entry{
		Type:    vault.TypeSecureNote,
		Title:   *title,
		Content: content,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "stored %s (id=%s)\n", *title, id)
	return nil
}

func (sh *shell) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return userError{msg: "usage: get <id>"}
	}

	e, err := sh.svc.GetEntry(ctx, args[0])
	if err != nil {
		return err
	}

	switch e.Type {
	case vault.TypeWebLogin:
		fmt.Fprintf(sh.out, "domain:   %s\nusername: %s\npassword: %s\n", e.Domain, e.Username, e.Password)
		if e.Note != "" {
			fmt.Fprintf(sh.out, "note:     %s\n", e.Note)
		}
	case vault.TypeSecureNote:
		fmt.Fprintf(sh.out, "title: %s\n%s\n", e.Title, e.Content)
	}
	return nil
}

func (sh *shell) list(ctx context.Context, args []string) error {
	var (
		items []service.Summary
		err   error
	)
	if len(args) > 0 {
		items, err = sh.svc.FindEntries(ctx, strings.Join(args, " "))
	} else {
		items, err = sh.svc.ListEntries(ctx)
	}
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Fprintln(sh.out, "no entries")
		return nil
	}
	for _, it := range items {
		if it.Damaged {
			fmt.Fprintf(sh.out, "%s  %-11s  %s\n", it.ID, "damaged", "cannot be decrypted; remove with rm")
			continue
		}
		fmt.Fprintf(sh.out, "%s  %-11s  %s\n", it.ID, it.Type, it.Label)
	}
	return nil
}

func (sh *shell) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return userError{msg: "usage: rm <id>"}
	}
	if err := sh.svc.DeleteEntry(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "deleted")
	return nil
}

func (sh *shell) unlock(ctx context.Context) error {
	pw, err := sh.con.password("Master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer zeroBytes(pw)

	if err := sh.svc.Unlock(ctx, string(pw)); err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "unlocked")
	return nil
}

func (sh *shell) status(ctx context.Context) error {
	st, err := sh.svc.State(ctx)
	if err != nil {
		return err
	}
	if left, ok := sh.svc.Session().Remaining(); ok {
		fmt.Fprintf(sh.out, "%s (locks in %s)\n", st, left.Round(time.Second))
		return nil
	}
	fmt.Fprintln(sh.out, st)
	return nil
}

func (sh *shell) help() {
	fmt.Fprintln(sh.out, "Commands:")
	fmt.Fprintln(sh.out, "  add-login --domain <domain> --user <username> [--note <note>]")
	fmt.Fprintln(sh.out, "  add-note --title <title>")
	fmt.Fprintln(sh.out, "  get <id>")
	fmt.Fprintln(sh.out, "  list [query]")
	fmt.Fprintln(sh.out, "  rm <id>")
	fmt.Fprintln(sh.out, "  lock | unlock | status")
	fmt.Fprintln(sh.out, "  exit | quit")
}
