package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/Hussein-Mazeh/PasswordVault/internal/service"
)

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

// asUserError turns errors with a known user-facing meaning into userError.
func asUserError(err error) error {
	if err == nil {
		return nil
	}
	var uerr userError
	if errors.As(err, &uerr) {
		return err
	}
	if msg, ok := service.UserMessage(err); ok {
		return userError{msg: msg}
	}
	return err
}

// exitCode reports err on w: 1 for user errors, 2 for anything unexpected.
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}

	var uerr userError
	if errors.As(asUserError(err), &uerr) {
		fmt.Fprintln(w, uerr.Error())
		return 1
	}

	fmt.Fprintf(w, "unexpected error: %v\n", err)
	return 2
}
