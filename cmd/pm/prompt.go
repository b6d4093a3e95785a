package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// console reads lines and hidden passwords from one input stream.
type console struct {
	in  *bufio.Reader
	out io.Writer
	err io.Writer
	fd  int
	tty bool
}

func newConsole(in io.Reader, out, errw io.Writer) *console {
	c := &console{in: bufio.NewReader(in), out: out, err: errw, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd = int(f.Fd())
		c.tty = true
	}
	return c
}

// readLine returns the next line without its terminator. io.EOF is returned
// only when nothing was read.
func (c *console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *console) prompt(label string) (string, error) {
	fmt.Fprint(c.err, label)
	return c.readLine()
}

// password reads a secret without echo when attached to a terminal.
func (c *console) password(label string) ([]byte, error) {
	fmt.Fprint(c.err, label)
	if !c.tty {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	}

	pw, err := term.ReadPassword(c.fd)
	fmt.Fprintln(c.err)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// newPassword asks twice and requires both answers to match.
func (c *console) newPassword(label string) ([]byte, error) {
	pw, err := c.password(label)
	if err != nil {
		return nil, err
	}
	confirm, err := c.password("Confirm: ")
	if err != nil {
		zeroBytes(pw)
		return nil, err
	}
	defer zeroBytes(confirm)

	if string(pw) != string(confirm) {
		zeroBytes(pw)
		return nil, userError{msg: "passwords do not match"}
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
