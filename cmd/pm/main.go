package main

import (
	"os"

	"github.com/awnumar/memguard"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.2.0"

func main() {
	memguard.CatchInterrupt()

	code := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	memguard.Purge()
	os.Exit(code)
}
