package krypto

import "io"

// SetRandReader swaps the random source for the duration of a test.
func SetRandReader(r io.Reader) (restore func()) {
	prev := randReader
	randReader = r
	return func() { randReader = prev }
}
