package krypto

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedEncoding is returned when a boundary string is not valid base64.
var ErrMalformedEncoding = errors.New("malformed input")

// Encode turns bytes into the transport-safe form used in persisted records.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return b, nil
}
