// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keyid defines KeyID, the fixed-width opaque identifier presented by
// a card or token and persisted by the key store. A KeyID is a value: it is
// copied on construction, compared byte for byte and never mutated.
package keyid // import "github.com/toeirei/keyguard/internal/keyid"

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Size is the record width used by the reference hardware (12-byte card UIDs).
const Size = 12

// ErrInvalidHex is returned by Parse for input that is not an even-length hex string.
var ErrInvalidHex = errors.New("keyid: invalid hex identifier")

// KeyID is an immutable byte identifier. The zero value is the empty key.
// KeyIDs are comparable with == and may be used as map keys.
type KeyID struct {
	b string
}

// New copies b into a new KeyID. The caller keeps ownership of b.
func New(b []byte) KeyID {
	return KeyID{b: string(b)}
}

// Repeat returns a key of width n with every byte set to v.
func Repeat(v byte, n int) KeyID {
	if n <= 0 {
		return KeyID{}
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = v
	}
	return New(buf)
}

// Random returns a key of width n filled from crypto/rand.
func Random(n int) (KeyID, error) {
	if n <= 0 {
		return KeyID{}, fmt.Errorf("keyid: invalid width %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return KeyID{}, fmt.Errorf("keyid: read random bytes: %w", err)
	}
	return New(buf), nil
}

// Parse decodes a hex identifier. Colons, dashes and whitespace between byte
// pairs are ignored, so "04:A1:B2" and "04a1b2" parse to the same key.
func Parse(s string) (KeyID, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', ' ', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if clean == "" {
		return KeyID{}, ErrInvalidHex
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return KeyID{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return New(b), nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) KeyID {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Equal reports whether k and o hold exactly the same bytes.
func (k KeyID) Equal(o KeyID) bool {
	return k.b == o.b
}

// Len returns the key width in bytes.
func (k KeyID) Len() int { return len(k.b) }

// IsZero reports whether k is the empty key.
func (k KeyID) IsZero() bool { return len(k.b) == 0 }

// Bytes returns a fresh copy of the key bytes.
func (k KeyID) Bytes() []byte { return []byte(k.b) }

// String renders the key as upper-case hex without separators.
func (k KeyID) String() string {
	return strings.ToUpper(hex.EncodeToString([]byte(k.b)))
}

// MarshalText implements encoding.TextMarshaler so keys render as hex in
// JSON and YAML output.
func (k KeyID) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *KeyID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
