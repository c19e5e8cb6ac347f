// Package logincode generates the short human-typeable codes used for
// telegram login and redemption keys.
package logincode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet deliberately excludes 0/O and 1/I so a code read off a phone
// screen cannot be mistyped.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const LoginCodeLength = 6

// New returns a uniform random code of the given length over Alphabet.
func New(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length %d", length)
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(length)
	for _, v := range buf {
		b.WriteByte(Alphabet[int(v)%len(Alphabet)])
	}
	return b.String(), nil
}

// NewLoginCode returns a 6-character login code.
func NewLoginCode() (string, error) {
	return New(LoginCodeLength)
}

// Normalize canonicalizes user input before lookup: codes are stored
// uppercase and whitespace around them is never significant.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
