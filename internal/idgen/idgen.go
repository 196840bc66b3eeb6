// Package idgen produces opaque record identifiers.
//
// The default generator is the 6-character, 62-symbol alphabet described by
// §4.A: uniform random selection, no collision tracking (the caller, the
// collection engine, is responsible for detecting and retrying a collision).
package idgen

import (
	"crypto/rand"
	"math/big"
)

// alphabet is the 62-symbol identifier character set: digits, lowercase,
// uppercase.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generator produces a new opaque identifier on each call. Implementations
// are not required to check for collisions; §4.F retries on collision.
type Generator interface {
	Generate() string
}

// Base62Generator is the default generator: fixed-length, uniformly random
// over the 62-symbol alphabet.
type Base62Generator struct {
	// Length is the number of characters to generate. The spec default is 6.
	Length int
}

// NewBase62Generator returns the default 6-character generator.
func NewBase62Generator() *Base62Generator {
	return &Base62Generator{Length: 6}
}

// Generate returns a new random identifier of g.Length characters. Falls
// back to length 6 if Length is non-positive.
func (g *Base62Generator) Generate() string {
	length := g.Length
	if length <= 0 {
		length = 6
	}

	buf := make([]byte, length)
	alphabetSize := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand failure is not expected in practice; rather than
			// panic, fall back to the fixed alphabet symbol at position i
			// (not random).
			buf[i] = alphabet[i%len(alphabet)]
			continue
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf)
}
