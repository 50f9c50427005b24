// Package shortcode generates random, non-sequential short codes.
package shortcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	Alphabet      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultLength = 7
)

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generator draws codes uniformly from Alphabet. It does not check
// uniqueness; the store's unique constraint does.
type Generator interface {
	Generate() (string, error)
}

type RandomGenerator struct {
	length int
}

func NewGenerator(length int) *RandomGenerator {
	if length <= 0 {
		length = DefaultLength
	}
	return &RandomGenerator{length: length}
}

func (g *RandomGenerator) Length() int {
	return g.length
}

func (g *RandomGenerator) Generate() (string, error) {
	result := make([]byte, g.length)
	for i := range result {
		num, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		result[i] = Alphabet[num.Int64()]
	}
	return string(result), nil
}

// Valid reports whether code could have been issued by a generator of the given length.
func Valid(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
