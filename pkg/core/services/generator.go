package services

import (
	"math/rand/v2"

	"github.com/soft-duck/shorty/pkg/ports"
)

const (
	charset         = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultIDLength = 6
)

var _ ports.IDGenerator = (*RandomIDGenerator)(nil)

// RandomIDGenerator generates fixed-length alphanumeric ids.
type RandomIDGenerator struct {
	length int
}

func NewRandomIDGenerator(length int) *RandomIDGenerator {
	if length < 1 {
		length = DefaultIDLength
	}
	return &RandomIDGenerator{length: length}
}

func (g *RandomIDGenerator) Generate() string {
	b := make([]byte, g.length)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}

func (g *RandomIDGenerator) Length() int {
	return g.length
}
