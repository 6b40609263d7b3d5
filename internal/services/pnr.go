package services

import (
	"crypto/rand"
	"fmt"
)

// pnrAlphabet drops I, O, 0 and 1 so references survive being read aloud.
// Its length is 32, which keeps byte%len unbiased.
const pnrAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// PNRGenerator produces candidate booking references. Uniqueness is enforced by the
// bookings_pnr_key constraint, not by the generator.
type PNRGenerator interface {
	Next() (string, error)
}

// RandomPNR draws references from crypto/rand
type RandomPNR struct {
	length int
}

// NewRandomPNR creates a generator for references of the given length
func NewRandomPNR(length int) *RandomPNR {
	if length <= 0 {
		length = 6
	}
	return &RandomPNR{length: length}
}

// Next returns a fresh candidate reference
func (g *RandomPNR) Next() (string, error) {
	buf := make([]byte, g.length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate pnr: %w", err)
	}
	for i, b := range buf {
		buf[i] = pnrAlphabet[int(b)%len(pnrAlphabet)]
	}
	return string(buf), nil
}
