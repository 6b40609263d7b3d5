package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomPNR(t *testing.T) {
	g := NewRandomPNR(0)
	seen := make(map[string]bool)

	for i := 0; i < 500; i++ {
		code, err := g.Next()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(pnrAlphabet, r), "unexpected %q in %s", r, code)
		}
		seen[code] = true
	}

	// 32^6 codes; 500 draws colliding more than a handful of times means the generator is broken
	assert.Greater(t, len(seen), 490)

	long, err := NewRandomPNR(8).Next()
	require.NoError(t, err)
	assert.Len(t, long, 8)
}
