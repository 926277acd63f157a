package redisclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLitersToMlRounds(t *testing.T) {
	// 1.85 is not exactly representable; truncation would lose a millilitre.
	assert.Equal(t, int64(1850), litersToMl(1.85))
	assert.Equal(t, int64(750), litersToMl(0.75))
	assert.Equal(t, int64(0), litersToMl(0))
	assert.Equal(t, int64(-1850), litersToMl(-1.85))

	// round-trip through the hash representation
	assert.InDelta(t, 1.85, float64(litersToMl(1.85))/1000, 1e-9)
}
