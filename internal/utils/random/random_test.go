package random

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	t.Run("respects length and charset", func(t *testing.T) {
		s, err := String(32, CharsetAlphanumeric)
		require.NoError(t, err)
		assert.Len(t, s, 32)
		for _, r := range s {
			assert.True(t, strings.ContainsRune(CharsetAlphanumeric, r), "unexpected rune %q", r)
		}
	})

	t.Run("zero length returns empty", func(t *testing.T) {
		s, err := String(0, CharsetAlphanumeric)
		require.NoError(t, err)
		assert.Empty(t, s)
	})

	t.Run("empty charset falls back to alphanumeric", func(t *testing.T) {
		s, err := String(16, "")
		require.NoError(t, err)
		assert.Len(t, s, 16)
	})
}

func TestAlphanumeric(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		s := Alphanumeric(32)
		assert.Len(t, s, 32)
		assert.False(t, seen[s], "duplicate nonce %s", s)
		seen[s] = true
	}
}

func TestUpperAlphaNum(t *testing.T) {
	s := UpperAlphaNum(8)
	assert.Len(t, s, 8)
	assert.Equal(t, strings.ToUpper(s), s)
}

func TestInt64InRange(t *testing.T) {
	t.Run("stays within bounds", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			n, err := Int64InRange(10, 20)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, int64(10))
			assert.Less(t, n, int64(20))
		}
	})

	t.Run("rejects empty range", func(t *testing.T) {
		_, err := Int64InRange(5, 5)
		assert.Error(t, err)
	})
}
