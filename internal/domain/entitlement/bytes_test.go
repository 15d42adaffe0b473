package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBytes(t *testing.T) {
	t.Run("converts whole units", func(t *testing.T) {
		cases := map[string]int64{
			"0B":     0,
			"512B":   512,
			"1KB":    1024,
			"500MB":  500 * 1024 * 1024,
			"1GB":    1024 * 1024 * 1024,
			"2TB":    2 * 1024 * 1024 * 1024 * 1024,
			"1024KB": 1024 * 1024,
		}
		for input, want := range cases {
			got, err := ToBytes(input)
			require.NoError(t, err, input)
			assert.Equal(t, want, got, input)
		}
	})

	t.Run("converts fractional quantities", func(t *testing.T) {
		got, err := ToBytes("1.5GB")
		require.NoError(t, err)
		assert.Equal(t, int64(1610612736), got)
	})

	t.Run("ignores case and whitespace", func(t *testing.T) {
		got, err := ToBytes("  1.5 gb ")
		require.NoError(t, err)
		assert.Equal(t, int64(1610612736), got)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		for _, input := range []string{"", "GB", "1.5", "-1GB", "1PB", "1,5GB", "one GB"} {
			_, err := ToBytes(input)
			assert.ErrorIs(t, err, ErrInvalidAmount, input)
		}
	})
}

func TestFromBytes(t *testing.T) {
	t.Run("picks the largest fitting unit", func(t *testing.T) {
		assert.Equal(t, "0B", FromBytes(0))
		assert.Equal(t, "512B", FromBytes(512))
		assert.Equal(t, "1KB", FromBytes(1024))
		assert.Equal(t, "1MB", FromBytes(1024*1024))
		assert.Equal(t, "1GB", FromBytes(1024*1024*1024))
		assert.Equal(t, "500MB", FromBytes(500*1024*1024))
	})

	t.Run("keeps at most one decimal", func(t *testing.T) {
		assert.Equal(t, "1.5GB", FromBytes(1610612736))
		assert.Equal(t, "1.5MB", FromBytes(1536*1024))
	})

	t.Run("clamps negative input to zero", func(t *testing.T) {
		assert.Equal(t, "0B", FromBytes(-42))
	})

	t.Run("round-trips byte-exact for representable values", func(t *testing.T) {
		for _, n := range []int64{0, 512, 1024, 1536 * 1024, 500 * 1024 * 1024, 1610612736} {
			back, err := ToBytes(FromBytes(n))
			require.NoError(t, err)
			assert.Equal(t, n, back)
		}
	})

	t.Run("normalizes textual form through a round trip", func(t *testing.T) {
		n, err := ToBytes("1024KB")
		require.NoError(t, err)
		assert.Equal(t, "1MB", FromBytes(n))
	})
}

func TestNormalizeByteString(t *testing.T) {
	t.Run("canonicalizes case and spacing", func(t *testing.T) {
		got, err := NormalizeByteString(" 1.5 gb ")
		require.NoError(t, err)
		assert.Equal(t, "1.5GB", got)
	})

	t.Run("rejects invalid grammar", func(t *testing.T) {
		_, err := NormalizeByteString("lots")
		assert.ErrorIs(t, err, ErrInvalidStorage)
	})
}
