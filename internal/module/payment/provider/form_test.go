package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotifyForm(t *testing.T) {
	t.Run("decodes pairs and percent escapes", func(t *testing.T) {
		bm := parseNotifyForm([]byte("out_trade_no=ord_1&subject=%E6%B5%8B%E8%AF%95&total_fee=1.50"))
		assert.Equal(t, "ord_1", bm.GetString("out_trade_no"))
		assert.Equal(t, "测试", bm.GetString("subject"))
		assert.Equal(t, "1.50", bm.GetString("total_fee"))
	})

	t.Run("plus means space but encoded plus survives", func(t *testing.T) {
		// gmt_create carries a literal "+" for its space; the base64 sign
		// carries "%2B" for its plus bytes.
		bm := parseNotifyForm([]byte("gmt_create=2024-01-02+15:04:05&sign=YWJj%2BZGVm"))
		assert.Equal(t, "2024-01-02 15:04:05", bm.GetString("gmt_create"))
		assert.Equal(t, "YWJj+ZGVm", bm.GetString("sign"))
	})

	t.Run("splits on the first equals only", func(t *testing.T) {
		bm := parseNotifyForm([]byte("detail=a=b=c"))
		assert.Equal(t, "a=b=c", bm.GetString("detail"))
	})

	t.Run("skips fragments without equals", func(t *testing.T) {
		bm := parseNotifyForm([]byte("a=1&&junk&b=2"))
		assert.Equal(t, "1", bm.GetString("a"))
		assert.Equal(t, "2", bm.GetString("b"))
		assert.Len(t, bm, 2)
	})

	t.Run("keeps malformed escapes verbatim", func(t *testing.T) {
		bm := parseNotifyForm([]byte("a=100%zz"))
		assert.Equal(t, "100%zz", bm.GetString("a"))
	})
}

func TestYuanString(t *testing.T) {
	assert.Equal(t, "1.00", yuanString(100))
	assert.Equal(t, "0.01", yuanString(1))
	assert.Equal(t, "12345.67", yuanString(1234567))
	assert.Equal(t, "0.00", yuanString(0))
}

func TestYuanToFen(t *testing.T) {
	t.Run("parses decimal yuan", func(t *testing.T) {
		for in, want := range map[string]int64{
			"1.00":     100,
			"0.01":     1,
			"12345.67": 1234567,
			"3":        300,
		} {
			got, err := yuanToFen(in)
			require.NoError(t, err)
			assert.Equal(t, want, got, "input %s", in)
		}
	})

	t.Run("rejects non-numeric input", func(t *testing.T) {
		_, err := yuanToFen("1.0.0")
		assert.ErrorIs(t, err, ErrChannelAPI)
	})
}

func TestParseFen(t *testing.T) {
	got, err := parseFen("150")
	require.NoError(t, err)
	assert.Equal(t, int64(150), got)

	// V2 amounts are integer fen; a decimal here is a protocol violation.
	_, err = parseFen("1.50")
	assert.ErrorIs(t, err, ErrChannelAPI)
}
