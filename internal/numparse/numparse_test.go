package numparse_test

import (
	"testing"

	"github.com/keurnel/tricore-asm/internal/numparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntForms(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"200", 200},
		{"0200", 200},
		{"0200d", 200},
		{"0d200", 200},
		{"0xc8", 200},
		{"0Xc8", 200},
		{"0c8h", 200},
		{"0hc8", 200},
		{"$0c8", 200},
		{"310q", 200},
		{"310o", 200},
		{"0o310", 200},
		{"0q310", 200},
		{"11001000b", 200},
		{"1100_1000b", 200},
		{"1100_1000y", 200},
		{"0b1100_1000", 200},
		{"0y1100_1000", 200},
		{"1_000_000", 1000000},
		{"-42", -42},
		{"+42", 42},
		{"-0x2a", -42},
	}
	for _, c := range cases {
		got, err := numparse.ParseInt(c.in)
		require.NoErrorf(t, err, "parsing %q", c.in)
		assert.Equalf(t, c.want, got, "parsing %q", c.in)
	}
}

func TestParseIntRejectsBadHexSuffix(t *testing.T) {
	_, err := numparse.ParseInt("c8h")
	assert.ErrorIs(t, err, numparse.ErrInvalidNumber)
}

func TestParseIntRejectsBadDollarHex(t *testing.T) {
	_, err := numparse.ParseInt("$c8")
	assert.ErrorIs(t, err, numparse.ErrInvalidNumber)
}

func TestParseIntRejectsEmpty(t *testing.T) {
	_, err := numparse.ParseInt("")
	assert.ErrorIs(t, err, numparse.ErrInvalidNumber)
}

func TestParseIntRoundTrip32Bit(t *testing.T) {
	values := []int64{0, 1, -1, 255, -255, 1 << 30, -(1 << 30), 2147483647, -2147483648}
	for _, v := range values {
		hex := formatHex(v)
		got, err := numparse.ParseInt(hex)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func formatHex(v int64) string {
	if v < 0 {
		return "-0x" + itoaHex(uint64(-v))
	}
	return "0x" + itoaHex(uint64(v))
}

func itoaHex(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%16]
		v /= 16
	}
	return string(buf[i:])
}
