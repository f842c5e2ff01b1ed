package assembler_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keurnel/tricore-asm/internal/assembler"
	"github.com/keurnel/tricore-asm/internal/instrtable"
	"github.com/keurnel/tricore-asm/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTableJSON = `{"instructions":[
	{"opcode":"0x01C00000","opcode_size":32,"instruction":"ABS","syntax":"ABS D[c],D[b]",
	 "operand_count":2,"op1_pos":28,"op1_len":4,"op2_pos":8,"op2_len":4},
	{"opcode":"0x92","opcode_size":16,"instruction":"MOV","syntax":"MOV D[a],const4",
	 "operand_count":2,"op1_pos":8,"op1_len":4,"op2_pos":12,"op2_len":4},
	{"opcode":"0x1D000000","opcode_size":32,"instruction":"J","syntax":"J disp24",
	 "operand_count":1,"op1_pos":8,"op1_len":24}
]}`

func newAssembler(t *testing.T) *assembler.Assembler {
	t.Helper()
	table, err := instrtable.LoadJSON(strings.NewReader(testTableJSON))
	require.NoError(t, err)
	return assembler.New(assembler.Options{Table: table, Variant: variant.Options{}})
}

func lines(src string) []string {
	return strings.Split(strings.TrimPrefix(src, "\n"), "\n")
}

func TestAssembleSimpleProgram(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
.ORG 0x1000
start:
ABS D5,D9
MOV D1,3
loop:
J loop
`)
	result, err := a.Assemble("main.asm", src)
	require.NoError(t, err)
	require.Empty(t, result.Diagnostics)

	require.Len(t, result.Object.Instructions, 3)

	abs := result.Object.Instructions[0]
	assert.EqualValues(t, 0x1000, abs.Address)
	assert.EqualValues(t, 4, abs.SizeBytes)
	assert.Equal(t, uint32(0x01C00000)|(uint32(5)<<28)|(uint32(9)<<8), abs.OpcodeWord)

	mov := result.Object.Instructions[1]
	assert.EqualValues(t, 0x1004, mov.Address)
	assert.EqualValues(t, 2, mov.SizeBytes)
	assert.Equal(t, uint32(0x92)|(uint32(1)<<8)|(uint32(3)<<12), mov.OpcodeWord)

	j := result.Object.Instructions[2]
	assert.EqualValues(t, 0x1006, j.Address)
	assert.EqualValues(t, 4, j.SizeBytes)
	// "loop:" is defined at the J instruction's own address, so its
	// PC-relative displacement is zero.
	assert.Equal(t, uint32(0x1D000000), j.OpcodeWord)

	labelsByName := make(map[string]uint32)
	for _, l := range result.Object.Labels {
		labelsByName[l.Name] = l.Address
	}
	assert.EqualValues(t, 0x1000, labelsByName["start"])
	assert.EqualValues(t, 0x1006, labelsByName["loop"])
}

func TestAssembleDataDirectiveEmitsBytes(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
data:
DB 1,2,3
`)
	result, err := a.Assemble("main.asm", src)
	require.NoError(t, err)
	require.Len(t, result.Object.Instructions, 1)
	rec := result.Object.Instructions[0]
	assert.Equal(t, []byte{1, 2, 3}, rec.Data)
	assert.EqualValues(t, 3, rec.SizeBytes)
	assert.EqualValues(t, assembler.DefaultBaseAddress, rec.Address)
}

func TestAssembleDuplicateLabelReportsAndContinuesThenFails(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
foo: DB 1
foo: DB 2
NOPE D1,D2
`)
	result, err := a.Assemble("main.asm", src)
	require.Error(t, err)
	require.Len(t, result.Diagnostics, 2)
	assert.Equal(t, "DuplicateLabel", result.Diagnostics[0].Code)
	assert.Equal(t, 2, result.Diagnostics[0].Line)
	assert.Equal(t, "UnknownInstruction", result.Diagnostics[1].Code)
	assert.Equal(t, 3, result.Diagnostics[1].Line)
	// Pass 1 failed, so no object/listing was produced.
	assert.Nil(t, result.Object)
}

func TestAssembleOperandOutOfRangeAbortsPass2Immediately(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
MOV D1,76
ABS D0,D1
`)
	result, err := a.Assemble("main.asm", src)
	require.Error(t, err)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "OperandOutOfRange", result.Diagnostics[0].Code)
	assert.Equal(t, 1, result.Diagnostics[0].Line)
	// The ABS line after the failing one was never reached.
	assert.Empty(t, result.Object.Instructions)
}

func TestAssembleOrgDirectiveChangesAddress(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
.ORG 0x9000
ABS D0,D1
.ORG 0xA000
ABS D2,D3
`)
	result, err := a.Assemble("main.asm", src)
	require.NoError(t, err)
	require.Len(t, result.Object.Instructions, 2)
	assert.EqualValues(t, 0x9000, result.Object.Instructions[0].Address)
	assert.EqualValues(t, 0xA000, result.Object.Instructions[1].Address)
}

func TestAssembleLocalLabelsResolveNearestForwardAndBackward(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
.ORG 0x2000
1:
ABS D0,D1
1:
ABS D2,D3
J 1b
J 1f
1:
ABS D4,D5
`)
	result, err := a.Assemble("main.asm", src)
	require.NoError(t, err)
	require.Len(t, result.Object.Instructions, 4)

	jBack := result.Object.Instructions[2]
	backDisp := int64(0x2004) - int64(0x2008)
	mask := uint32(1)<<24 - 1
	wantBackWord := uint32(0x1D000000) | ((uint32(backDisp) & mask) << 8)
	assert.Equal(t, wantBackWord, jBack.OpcodeWord)

	jFwd := result.Object.Instructions[3]
	fwdDisp := int64(0x2010) - int64(0x200C)
	wantFwdWord := uint32(0x1D000000) | ((uint32(fwdDisp) & mask) << 8)
	assert.Equal(t, wantFwdWord, jFwd.OpcodeWord)
}

func TestAssembleUnresolvedSymbolIsRecorded(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
.ORG 0x4000
J external_target
`)
	result, err := a.Assemble("main.asm", src)
	require.NoError(t, err)
	require.Len(t, result.Object.Symbols, 1)
	sym := result.Object.Symbols[0]
	assert.Equal(t, "external_target", sym.Name)
	assert.EqualValues(t, 0x4000, sym.PlaceholderAddress)
	assert.EqualValues(t, 2, sym.Line)
	// The placeholder displacement (spec.md's forward-reference bias) was
	// still encoded, so assembly itself does not fail on it.
	assert.Equal(t, uint32(0x1D000000)|encoderForwardPlaceholderBits(), result.Object.Instructions[0].OpcodeWord)
}

// encoderForwardPlaceholderBits mirrors encoder's own forward-reference
// placeholder packed into J's 24-bit field, kept local to the test so it
// doesn't need to export an internal constant just for assertions.
func encoderForwardPlaceholderBits() uint32 {
	const forwardPlaceholder = 254
	mask := uint32(1)<<24 - 1
	return (uint32(forwardPlaceholder) & mask) << 8
}

func TestAssembleEquConstantSizesReserveDirective(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
SIZE EQU 4
RESB SIZE
`)
	result, err := a.Assemble("main.asm", src)
	require.NoError(t, err)
	require.Len(t, result.Object.Instructions, 1)
	rec := result.Object.Instructions[0]
	assert.EqualValues(t, 4, rec.SizeBytes)
	assert.Equal(t, make([]byte, 4), rec.Data)

	require.Len(t, result.Object.Constants, 1)
	assert.Equal(t, "SIZE", result.Object.Constants[0].Name)
	assert.EqualValues(t, 4, result.Object.Constants[0].Value)
}

func TestAssembleTimesRepeatsEncodedBytes(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
TIMES 3 DB 0xAA
`)
	result, err := a.Assemble("main.asm", src)
	require.NoError(t, err)
	require.Len(t, result.Object.Instructions, 1)
	assert.Equal(t, []byte{0xAA, 0xAA, 0xAA}, result.Object.Instructions[0].Data)
}

func TestAssembleIncbinSizesFromFileButDefersContentToTheLinker(t *testing.T) {
	dir := t.TempDir()
	blob := []byte{0x10, 0x20, 0x30, 0x40, 0x50}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), blob, 0o644))

	table, err := instrtable.LoadJSON(strings.NewReader(testTableJSON))
	require.NoError(t, err)
	a := assembler.New(assembler.Options{Table: table, BaseDir: dir})

	src := lines(`
INCBIN "blob.bin"
`)
	result, err := a.Assemble("main.asm", src)
	require.NoError(t, err)
	require.Len(t, result.Object.Instructions, 1)
	rec := result.Object.Instructions[0]
	assert.EqualValues(t, len(blob), rec.SizeBytes)
	// The object file carries a correctly-sized placeholder, not the file's
	// actual bytes: those are resynthesized at link time.
	assert.Equal(t, make([]byte, len(blob)), rec.Data)
}

func TestAssembleIncbinRejectsMissingFile(t *testing.T) {
	table, err := instrtable.LoadJSON(strings.NewReader(testTableJSON))
	require.NoError(t, err)
	a := assembler.New(assembler.Options{Table: table, BaseDir: t.TempDir()})

	src := lines(`
INCBIN "nope.bin"
`)
	_, err = a.Assemble("main.asm", src)
	require.Error(t, err)
}

func TestAssemblePreservesBlankAndCommentListingEntries(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
; a leading comment
ABS D0,D1

`)
	result, err := a.Assemble("main.asm", src)
	require.NoError(t, err)
	require.Len(t, result.Listing, 4)
	assert.EqualValues(t, 1, result.Listing[0].Line)
	assert.Nil(t, result.Listing[0].Bytes)
}

func TestAssembleUnknownMnemonicReportsUnknownInstruction(t *testing.T) {
	a := newAssembler(t)
	src := lines(`
FROBNICATE D1,D2
`)
	result, err := a.Assemble("main.asm", src)
	require.Error(t, err)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "UnknownInstruction", result.Diagnostics[0].Code)
}
