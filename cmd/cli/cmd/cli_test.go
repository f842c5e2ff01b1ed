package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/keurnel/tricore-asm/internal/objectfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliTestTableJSON = `{"instructions":[
	{"opcode":"0x01C00000","opcode_size":32,"instruction":"ABS","syntax":"ABS D[c],D[b]",
	 "operand_count":2,"op1_pos":28,"op1_len":4,"op2_pos":8,"op2_len":4},
	{"opcode":"0x1D000000","opcode_size":32,"instruction":"J","syntax":"J disp24",
	 "operand_count":1,"op1_pos":8,"op1_len":24}
]}`

// resetAssembleFlags and resetLinkFlags undo whatever a previous test left
// in the package-level flag variables runAssemble/runLink read, the same
// state cobra's own flag parsing would otherwise own.
func resetAssembleFlags() {
	assembleConfigPath = ""
	assembleTablePath = ""
	assembleOutPath = ""
	assembleBaseDir = ""
	assembleForce32 = false
	assembleNoImplicit = false
}

func resetLinkFlags() {
	linkConfigPath = ""
	linkTablePath = ""
	linkBaseDir = ""
	linkOutPrefix = "a.out"
	linkForce32 = false
	linkNoImplicit = false
	linkBigEndian = false
}

// TestExpandedLinesTracksSourceThroughMacroExpansion exercises the
// lineMap.Tracker wiring runAssemble relies on: expandedLines must hand
// back exactly the macro-expanded lines of its input, in order.
func TestExpandedLinesTracksSourceThroughMacroExpansion(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.asm")
	require.NoError(t, os.WriteFile(src, []byte("start:\nABS D5,D9\nJ start\n"), 0o644))

	lines, err := expandedLines(src, "start:\nABS D5,D9\nJ start\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"start:", "ABS D5,D9", "J start"}, lines)
}

// TestRunAssembleThenRunLinkRoundTrip drives the two pipeline commands the
// way main.go's cobra wiring does: assemble a small program to an object
// file, then link that single object file into a memory image, and check
// the artifacts runAssemble/runLink produced on disk.
func TestRunAssembleThenRunLinkRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tablePath := filepath.Join(dir, "table.json")
	require.NoError(t, os.WriteFile(tablePath, []byte(cliTestTableJSON), 0o644))

	sourcePath := filepath.Join(dir, "main.asm")
	require.NoError(t, os.WriteFile(sourcePath, []byte(".ORG 0x1000\nentry: ABS D5,D9\nJ entry\n"), 0o644))

	objPath := filepath.Join(dir, "main.obj")

	resetAssembleFlags()
	assembleTablePath = tablePath
	assembleOutPath = objPath
	require.NoError(t, runAssemble(assembleCmd, []string{sourcePath}))

	require.FileExists(t, objPath)
	f, err := os.Open(objPath)
	require.NoError(t, err)
	obj, err := objectfile.Decode(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	require.Len(t, obj.Instructions, 2)
	assert.EqualValues(t, 0x1000, obj.Instructions[0].Address)

	outPrefix := filepath.Join(dir, "linked")
	resetLinkFlags()
	linkTablePath = tablePath
	linkOutPrefix = outPrefix
	require.NoError(t, runLink(linkCmd, []string{objPath}))

	require.FileExists(t, outPrefix+".bin")
	require.FileExists(t, outPrefix+".hex")
	require.FileExists(t, outPrefix+".map")
	require.FileExists(t, outPrefix+".lst")
}

// TestRunAssembleReportsDiagnosticsWithoutPanickingOnMissingTable makes sure
// a configuration error (no instruction table resolvable) surfaces as a
// plain error rather than a nil-pointer panic, the failure mode a missing
// --table/--config guard would otherwise produce.
func TestRunAssembleReportsDiagnosticsWithoutPanickingOnMissingTable(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "main.asm")
	require.NoError(t, os.WriteFile(sourcePath, []byte("NOP\n"), 0o644))

	resetAssembleFlags()
	err := runAssemble(assembleCmd, []string{sourcePath})
	assert.Error(t, err)
}

// TestRunLinkReportsUnresolvedSymbolWithoutPanicking exercises runLink's
// diagnostics.FromLinker wiring on a failing link: an object referencing an
// undefined external symbol fails symbol resolution before Link ever builds
// an Image, and runLink must log the resulting diagnostic and still return
// a plain error instead of trying to read a nil Image or Labels.
func TestRunLinkReportsUnresolvedSymbolWithoutPanicking(t *testing.T) {
	dir := t.TempDir()

	tablePath := filepath.Join(dir, "table.json")
	require.NoError(t, os.WriteFile(tablePath, []byte(cliTestTableJSON), 0o644))

	sourcePath := filepath.Join(dir, "main.asm")
	require.NoError(t, os.WriteFile(sourcePath, []byte("J somewhere_else\n"), 0o644))

	objPath := filepath.Join(dir, "main.obj")
	resetAssembleFlags()
	assembleTablePath = tablePath
	assembleOutPath = objPath
	require.NoError(t, runAssemble(assembleCmd, []string{sourcePath}))

	resetLinkFlags()
	linkTablePath = tablePath
	linkOutPrefix = filepath.Join(dir, "linked")
	err := runLink(linkCmd, []string{objPath})
	assert.Error(t, err)
}
