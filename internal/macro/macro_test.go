package macro_test

import (
	"strings"
	"testing"

	"github.com/keurnel/tricore-asm/internal/macro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandObjectLikeMacro(t *testing.T) {
	source := "#define BASE 0x80000000\n.ORG BASE\nMOV D0, BASE\n"
	out, err := macro.Expand(source)
	require.NoError(t, err)
	assert.NotContains(t, out, "#define")
	assert.Contains(t, out, ".ORG 0x80000000")
	assert.Contains(t, out, "MOV D0, 0x80000000")
}

func TestExpandFunctionLikeMacroSubstitutesArguments(t *testing.T) {
	source := "#define PAIR(a, b) MOV D0, a ; MOV D1, b\nPAIR(D4, D5)\n"
	out, err := macro.Expand(source)
	require.NoError(t, err)
	assert.Contains(t, out, "MOV D0, D4 ; MOV D1, D5")
}

func TestExpandFunctionLikeMacroArityMismatchErrors(t *testing.T) {
	source := "#define PAIR(a, b) a b\nPAIR(D4)\n"
	_, err := macro.Expand(source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAIR")
}

func TestExpandTokenPasteConcatenatesAdjacentText(t *testing.T) {
	source := "#define REG(n) D ## n\nMOV REG(4), D5\n"
	out, err := macro.Expand(source)
	require.NoError(t, err)
	assert.Contains(t, out, "MOV D4, D5")
}

func TestExpandCounterProducesDistinctIncreasingValues(t *testing.T) {
	source := "label__COUNTER__:\nlabel__COUNTER__:\nlabel__COUNTER__:\n"
	out, err := macro.Expand(source)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "label0:", lines[0])
	assert.Equal(t, "label1:", lines[1])
	assert.Equal(t, "label2:", lines[2])
}

func TestExpandWithNoDefinesIsIdentity(t *testing.T) {
	source := "MOV D0, D1\nABS D2, D3\n"
	out, err := macro.Expand(source)
	require.NoError(t, err)
	assert.Equal(t, source, out)
}
