package diagnostics_test

import (
	"encoding/json"
	"testing"

	"github.com/keurnel/tricore-asm/internal/debugcontext"
	"github.com/keurnel/tricore-asm/internal/diagnostics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsIncludesOptionalColumnHintSnippetOnlyWhenSet(t *testing.T) {
	ctx := debugcontext.NewDebugContext("main.asm")
	ctx.Error(ctx.Loc(3, 0), "unknown instruction").WithHint("did you mean 'mov'?")

	entries := ctx.Entries()
	require.Len(t, entries, 1)
	fields := diagnostics.Fields(entries[0])

	assert.Equal(t, "error", fields["level"])
	assert.Equal(t, "unknown instruction", fields["message"])
	assert.Equal(t, "main.asm", fields["file"])
	assert.Equal(t, 3, fields["line"])
	assert.NotContains(t, fields, "column")
	assert.Equal(t, "did you mean 'mov'?", fields["hint"])
	assert.NotContains(t, fields, "snippet")
}

func TestFieldsIncludesColumnWhenNonZero(t *testing.T) {
	ctx := debugcontext.NewDebugContext("main.asm")
	ctx.Warning(ctx.Loc(5, 12), "operand near range limit")

	fields := diagnostics.Fields(ctx.Entries()[0])
	assert.Equal(t, 12, fields["column"])
}

func TestExportJSONProducesOneObjectPerEntry(t *testing.T) {
	ctx := debugcontext.NewDebugContext("main.asm")
	ctx.Error(ctx.Loc(1, 0), "bad label")
	ctx.Warning(ctx.Loc(2, 0), "convergence warning")

	data, err := diagnostics.ExportJSON(ctx)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "error", decoded[0]["level"])
	assert.Equal(t, "warning", decoded[1]["level"])
}

func TestSummarizeCountsErrorsAndWarningsSeparately(t *testing.T) {
	ctx := debugcontext.NewDebugContext("main.asm")
	ctx.Error(ctx.Loc(1, 0), "e1")
	ctx.Error(ctx.Loc(2, 0), "e2")
	ctx.Warning(ctx.Loc(3, 0), "w1")
	ctx.Info(ctx.Loc(4, 0), "i1")

	s := diagnostics.Summarize(ctx)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Errors)
	assert.Equal(t, 1, s.Warnings)
	assert.False(t, s.Succeeded())
}

func TestSummarySucceedsWithZeroErrors(t *testing.T) {
	ctx := debugcontext.NewDebugContext("main.asm")
	ctx.Warning(ctx.Loc(1, 0), "w1")

	s := diagnostics.Summarize(ctx)
	assert.True(t, s.Succeeded())
}

func TestKindFatalAndWarningClassification(t *testing.T) {
	assert.True(t, diagnostics.FileNotFound.Fatal())
	assert.True(t, diagnostics.AddressConflict.Fatal())
	assert.False(t, diagnostics.UnresolvedSymbol.Fatal())
	assert.True(t, diagnostics.ConvergenceFailed.Warning())
	assert.False(t, diagnostics.DuplicateLabel.Warning())
}
