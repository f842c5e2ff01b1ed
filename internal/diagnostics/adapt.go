package diagnostics

import (
	"github.com/keurnel/tricore-asm/internal/assembler"
	"github.com/keurnel/tricore-asm/internal/debugcontext"
	"github.com/keurnel/tricore-asm/internal/linker"
)

// FromAssembler replays one source file's assembler.Diagnostic list into a
// fresh DebugContext tagged with the "assemble" phase, so the CLI front end
// can feed a single source of diagnostics into Log/ExportJSON regardless of
// which pipeline phase produced them.
func FromAssembler(sourcePath string, diags []assembler.Diagnostic) *debugcontext.DebugContext {
	ctx := debugcontext.NewDebugContext(sourcePath)
	ctx.SetPhase("assemble")
	for _, d := range diags {
		ctx.ErrorCode(ctx.Loc(d.Line, 0), d.Code, d.Message)
	}
	return ctx
}

// FromLinker replays a Link call's linker.Diagnostic list into a fresh
// DebugContext tagged with the "link" phase. Each diagnostic's Object path
// becomes its Location's file, since one link combines many object files
// and spec.md §7 ties every diagnostic to the file it concerns.
func FromLinker(diags []linker.Diagnostic) *debugcontext.DebugContext {
	ctx := debugcontext.NewDebugContext("")
	ctx.SetPhase("link")
	for _, d := range diags {
		if d.Code == "SizeNotConverged" {
			ctx.Warning(ctx.LocIn(d.Object, int(d.Line), 0), d.Message).WithCode(d.Code)
			continue
		}
		ctx.ErrorCode(ctx.LocIn(d.Object, int(d.Line), 0), d.Code, d.Message)
	}
	return ctx
}
