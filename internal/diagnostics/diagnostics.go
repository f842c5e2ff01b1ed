// Package diagnostics adapts debugcontext.Entry into structured log
// output and build-summary counters. It is new — the teacher never reaches
// for a logging library at the debugcontext layer — grounded on
// Consensys-go-corset's dependency list for sirupsen/logrus, the one repo
// in the retrieval pack carrying a structured-logging library.
package diagnostics

import (
	"encoding/json"
	"fmt"

	"github.com/keurnel/tricore-asm/internal/debugcontext"
	"github.com/sirupsen/logrus"
)

// Fields turns one debugcontext.Entry into logrus.Fields keyed the way
// spec.md §7 describes a diagnostic's shape: level, message, file, line,
// column, and error_code.
func Fields(e *debugcontext.Entry) logrus.Fields {
	loc := e.Location()
	fields := logrus.Fields{
		"level":   e.Severity(),
		"message": e.Message(),
		"file":    loc.FilePath(),
		"line":    loc.Line(),
	}
	if loc.Column() != 0 {
		fields["column"] = loc.Column()
	}
	if e.Code() != "" {
		fields["error_code"] = e.Code()
	}
	if e.Hint() != "" {
		fields["hint"] = e.Hint()
	}
	if e.Snippet() != "" {
		fields["snippet"] = e.Snippet()
	}
	return fields
}

// Log replays every entry in a DebugContext into logger at the matching
// logrus level (error/warning entries as Error/Warn, info/trace as
// Info/Debug).
func Log(logger *logrus.Logger, ctx *debugcontext.DebugContext) {
	for _, e := range ctx.Entries() {
		entry := logger.WithFields(Fields(e))
		switch e.Severity() {
		case debugcontext.SeverityError:
			entry.Error(e.Message())
		case debugcontext.SeverityWarning:
			entry.Warn(e.Message())
		case debugcontext.SeverityTrace:
			entry.Debug(e.Message())
		default:
			entry.Info(e.Message())
		}
	}
}

// ExportJSON renders every entry in ctx as a JSON array of objects shaped
// like Fields, for consumers that want the whole diagnostic log rather
// than a live logrus stream.
func ExportJSON(ctx *debugcontext.DebugContext) ([]byte, error) {
	entries := ctx.Entries()
	out := make([]logrus.Fields, len(entries))
	for i, e := range entries {
		out[i] = Fields(e)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: marshaling entries: %w", err)
	}
	return data, nil
}

// Summary is the pass/fail count the CLI's "BUILD FAILED"/"BUILD SUCCEEDED"
// banner is built from (spec.md §7's user-visible behavior); printing the
// banner itself is the CLI's job, not this library's.
type Summary struct {
	Total    int
	Errors   int
	Warnings int
}

// Succeeded reports whether a build with this summary should be considered
// successful: zero recorded errors, regardless of warning count.
func (s Summary) Succeeded() bool {
	return s.Errors == 0
}

// Summarize counts a DebugContext's entries into a Summary.
func Summarize(ctx *debugcontext.DebugContext) Summary {
	return Summary{
		Total:    ctx.Count(),
		Errors:   len(ctx.Errors()),
		Warnings: len(ctx.Warnings()),
	}
}
