// Package debugcontext provides a passive, append-only data structure that
// accumulates diagnostic entries (errors, warnings, info, traces) as the
// assembler and linker pipeline progresses. It does not perform I/O or
// formatting — internal/diagnostics consumes the entries to feed a real
// logging library, and the CLI front end renders a build summary from them.
package debugcontext
