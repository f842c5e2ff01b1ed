// Package assembler implements the two-pass assembler of spec.md §4.7: a
// label-collection pass that advances a single linear address counter
// without emitting bytes, followed by a code-emit pass that re-runs variant
// selection against the now-complete label table and encodes every line.
//
// Grounded on the teacher's Generator/collectPass/emitPass shape
// (v0/kasm/codegen.go) — same two-pass structure and CodegenError-style
// error accumulation — generalized away from the teacher's AST/section
// model (Program/Statement/SectionStmt) to a line-based statement parser,
// since TriCore assembly has no section directive: addressing is a single
// .ORG-adjustable counter. The line dispatch order (.ORG, then EQU, then
// label-colon, then directive-or-instruction) and the local-numeric-label
// bookkeeping are grounded on original_source/src/assembler.py's
// _first_pass/_second_pass.
package assembler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/keurnel/tricore-asm/internal/directive"
	"github.com/keurnel/tricore-asm/internal/encoder"
	"github.com/keurnel/tricore-asm/internal/instrtable"
	"github.com/keurnel/tricore-asm/internal/numparse"
	"github.com/keurnel/tricore-asm/internal/objectfile"
	"github.com/keurnel/tricore-asm/internal/operand"
	"github.com/keurnel/tricore-asm/internal/variant"
)

// DefaultBaseAddress is the origin used until the source overrides it with
// ".ORG hex" (spec.md §4.7).
const DefaultBaseAddress uint32 = 0x80000000

// Sentinel errors named after the spec.md §7 taxonomy entries this package
// itself raises (UnknownInstruction and NoVariantMatches both surface
// through variant.ErrNoVariant — see diagnosticCode).
var (
	ErrDuplicateLabel = errors.New("assembler: duplicate label")
	ErrInvalidOrigin  = errors.New("assembler: invalid .ORG value")
)

// Diagnostic is one reported error, tagged with the taxonomy code a caller
// (or a listing renderer) can group on.
type Diagnostic struct {
	Code    string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d: %s: %s", d.Line, d.Code, d.Message)
}

// ListingLine is one entry of the preliminary listing spec.md §4.7 requires
// alongside the object file: every source line with its pass-2 address and
// encoding, including blank/comment/label-only/.ORG/EQU lines that carry no
// bytes.
type ListingLine struct {
	Line    int
	Address uint32
	Bytes   []byte
	Text    string
}

// Result is everything Assemble produces for one source file.
type Result struct {
	Object      *objectfile.ObjectFile
	Listing     []ListingLine
	Diagnostics []Diagnostic
}

// Options configures one Assembler.
type Options struct {
	Table   *instrtable.Table
	Variant variant.Options
	// BaseDir resolves relative INCBIN paths.
	BaseDir string
}

type labelInfo struct {
	Address int64
	Line    int
}

// Assembler holds the label/constant/local-label tables a single source
// file's two passes build up. Create one per source file — state is not
// meant to be reused across files.
type Assembler struct {
	opts        Options
	labels      map[string]labelInfo
	locals      map[string][]int64
	constants   map[string]int64
	diagnostics []Diagnostic
}

// New returns a ready-to-use Assembler.
func New(opts Options) *Assembler {
	return &Assembler{
		opts:      opts,
		labels:    make(map[string]labelInfo),
		locals:    make(map[string][]int64),
		constants: make(map[string]int64),
	}
}

// ---------------------------------------------------------------------------
// Resolver (satisfies both encoder.Resolver and directive.Resolver)
// ---------------------------------------------------------------------------

type asmResolver struct{ a *Assembler }

// ResolveLabel answers label lookups only. A named EQU constant used
// directly as an instruction's immediate operand is not resolved here: the
// encoder treats every name it resolves through this method as an address
// and returns its PC-relative displacement (spec.md §4.6), which would
// silently corrupt a constant's literal value. Constants are meant for
// directive operand lists and TIMES/RESx counts (spec.md §4.7: "bind in
// the constants table, not in labels"); an instruction operand naming one
// falls through to the forward-reference placeholder and a recorded symbol
// reference like any other unresolved name, same as original_source's own
// assembler.py.
func (r asmResolver) ResolveLabel(name string) (int64, bool) {
	info, ok := r.a.labels[name]
	return info.Address, ok
}

func (r asmResolver) ResolveConstant(name string) (int64, bool) {
	v, ok := r.a.constants[name]
	return v, ok
}

// ResolveLocal finds the nearest forward or backward occurrence of a
// GCC-style local numeric label ("3f"/"3b") relative to currentAddress. A
// local label may be defined more than once; "digitsf" always means the
// next definition strictly after currentAddress, "digitsb" the most recent
// one at or before it.
func (r asmResolver) ResolveLocal(digits string, forward bool, currentAddress int64) (int64, bool) {
	addrs := r.a.locals[digits]
	if len(addrs) == 0 {
		return 0, false
	}
	if forward {
		idx := sort.Search(len(addrs), func(i int) bool { return addrs[i] > currentAddress })
		if idx == len(addrs) {
			return 0, false
		}
		return addrs[idx], true
	}
	idx := sort.Search(len(addrs), func(i int) bool { return addrs[i] > currentAddress })
	if idx == 0 {
		return 0, false
	}
	return addrs[idx-1], true
}

// ---------------------------------------------------------------------------
// Line-level parsing
// ---------------------------------------------------------------------------

type stmtKind int

const (
	stmtBlank stmtKind = iota
	stmtOrg
	stmtEqu
	stmtLabelOnly
	stmtData
	stmtInstruction
)

type parsedLine struct {
	kind         stmtKind
	label        string
	orgValue     int64
	equSymbol    string
	equValue     int64
	mnemonic     string
	operandsText string
}

var (
	orgPattern        = regexp.MustCompile(`(?i)^\.ORG\s+(.+)$`)
	equDetectPattern  = regexp.MustCompile(`(?i)^(\S+)\s+EQU\s+`)
	mnemonicPattern   = regexp.MustCompile(`^(\S+)\s*(.*)$`)
	labelNamePattern  = regexp.MustCompile(`^[A-Za-z_.][A-Za-z0-9_.]*$`)
	localLabelPattern = regexp.MustCompile(`^[0-9]+$`)
	localRefPattern   = regexp.MustCompile(`^[0-9]+[fb]$`)
)

// stripComment removes a ';' line comment that appears outside any quoted
// span, mirroring the quote-awareness of directive.SplitList's comment
// handling so a ';' inside a string literal operand is never mistaken for
// a comment start.
func stripComment(line string) string {
	inQuote := false
	var quoteChar byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if (c == '"' || c == '\'') && (!inQuote || c == quoteChar) {
			inQuote = !inQuote
			if inQuote {
				quoteChar = c
			}
			continue
		}
		if c == ';' && !inQuote {
			return line[:i]
		}
	}
	return line
}

func splitMnemonic(text string) (string, string) {
	m := mnemonicPattern.FindStringSubmatch(text)
	if m == nil {
		return "", ""
	}
	return strings.ToUpper(m[1]), strings.TrimSpace(m[2])
}

// parseLine classifies one source line in the dispatch order
// original_source/src/assembler.py uses: .ORG, then EQU, then a label
// prefix, then directive-or-instruction.
func (a *Assembler) parseLine(text string) (parsedLine, error) {
	stripped := strings.TrimSpace(stripComment(text))
	if stripped == "" {
		return parsedLine{kind: stmtBlank}, nil
	}

	if m := orgPattern.FindStringSubmatch(stripped); m != nil {
		v, err := a.resolveOrigin(m[1])
		if err != nil {
			return parsedLine{}, err
		}
		return parsedLine{kind: stmtOrg, orgValue: v}, nil
	}

	if equDetectPattern.MatchString(stripped) {
		eq, err := directive.ParseEqu(stripped, asmResolver{a})
		if err != nil {
			return parsedLine{}, err
		}
		return parsedLine{kind: stmtEqu, equSymbol: eq.Symbol, equValue: eq.Value}, nil
	}

	label := ""
	rest := stripped
	if idx := strings.IndexByte(stripped, ':'); idx >= 0 {
		candidate := strings.TrimSpace(stripped[:idx])
		if labelNamePattern.MatchString(candidate) || localLabelPattern.MatchString(candidate) {
			label = candidate
			rest = strings.TrimSpace(stripped[idx+1:])
		}
	}

	if rest == "" {
		return parsedLine{kind: stmtLabelOnly, label: label}, nil
	}

	mnemonic, operandsText := splitMnemonic(rest)
	if directive.IsDirective(mnemonic) {
		return parsedLine{kind: stmtData, label: label, mnemonic: mnemonic, operandsText: operandsText}, nil
	}
	return parsedLine{kind: stmtInstruction, label: label, mnemonic: mnemonic, operandsText: operandsText}, nil
}

// resolveOrigin parses a ".ORG" operand: a numeric literal in any NASM
// form, or an already-bound EQU constant.
func (a *Assembler) resolveOrigin(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if v, err := numparse.ParseInt(text); err == nil {
		if v < 0 || v > 0xFFFFFFFF {
			return 0, fmt.Errorf("%w: %d is outside the 32-bit address space", ErrInvalidOrigin, v)
		}
		return v, nil
	}
	if v, ok := a.constants[text]; ok {
		if v < 0 || v > 0xFFFFFFFF {
			return 0, fmt.Errorf("%w: %d is outside the 32-bit address space", ErrInvalidOrigin, v)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOrigin, text)
}

// ---------------------------------------------------------------------------
// Size computation (pass 1)
// ---------------------------------------------------------------------------

// statementSize computes how many bytes a parsed line will occupy — spec.md
// §4.7's "compute the line's size without emitting bytes". address and the
// resolver let a label already defined earlier in this same pass (a
// backward reference) narrow its variant the same way pass 2 eventually
// will; a forward reference has no entry in a.labels yet, so it still
// resolves to nothing and biases toward the widest variant.
func (a *Assembler) statementSize(p parsedLine, address int64, lineNum int) (int, error) {
	switch p.kind {
	case stmtData:
		return a.dataSize(p.mnemonic, p.operandsText, address, lineNum)
	case stmtInstruction:
		ops, err := operand.ParseList(p.operandsText)
		if err != nil {
			return 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		def, err := variant.Select(a.opts.Table, p.mnemonic, ops, address, asmResolver{a}, a.opts.Variant)
		if err != nil {
			return 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		return def.OpcodeSize / 8, nil
	default:
		return 0, nil
	}
}

func (a *Assembler) dataSize(mnemonic, operandsText string, address int64, lineNum int) (int, error) {
	switch mnemonic {
	case "TIMES":
		t, err := directive.ParseTimes("TIMES "+operandsText, asmResolver{a})
		if err != nil {
			return 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		inner, err := a.parseLine(t.Rest)
		if err != nil {
			return 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		innerSize, err := a.statementSize(inner, address, lineNum)
		if err != nil {
			return 0, err
		}
		return int(t.Count) * innerSize, nil
	case "INCBIN":
		inc, err := directive.ParseIncbin(operandsText, asmResolver{a})
		if err != nil {
			return 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		return a.incbinSize(inc)
	default:
		if _, ok := directive.DataSizes[mnemonic]; ok {
			n, err := directive.CalculateDataSize(mnemonic, operandsText)
			if err != nil {
				return 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
			}
			return n, nil
		}
		if _, ok := directive.ReserveSizes[mnemonic]; ok {
			n, err := directive.CalculateReserveSize(mnemonic, operandsText, asmResolver{a})
			if err != nil {
				return 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
			}
			return n, nil
		}
		return 0, fmt.Errorf("assembler: line %d: unknown directive %q", lineNum, mnemonic)
	}
}

func (a *Assembler) incbinSize(inc directive.Incbin) (int, error) {
	path := inc.Filename
	if a.opts.BaseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(a.opts.BaseDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", directive.ErrFileNotFound, path)
		}
		return 0, err
	}
	size := info.Size() - inc.Start
	if inc.Length != nil {
		size = *inc.Length
	}
	if size < 0 {
		size = 0
	}
	return int(size), nil
}

// ---------------------------------------------------------------------------
// Byte emission (pass 2)
// ---------------------------------------------------------------------------

// statementBytes produces the final encoded bytes of a parsed line, plus
// the raw 32-bit opcode word for instructions (0 for data directives).
// Any Imm operand naming an identifier the resolver cannot bind is also
// reported to collectSymbols so the object file records it for the
// linker's global symbol resolution (spec.md §3's Symbol Reference, §4.8
// Phase B).
func (a *Assembler) statementBytes(p parsedLine, address int64, lineNum int, collectSymbols func(operand.Operand)) ([]byte, uint32, error) {
	switch p.kind {
	case stmtData:
		return a.dataBytes(p.mnemonic, p.operandsText, address, lineNum, collectSymbols)
	case stmtInstruction:
		ops, err := operand.ParseList(p.operandsText)
		if err != nil {
			return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		def, err := variant.Select(a.opts.Table, p.mnemonic, ops, address, asmResolver{a}, a.opts.Variant)
		if err != nil {
			return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		if collectSymbols != nil {
			for _, op := range ops {
				collectSymbols(op)
			}
		}
		word, err := encoder.Encode(def, ops, address, asmResolver{a})
		if err != nil {
			return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		size := def.OpcodeSize / 8
		buf := make([]byte, size)
		full := make([]byte, 4)
		binary.LittleEndian.PutUint32(full, word)
		copy(buf, full[:min(size, 4)])
		return buf, word, nil
	default:
		return nil, 0, nil
	}
}

func (a *Assembler) dataBytes(mnemonic, operandsText string, address int64, lineNum int, collectSymbols func(operand.Operand)) ([]byte, uint32, error) {
	switch mnemonic {
	case "TIMES":
		t, err := directive.ParseTimes("TIMES "+operandsText, asmResolver{a})
		if err != nil {
			return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		inner, err := a.parseLine(t.Rest)
		if err != nil {
			return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		innerBytes, _, err := a.statementBytes(inner, address, lineNum, collectSymbols)
		if err != nil {
			return nil, 0, err
		}
		out := make([]byte, 0, len(innerBytes)*int(t.Count))
		for i := int64(0); i < t.Count; i++ {
			out = append(out, innerBytes...)
		}
		return out, 0, nil
	case "INCBIN":
		// The included file's bytes are not embedded in the object file: the
		// linker re-reads it at link time (spec.md §4.8 Phase E), so two
		// assemblies of the same source never disagree about a binary blob
		// that changed between them. Only the size is fixed here.
		inc, err := directive.ParseIncbin(operandsText, asmResolver{a})
		if err != nil {
			return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		size, err := a.incbinSize(inc)
		if err != nil {
			return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
		}
		return make([]byte, size), 0, nil
	default:
		if _, ok := directive.DataSizes[mnemonic]; ok {
			values, err := directive.ParseDataList(operandsText, asmResolver{a})
			if err != nil {
				return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
			}
			data, err := directive.EncodeValues(mnemonic, values, false)
			if err != nil {
				return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
			}
			return data, 0, nil
		}
		if _, ok := directive.ReserveSizes[mnemonic]; ok {
			size, err := directive.CalculateReserveSize(mnemonic, operandsText, asmResolver{a})
			if err != nil {
				return nil, 0, fmt.Errorf("assembler: line %d: %w", lineNum, err)
			}
			return make([]byte, size), 0, nil
		}
		return nil, 0, fmt.Errorf("assembler: line %d: unknown directive %q", lineNum, mnemonic)
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func (a *Assembler) addDiagnostic(line int, err error) {
	a.diagnostics = append(a.diagnostics, Diagnostic{Code: diagnosticCode(err), Line: line, Message: err.Error()})
}

// diagnosticCode maps an error to the spec.md §7 taxonomy code a listing
// or CLI renderer groups diagnostics by. UnknownInstruction and
// NoVariantMatches both originate from variant.ErrNoVariant (that package
// doesn't distinguish "mnemonic not in table at all" from "mnemonic known
// but no variant fits these operands" with separate sentinels); the two
// are told apart here by the fixed wording variant.Select uses for the
// former, since the error's own message already carries the distinction a
// second sentinel would just duplicate.
func diagnosticCode(err error) string {
	switch {
	case errors.Is(err, encoder.ErrOperandOutOfRange):
		return "OperandOutOfRange"
	case errors.Is(err, variant.ErrNoVariant):
		if strings.Contains(err.Error(), "unknown mnemonic") {
			return "UnknownInstruction"
		}
		return "NoVariantMatches"
	case errors.Is(err, ErrDuplicateLabel):
		return "DuplicateLabel"
	case errors.Is(err, ErrInvalidOrigin):
		return "InvalidOrg"
	case errors.Is(err, directive.ErrUnresolvedValue):
		return "UnresolvedValue"
	case errors.Is(err, directive.ErrInvalidCount):
		return "InvalidCount"
	case errors.Is(err, directive.ErrFileNotFound):
		return "FileNotFound"
	case errors.Is(err, encoder.ErrUnresolvedOperand):
		return "UnresolvedOperand"
	default:
		return "Error"
	}
}

// ---------------------------------------------------------------------------
// Assemble
// ---------------------------------------------------------------------------

// Assemble runs both passes over lines (already split, 1-indexed by
// position) and returns the object file, preliminary listing, and any
// diagnostics. A non-nil error means pass 1 accumulated at least one
// blocking diagnostic (DuplicateLabel, UnknownInstruction, NoVariantMatches,
// ...) or pass 2 failed to encode a line (OperandOutOfRange or any other
// error) and aborted immediately at that line.
func (a *Assembler) Assemble(sourcePath string, lines []string) (*Result, error) {
	a.diagnostics = nil
	address := int64(DefaultBaseAddress)

	// Pass 1 — label collection and size computation.
	for i, raw := range lines {
		lineNum := i + 1
		p, err := a.parseLine(raw)
		if err != nil {
			a.addDiagnostic(lineNum, err)
			continue
		}

		switch p.kind {
		case stmtOrg:
			address = p.orgValue
			continue
		case stmtEqu:
			a.constants[p.equSymbol] = p.equValue
			continue
		}

		if p.label != "" {
			if localLabelPattern.MatchString(p.label) {
				a.locals[p.label] = append(a.locals[p.label], address)
			} else if _, exists := a.labels[p.label]; exists {
				a.addDiagnostic(lineNum, fmt.Errorf("%w: %q (previously defined at line %d)",
					ErrDuplicateLabel, p.label, a.labels[p.label].Line))
			} else {
				a.labels[p.label] = labelInfo{Address: address, Line: lineNum}
			}
		}

		size, err := a.statementSize(p, address, lineNum)
		if err != nil {
			a.addDiagnostic(lineNum, err)
			continue
		}
		address += int64(size)
	}

	for digits := range a.locals {
		sort.Slice(a.locals[digits], func(i, j int) bool { return a.locals[digits][i] < a.locals[digits][j] })
	}

	if len(a.diagnostics) > 0 {
		return &Result{Diagnostics: a.diagnostics}, fmt.Errorf("assembler: pass 1 failed with %d error(s)", len(a.diagnostics))
	}

	// Pass 2 — re-select variants against the complete label table, encode.
	obj := &objectfile.ObjectFile{SourcePath: sourcePath}
	for name, info := range a.labels {
		obj.Labels = append(obj.Labels, objectfile.LabelRecord{Name: name, Address: uint32(info.Address), Line: uint32(info.Line)})
	}

	collectSymbol := func(op operand.Operand, lineAddress int64, lineNum int) {
		imm, ok := op.(operand.Imm)
		if !ok {
			return
		}
		if _, err := numparse.ParseInt(imm.Raw); err == nil {
			return
		}
		if localRefPattern.MatchString(imm.Raw) {
			return
		}
		if _, ok := a.labels[imm.Raw]; ok {
			return
		}
		if !labelNamePattern.MatchString(imm.Raw) {
			return
		}
		obj.Symbols = append(obj.Symbols, objectfile.SymbolRecord{
			Name:               imm.Raw,
			PlaceholderAddress: uint32(lineAddress),
			Line:               uint32(lineNum),
		})
	}

	listing := make([]ListingLine, 0, len(lines))
	address = int64(DefaultBaseAddress)
	for i, raw := range lines {
		lineNum := i + 1
		p, err := a.parseLine(raw)
		if err != nil {
			continue // already reported in pass 1
		}

		if p.kind == stmtOrg {
			address = p.orgValue
			listing = append(listing, ListingLine{Line: lineNum, Address: uint32(address), Text: raw})
			continue
		}
		if p.kind == stmtEqu || p.kind == stmtBlank || p.kind == stmtLabelOnly {
			listing = append(listing, ListingLine{Line: lineNum, Address: uint32(address), Text: raw})
			continue
		}

		lineAddress := address
		data, word, err := a.statementBytes(p, lineAddress, lineNum, func(op operand.Operand) {
			collectSymbol(op, lineAddress, lineNum)
		})
		if err != nil {
			a.addDiagnostic(lineNum, err)
			return &Result{Object: obj, Listing: listing, Diagnostics: a.diagnostics}, err
		}

		obj.Instructions = append(obj.Instructions, objectfile.InstructionRecord{
			Address:    uint32(lineAddress),
			OpcodeWord: word,
			SizeBytes:  uint8(len(data)),
			SourceLine: uint32(lineNum),
			SourceText: strings.TrimSpace(raw),
			Data:       data,
		})
		listing = append(listing, ListingLine{Line: lineNum, Address: uint32(lineAddress), Bytes: data, Text: raw})
		address += int64(len(data))
	}

	for name, value := range a.constants {
		obj.Constants = append(obj.Constants, objectfile.ConstantRecord{Name: name, Value: int32(value)})
	}

	return &Result{Object: obj, Listing: listing, Diagnostics: a.diagnostics}, nil
}
