// Package instrtable loads the external TriCore instruction table (JSON or
// CSV) and pre-compiles, per row, the descriptors the variant selector and
// encoder need: operand slot positions/lengths, split bit-field windows,
// syntax operand types, and addressing mode.
//
// Grounded on the teacher's Instruction/InstructionVariant/InstructionGroup
// trio (v0/internal/architecture, v0/architecture/instruction_group.go):
// same "group definitions by mnemonic, iterate candidates" shape, widened
// from a fixed-width x86 Operands []string match to TriCore's five-slot
// position/length table and derived addressing mode.
package instrtable

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/keurnel/tricore-asm/internal/operand"
	"github.com/samber/lo"
)

// AddressingMode is the derived addressing mode of a variant's syntax
// string, resolving the open question noted in SPEC_FULL.md §8 decision 1:
// the table carries no explicit addressing-mode column, so it is computed
// once at load time from the syntax string instead of re-derived from
// operand text at encode time.
type AddressingMode int

const (
	Direct AddressingMode = iota
	PostIncrement
	PreIncrement
	BaseOffset
)

func (m AddressingMode) String() string {
	switch m {
	case PostIncrement:
		return "post-increment"
	case PreIncrement:
		return "pre-increment"
	case BaseOffset:
		return "base-offset"
	default:
		return "direct"
	}
}

// Slot is a fixed (non-split) operand bit-field position and length.
type Slot struct {
	Pos int
	Len int
}

// SplitField is one window of a split bit-field, e.g. the "[9:6]" in
// "off16{[9:6][15:10][5:0]}".
type SplitField struct {
	High int
	Low  int
}

func (f SplitField) Width() int { return f.High - f.Low + 1 }

// Definition is a single row of the instruction table: one encoding variant
// of one mnemonic.
type Definition struct {
	Opcode       uint32
	OpcodeSize   int
	Mnemonic     string
	LongName     string
	Syntax       string
	Reference    string
	OperandCount int
	Slots        [5]Slot

	syntaxOperands []string
	syntaxTypes    []operand.Class
	addressing     AddressingMode
}

// rawRow mirrors the JSON/CSV field names of the external table
// (original_source/src/instruction_loader.py's InstructionDefinition).
type rawRow struct {
	Opcode       string `json:"opcode"`
	OpcodeSize   int    `json:"opcode_size"`
	Instruction  string `json:"instruction"`
	LongName     string `json:"long_name"`
	Syntax       string `json:"syntax"`
	Reference    string `json:"reference"`
	OperandCount int    `json:"operand_count"`
	Op1Pos       int    `json:"op1_pos"`
	Op1Len       int    `json:"op1_len"`
	Op2Pos       int    `json:"op2_pos"`
	Op2Len       int    `json:"op2_len"`
	Op3Pos       int    `json:"op3_pos"`
	Op3Len       int    `json:"op3_len"`
	Op4Pos       int    `json:"op4_pos"`
	Op4Len       int    `json:"op4_len"`
	Op5Pos       int    `json:"op5_pos"`
	Op5Len       int    `json:"op5_len"`
}

func (r rawRow) toDefinition() (*Definition, error) {
	opcode := uint64(0)
	if r.Opcode != "" {
		text := strings.TrimPrefix(strings.TrimPrefix(r.Opcode, "0x"), "0X")
		v, err := strconv.ParseUint(text, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("instrtable: invalid opcode %q for %s: %w", r.Opcode, r.Instruction, err)
		}
		opcode = v
	}
	size := r.OpcodeSize
	if size == 0 {
		size = 32
	}
	d := &Definition{
		Opcode:       uint32(opcode),
		OpcodeSize:   size,
		Mnemonic:     strings.ToUpper(strings.TrimSpace(r.Instruction)),
		LongName:     r.LongName,
		Syntax:       r.Syntax,
		Reference:    r.Reference,
		OperandCount: r.OperandCount,
		Slots: [5]Slot{
			{r.Op1Pos, r.Op1Len},
			{r.Op2Pos, r.Op2Len},
			{r.Op3Pos, r.Op3Len},
			{r.Op4Pos, r.Op4Len},
			{r.Op5Pos, r.Op5Len},
		},
	}
	d.compile()
	return d, nil
}

var (
	braceBlock     = regexp.MustCompile(`\{[^}]+\}`)
	splitWindow    = regexp.MustCompile(`\[(\d+):(\d+)\]`)
	fixedRegSyntax = regexp.MustCompile(`(?i)^\[?([DAEP])\[(\d+)\]\]?`)
	widthSuffix    = regexp.MustCompile(`(?i)(off|imm|disp|const|rel)(\d+)`)
)

// compile derives syntaxOperands/syntaxTypes/addressing from Syntax once,
// so repeated variant-selection passes never re-parse the syntax string.
func (d *Definition) compile() {
	d.syntaxOperands = splitSyntaxOperands(d.Syntax)
	d.syntaxTypes = make([]operand.Class, len(d.syntaxOperands))
	for i, pat := range d.syntaxOperands {
		d.syntaxTypes[i] = classifySyntaxOperand(pat)
	}
	d.addressing = deriveAddressingMode(d.Syntax, d.syntaxOperands)
}

// splitSyntaxOperands extracts the comma-separated operand patterns from a
// syntax string like "ABS D[c],D[b]" or "ST.W [A[15]],off4,D[a]".
func splitSyntaxOperands(syntax string) []string {
	parts := strings.SplitN(strings.TrimSpace(syntax), " ", 2)
	if len(parts) < 2 {
		return nil
	}
	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return nil
	}
	stripped := braceBlock.ReplaceAllString(rest, "")
	pieces := strings.Split(stripped, ",")
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// classifySyntaxOperand derives the reg_d/reg_a/reg_e/reg_p/imm type of a
// syntax operand pattern, matching
// original_source/instruction_loader.py's _parse_syntax_operand_types: a
// "[A[15]]" fixed-register memory form classifies the same as a plain
// "A[b]" register form.
func classifySyntaxOperand(pattern string) operand.Class {
	upper := strings.ToUpper(strings.TrimSpace(pattern))
	if m := fixedRegSyntax.FindStringSubmatch(upper); m != nil {
		return classFromLetter(m[1])
	}
	// Strip one layer of outer brackets (memory-indirection syntax like
	// "[A[b]]") before falling back to the plain leading-letter check.
	inner := upper
	if len(inner) >= 2 && strings.HasPrefix(inner, "[") && strings.HasSuffix(inner, "]") {
		inner = inner[1 : len(inner)-1]
	}
	if len(inner) > 0 {
		switch inner[0] {
		case 'D', 'A', 'E', 'P':
			if strings.Contains(inner, "[") {
				return classFromLetter(string(inner[0]))
			}
		}
	}
	return operand.ClassNone
}

func classFromLetter(letter string) operand.Class {
	switch letter {
	case "D":
		return operand.ClassD
	case "A":
		return operand.ClassA
	case "E":
		return operand.ClassE
	case "P":
		return operand.ClassP
	default:
		return operand.ClassNone
	}
}

// deriveAddressingMode implements SPEC_FULL.md §8 decision 1: a closed,
// deterministic rule evaluated once at load time.
func deriveAddressingMode(syntax string, syntaxOperands []string) AddressingMode {
	lower := strings.ToLower(syntax)
	for _, op := range syntaxOperands {
		lop := strings.ToLower(strings.TrimSpace(op))
		if strings.HasPrefix(lop, "[") && strings.HasSuffix(lop, "+]") {
			return PostIncrement
		}
		if strings.HasPrefix(lop, "[+") {
			return PreIncrement
		}
	}
	_ = lower
	if len(syntaxOperands) > 1 && strings.HasPrefix(strings.TrimSpace(syntaxOperands[0]), "[") {
		return BaseOffset
	}
	return Direct
}

// AddressingMode returns the derived addressing mode for this variant.
func (d *Definition) AddressingMode() AddressingMode { return d.addressing }

// SyntaxOperandTypes returns the classified operand types of this variant's
// syntax, one per comma-separated syntax operand.
func (d *Definition) SyntaxOperandTypes() []operand.Class { return d.syntaxTypes }

// SyntaxOperand returns the raw (brace-stripped) syntax text for the
// 1-based operand number, or "" if out of range.
func (d *Definition) SyntaxOperand(operandNum int) string {
	if operandNum < 1 || operandNum > len(d.syntaxOperands) {
		return ""
	}
	return d.syntaxOperands[operandNum-1]
}

// FixedRegister reports whether the given 1-based operand is pinned to a
// specific register number by the syntax (e.g. "A[15]" rather than "A[b]"),
// used by the variant selector's fixed-register-specificity scoring step.
func (d *Definition) FixedRegister(operandNum int) (class operand.Class, number int, ok bool) {
	pat := strings.ToUpper(d.SyntaxOperand(operandNum))
	m := regexp.MustCompile(`^\[?([DAEP])\[(\d+)\]\]?$`).FindStringSubmatch(pat)
	if m == nil {
		return operand.ClassNone, 0, false
	}
	num, err := strconv.Atoi(m[2])
	if err != nil {
		return operand.ClassNone, 0, false
	}
	return classFromLetter(m[1]), num, true
}

// SplitFields returns the brace-delimited bit-field windows for the given
// 1-based operand, in the order they appear in the syntax (which need not be
// most-significant first, e.g. {[9:6][15:10][5:0]}), or nil if the operand
// is not split.
func (d *Definition) SplitFields(operandNum int) []SplitField {
	parts := strings.SplitN(strings.TrimSpace(d.Syntax), " ", 2)
	if len(parts) < 2 {
		return nil
	}
	pieces := strings.Split(strings.TrimSpace(parts[1]), ",")
	if operandNum < 1 || operandNum > len(pieces) {
		return nil
	}
	raw := pieces[operandNum-1]
	block := braceBlock.FindString(raw)
	if block == "" {
		return nil
	}
	matches := splitWindow.FindAllStringSubmatch(block, -1)
	fields := make([]SplitField, 0, len(matches))
	for _, m := range matches {
		high, _ := strconv.Atoi(m[1])
		low, _ := strconv.Atoi(m[2])
		fields = append(fields, SplitField{High: high, Low: low})
	}
	return fields
}

// Scale returns the implicit divisor (1, 2, or 4) a value must be divided
// by before range-checking/encoding into the given 1-based operand, per the
// "/2"/"/4" syntax modifiers and the word-aligned-offset implicit scaling
// rule from original_source/instruction_loader.py.
func (d *Definition) Scale(operandNum int) int {
	pat := d.SyntaxOperand(operandNum)
	switch {
	case strings.Contains(pat, "/4"):
		return 4
	case strings.Contains(pat, "/2"):
		return 2
	}
	if strings.Contains(strings.ToLower(pat), "off") {
		switch d.Mnemonic {
		case "LD.W", "ST.W", "LD.A", "LEA":
			return 4
		}
	}
	return 1
}

// OperandBitWidth returns the total bit width of the given 1-based operand,
// handling split fields by summing their window widths, falling back to an
// explicit width suffix in the syntax (off16, const9, ...), and finally to
// the table's own slot length.
func (d *Definition) OperandBitWidth(operandNum int) int {
	if fields := d.SplitFields(operandNum); len(fields) > 0 {
		total := 0
		for _, f := range fields {
			total += f.Width()
		}
		return total
	}
	if pat := d.SyntaxOperand(operandNum); pat != "" {
		if m := widthSuffix.FindStringSubmatch(pat); m != nil {
			if w, err := strconv.Atoi(m[2]); err == nil {
				return w
			}
		}
	}
	if operandNum >= 1 && operandNum <= len(d.Slots) {
		return d.Slots[operandNum-1].Len
	}
	return 0
}

// Table is the full loaded instruction set, grouped by mnemonic.
type Table struct {
	byMnemonic map[string][]*Definition
	all        []*Definition
}

func newTable() *Table {
	return &Table{byMnemonic: make(map[string][]*Definition)}
}

func (t *Table) add(d *Definition) {
	t.byMnemonic[d.Mnemonic] = append(t.byMnemonic[d.Mnemonic], d)
	t.all = append(t.all, d)
}

// Variants returns every encoding variant of a mnemonic (case-insensitive).
func (t *Table) Variants(mnemonic string) []*Definition {
	return t.byMnemonic[strings.ToUpper(mnemonic)]
}

// Mnemonics returns every distinct mnemonic in the table.
func (t *Table) Mnemonics() []string {
	return lo.Keys(t.byMnemonic)
}

// All returns every loaded definition.
func (t *Table) All() []*Definition { return t.all }

// Count returns the total number of loaded instruction definitions.
func (t *Table) Count() int { return len(t.all) }

// MnemonicCount returns the number of distinct mnemonics.
func (t *Table) MnemonicCount() int { return len(t.byMnemonic) }

type jsonDocument struct {
	Instructions []rawRow `json:"instructions"`
}

// LoadJSON loads an instruction table from its JSON encoding:
// {"instructions": [{...}, ...]}.
func LoadJSON(r io.Reader) (*Table, error) {
	var doc jsonDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("instrtable: decoding JSON: %w", err)
	}
	t := newTable()
	for _, row := range doc.Instructions {
		def, err := row.toDefinition()
		if err != nil {
			return nil, err
		}
		t.add(def)
	}
	return t, nil
}

// LoadCSV loads an instruction table from its CSV encoding: a header row
// naming the same fields as the JSON form's object keys.
func LoadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("instrtable: decoding CSV: %w", err)
	}
	if len(records) == 0 {
		return newTable(), nil
	}
	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	get := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}
	getInt := func(row []string, name string) int {
		v := get(row, name)
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	}

	t := newTable()
	for _, row := range records[1:] {
		raw := rawRow{
			Opcode:       get(row, "opcode"),
			OpcodeSize:   getInt(row, "opcode_size"),
			Instruction:  get(row, "instruction"),
			LongName:     get(row, "long_name"),
			Syntax:       get(row, "syntax"),
			Reference:    get(row, "reference"),
			OperandCount: getInt(row, "operand_count"),
			Op1Pos:       getInt(row, "op1_pos"),
			Op1Len:       getInt(row, "op1_len"),
			Op2Pos:       getInt(row, "op2_pos"),
			Op2Len:       getInt(row, "op2_len"),
			Op3Pos:       getInt(row, "op3_pos"),
			Op3Len:       getInt(row, "op3_len"),
			Op4Pos:       getInt(row, "op4_pos"),
			Op4Len:       getInt(row, "op4_len"),
			Op5Pos:       getInt(row, "op5_pos"),
			Op5Len:       getInt(row, "op5_len"),
		}
		if raw.Instruction == "" {
			continue
		}
		def, err := raw.toDefinition()
		if err != nil {
			return nil, err
		}
		t.add(def)
	}
	return t, nil
}

// ApplyConfigFilters implements the "config filters" step of spec.md §4.5:
// force_32bit keeps only variants whose opcode is at least 32 bits wide;
// no_implicit drops variants whose syntax mentions the implicit A10/A15
// registers (stack pointer / return address), in any of their equivalent
// spellings.
func ApplyConfigFilters(variants []*Definition, force32bit, noImplicit bool) []*Definition {
	out := variants
	if force32bit {
		out = lo.Filter(out, func(d *Definition, _ int) bool { return d.OpcodeSize >= 32 })
	}
	if noImplicit {
		out = lo.Filter(out, func(d *Definition, _ int) bool {
			lower := strings.ToLower(d.Syntax)
			for _, implicit := range []string{"a[10]", "a[15]", "a10", "a15"} {
				if strings.Contains(lower, implicit) {
					return false
				}
			}
			return true
		})
	}
	return out
}
