// Package operand implements the tagged-union operand model and the
// operand tokenizer/normalizer/classifier described by spec.md §4.3 and the
// "Dynamic typing of operands" design note in spec.md §9.
//
// Generalized from the teacher's ast.Operand interface family
// (ast/operand_register.go, operand_memory.go, ...): a small closed set of
// concrete types implementing a marker interface, dispatched on with a type
// switch at call sites instead of re-inspecting operand text everywhere.
package operand

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Class identifies a TriCore register class.
type Class int

const (
	ClassNone Class = iota
	ClassD          // data register
	ClassA          // address register
	ClassE          // extended (register pair) register
	ClassP          // pointer register
)

func (c Class) String() string {
	switch c {
	case ClassD:
		return "reg_d"
	case ClassA:
		return "reg_a"
	case ClassE:
		return "reg_e"
	case ClassP:
		return "reg_p"
	default:
		return "imm"
	}
}

func classFromLetter(r byte) (Class, bool) {
	switch r {
	case 'd', 'D':
		return ClassD, true
	case 'a', 'A':
		return ClassA, true
	case 'e', 'E':
		return ClassE, true
	case 'p', 'P':
		return ClassP, true
	default:
		return ClassNone, false
	}
}

// Operand is the tagged union of every parsed-operand shape spec.md §4.3 and
// §9 describe: a bare register, a post-increment register, or an immediate
// (which may later turn out, at encode time, to be a numeric literal, a
// named label, or a local numeric label — that distinction is resolved by
// the encoder, not the parser, since classification only needs the leading
// letter).
type Operand interface {
	// Type returns the spec.md §4.3 classification: reg_d/reg_a/reg_e/reg_p/imm.
	Type() Class
	// Text returns the normalized textual form.
	Text() string
	isOperand()
}

// Reg is a plain register operand, e.g. "D4", normalized from any of the
// eight equivalent source spellings (d4, D4, d[4], D[4], [d4], [D4], [d[4]],
// [D[4]]).
type Reg struct {
	Class  Class
	Number int
}

func (r Reg) Type() Class   { return r.Class }
func (r Reg) Text() string  { return fmt.Sprintf("%s%d", classLetter(r.Class), r.Number) }
func (Reg) isOperand()      {}
func classLetter(c Class) string {
	switch c {
	case ClassD:
		return "D"
	case ClassA:
		return "A"
	case ClassE:
		return "E"
	case ClassP:
		return "P"
	default:
		return ""
	}
}

// PostInc is a post-increment memory operand, e.g. "[A10+]". Its text is
// preserved literally (including the brackets and trailing '+') because the
// encoder decides post-increment vs. pre-increment vs. plain addressing from
// the chosen instruction variant's own opcode bits, not from this string —
// see SPEC_FULL.md §8 decision 1.
type PostInc struct {
	Class  Class
	Number int
}

func (p PostInc) Type() Class  { return p.Class }
func (p PostInc) Text() string { return fmt.Sprintf("[%s%d+]", classLetter(p.Class), p.Number) }
func (PostInc) isOperand()     {}

// Imm is an immediate-class operand: a numeric literal, a named label, a
// local numeric label reference (e.g. "3f"/"3b"), or a named EQU constant.
// Which of those it is gets decided when the encoder resolves it to a value
// (spec.md §4.6) — at parse time all four are indistinguishable by the
// "first character isn't D/A/E/P" classification rule.
type Imm struct {
	Raw string
}

func (Imm) Type() Class    { return ClassNone }
func (i Imm) Text() string { return i.Raw }
func (Imm) isOperand()     {}

var (
	losPattern      = regexp.MustCompile(`(?i)^\[(.+)\]@los\(0x([0-9a-f]+)\)$`)
	postIncPattern  = regexp.MustCompile(`^\[(.+)\+\]$`)
	compoundPattern = regexp.MustCompile(`^\[([^\[\]]+)\](.+)$`)
	collapsePattern = regexp.MustCompile(`(?i)^([daep])\[(\d+)\]$`)
	regPattern      = regexp.MustCompile(`(?i)^([daep])(\d+)$`)
)

// ParseList tokenizes a comma-separated operand list (commas inside
// brackets are part of the operand, not separators) and normalizes and
// classifies every resulting token per spec.md §4.3. A single source token
// may expand into two Operand values (the "[reg]offset" compound form and
// the "@los(...)" address-offset rewrite both do this).
func ParseList(text string) ([]Operand, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	tokens := splitTopLevel(text)
	operands := make([]Operand, 0, len(tokens))
	for _, tok := range tokens {
		ops, err := parseToken(strings.TrimSpace(tok))
		if err != nil {
			return nil, err
		}
		operands = append(operands, ops...)
	}
	return operands, nil
}

// splitTopLevel splits on commas that are not nested inside '[' ... ']'.
func splitTopLevel(text string) []string {
	var tokens []string
	depth := 0
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				tokens = append(tokens, text[start:i])
				start = i + 1
			}
		}
	}
	tokens = append(tokens, text[start:])
	return tokens
}

func parseToken(tok string) ([]Operand, error) {
	if tok == "" {
		return nil, nil
	}

	// Address-offset rewrite: "[reg]@los(0xHHHHHHHH)" -> "[reg], 0xLLLL".
	if m := losPattern.FindStringSubmatch(tok); m != nil {
		full, err := strconv.ParseUint(m[2], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("operand: invalid @los() address in %q: %w", tok, err)
		}
		low := full & 0xFFFF
		regOp, err := parseToken("[" + m[1] + "]")
		if err != nil {
			return nil, err
		}
		immOp := Imm{Raw: fmt.Sprintf("0x%04X", low)}
		return append(regOp, immOp), nil
	}

	// Post-increment: "[reg+]" is preserved verbatim, classified by the
	// leading letter of its inner register text.
	if m := postIncPattern.FindStringSubmatch(tok); m != nil {
		inner := normalize(m[1])
		class, num, ok := extractReg(inner)
		if !ok {
			return nil, fmt.Errorf("operand: post-increment operand %q does not name a register", tok)
		}
		return []Operand{PostInc{Class: class, Number: num}}, nil
	}

	// Compound "[reg]offset" splits into two operands: the register and the
	// trailing offset text.
	if m := compoundPattern.FindStringSubmatch(tok); m != nil {
		regText := normalize(m[1])
		offsetText := strings.TrimSpace(m[2])
		regOp := classify(regText)
		return []Operand{regOp, Imm{Raw: offsetText}}, nil
	}

	return []Operand{classify(normalize(tok))}, nil
}

// normalize strips matched outer brackets repeatedly, then collapses the
// "letter[digits]" register-index form into "letterdigits" (spec.md §4.3).
func normalize(tok string) string {
	tok = strings.TrimSpace(tok)
	for len(tok) >= 2 && tok[0] == '[' && tok[len(tok)-1] == ']' {
		tok = strings.TrimSpace(tok[1 : len(tok)-1])
	}
	if m := collapsePattern.FindStringSubmatch(tok); m != nil {
		tok = m[1] + m[2]
	}
	return tok
}

// classify builds the final Operand from an already-normalized token.
func classify(tok string) Operand {
	if class, num, ok := extractReg(tok); ok {
		return Reg{Class: class, Number: num}
	}
	return Imm{Raw: tok}
}

// extractReg recognises a normalized "<letter><digits>" register token.
func extractReg(tok string) (Class, int, bool) {
	m := regPattern.FindStringSubmatch(tok)
	if m == nil {
		return ClassNone, 0, false
	}
	class, ok := classFromLetter(m[1][0])
	if !ok {
		return ClassNone, 0, false
	}
	num, err := strconv.Atoi(m[2])
	if err != nil {
		return ClassNone, 0, false
	}
	return class, num, true
}
