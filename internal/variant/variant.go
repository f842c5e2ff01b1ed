// Package variant selects the best-matching instruction-table row for a
// parsed instruction: the six-step algorithm of spec.md §4.5 (arity filter,
// config filters, type compatibility, fixed-register-specificity scoring,
// range-based size selection, fallback).
//
// Grounded on original_source/src/instruction_loader.py's
// find_instruction/_find_best_variant_by_operand_range family, and on the
// teacher's much simpler Instruction.FindVariant (v0/internal/architecture/
// instruction.go) — same "iterate candidate variants, compare operand
// slices" shape, generalized here to register-class plus fixed-register
// plus value-range matching instead of a flat string-equality compare.
package variant

import (
	"errors"
	"fmt"

	"github.com/keurnel/tricore-asm/internal/encoder"
	"github.com/keurnel/tricore-asm/internal/instrtable"
	"github.com/keurnel/tricore-asm/internal/operand"
	"github.com/samber/lo"
)

// ErrNoVariant is returned when no instruction-table row matches the given
// mnemonic and operand list under any step of the selection algorithm.
var ErrNoVariant = errors.New("variant: no matching instruction variant")

// Options carries the config-derived filters from spec.md §4.5 step 2.
type Options struct {
	Force32Bit bool
	NoImplicit bool
}

// Select runs the six-step algorithm against every variant of mnemonic in
// table and returns the chosen Definition. currentAddress and resolver feed
// Step 5's range/bias check: passing a resolver that already knows a label's
// address (the assembler's pass-2 label table, or the linker's current
// global label map during size-and-address convergence) lets a named-label
// operand narrow to the smallest variant its now-known displacement fits,
// instead of always biasing toward the widest one. A nil resolver reproduces
// the original label-blind behavior, which is what the assembler's first
// pass still wants for forward references.
func Select(table *instrtable.Table, mnemonic string, ops []operand.Operand, currentAddress int64, resolver encoder.Resolver, opts Options) (*instrtable.Definition, error) {
	candidates := table.Variants(mnemonic)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: unknown mnemonic %q", ErrNoVariant, mnemonic)
	}

	// Step 1: arity filter.
	candidates = lo.Filter(candidates, func(d *instrtable.Definition, _ int) bool {
		return d.OperandCount == len(ops)
	})
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s takes no variant with %d operand(s)", ErrNoVariant, mnemonic, len(ops))
	}

	// Step 2: config filters (force_32bit / no_implicit).
	candidates = instrtable.ApplyConfigFilters(candidates, opts.Force32Bit, opts.NoImplicit)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s has no variant surviving config filters", ErrNoVariant, mnemonic)
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	// Step 3: type compatibility.
	typeMatched := lo.Filter(candidates, func(d *instrtable.Definition, _ int) bool {
		return typesCompatible(d, ops)
	})
	if len(typeMatched) > 0 {
		candidates = typeMatched
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	// Step 4: fixed-register-specificity. Candidates whose syntax pins an
	// operand to a specific register number are rejected outright when the
	// actual operand names a different number; among survivors, an operand
	// list that exactly matches every fixed-register constraint is strictly
	// preferred to one that doesn't.
	specificityOK := lo.Filter(candidates, func(d *instrtable.Definition, _ int) bool {
		return fixedRegistersMatch(d, ops)
	})
	if len(specificityOK) > 0 {
		candidates = specificityOK
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if best := lo.MaxBy(candidates, func(a, b *instrtable.Definition) bool { return specificityScore(a) > specificityScore(b) }); specificityScore(best) > 0 {
		sameScore := lo.Filter(candidates, func(d *instrtable.Definition, _ int) bool {
			return specificityScore(d) == specificityScore(best)
		})
		if len(sameScore) == 1 {
			return sameScore[0], nil
		}
		candidates = sameScore
	}

	// Step 5: range-based size selection. Scale each immediate operand by
	// its variant's /2 or /4 factor (and implicit word-aligned-offset
	// scaling) before checking it fits the variant's bit width. A named
	// label or local label resolves against resolver/currentAddress the
	// same way encoding eventually will; only a label the resolver
	// genuinely cannot answer yet biases toward the widest surviving
	// variant, so a forward branch narrows to 16 bits as soon as the
	// assembler's pass 2 or the linker's convergence loop learns its
	// target address.
	fitting := lo.Filter(candidates, func(d *instrtable.Definition, _ int) bool { return valuesFit(d, ops, currentAddress, resolver) })
	if len(fitting) == 0 {
		fitting = candidates
	}
	if hasUnresolvedLabel(ops, currentAddress, resolver) {
		return widest(fitting), nil
	}
	return narrowest(fitting), nil
}

// typesCompatible implements spec.md §4.5 step 3: a candidate's syntax
// operand types must equal the actual operand types slot-for-slot — a
// syntax immediate slot (const4, off10, disp24, ...) only matches an actual
// immediate (a literal, a label, or a local numeric label all classify as
// imm at parse time), never a register, and vice versa.
func typesCompatible(d *instrtable.Definition, ops []operand.Operand) bool {
	types := d.SyntaxOperandTypes()
	if len(types) != len(ops) {
		return false
	}
	for i, want := range types {
		if ops[i].Type() != want {
			return false
		}
	}
	return true
}

func fixedRegistersMatch(d *instrtable.Definition, ops []operand.Operand) bool {
	for i, op := range ops {
		class, num, ok := d.FixedRegister(i + 1)
		if !ok {
			continue
		}
		reg, isReg := actualRegister(op)
		if !isReg {
			continue
		}
		if reg.class != class || reg.number != num {
			return false
		}
	}
	return true
}

func specificityScore(d *instrtable.Definition) int {
	score := 0
	for i := 1; i <= 5; i++ {
		if _, _, ok := d.FixedRegister(i); ok {
			score += 50
		}
	}
	return score
}

type registerRef struct {
	class  operand.Class
	number int
}

func actualRegister(op operand.Operand) (registerRef, bool) {
	switch v := op.(type) {
	case operand.Reg:
		return registerRef{v.Class, v.Number}, true
	case operand.PostInc:
		return registerRef{v.Class, v.Number}, true
	default:
		return registerRef{}, false
	}
}

// valuesFit reports whether every immediate operand, after applying this
// variant's implicit scaling, fits the variant's bit width for that slot.
// Register operands and labels resolver/currentAddress cannot yet answer
// are not range-checked here.
func valuesFit(d *instrtable.Definition, ops []operand.Operand, currentAddress int64, resolver encoder.Resolver) bool {
	for i, op := range ops {
		imm, ok := op.(operand.Imm)
		if !ok {
			continue
		}
		val, fitOK := encoder.ResolveKnown(imm, currentAddress, resolver)
		if !fitOK {
			// Label or named constant not yet known: not range-checked
			// at selection time.
			continue
		}
		width := d.OperandBitWidth(i + 1)
		if width <= 0 {
			continue
		}
		if scale := d.Scale(i + 1); scale > 1 {
			val /= int64(scale)
		}
		maxSigned := int64(1)<<(uint(width)-1) - 1
		minSigned := -(int64(1) << (uint(width) - 1))
		maxUnsigned := int64(1)<<uint(width) - 1
		if !((val >= minSigned && val <= maxSigned) || (val >= 0 && val <= maxUnsigned)) {
			return false
		}
	}
	return true
}

func hasUnresolvedLabel(ops []operand.Operand, currentAddress int64, resolver encoder.Resolver) bool {
	for _, op := range ops {
		imm, ok := op.(operand.Imm)
		if !ok {
			continue
		}
		if _, fitOK := encoder.ResolveKnown(imm, currentAddress, resolver); !fitOK {
			return true
		}
	}
	return false
}

func narrowest(defs []*instrtable.Definition) *instrtable.Definition {
	return lo.MinBy(defs, func(a, b *instrtable.Definition) bool { return a.OpcodeSize < b.OpcodeSize })
}

func widest(defs []*instrtable.Definition) *instrtable.Definition {
	return lo.MaxBy(defs, func(a, b *instrtable.Definition) bool { return a.OpcodeSize > b.OpcodeSize })
}
