// Package encoder packs a parsed instruction's operands into its chosen
// instruction-table variant's bit fields, including split fields (spec.md
// §4.6), PC-relative label/local-label resolution, and the pessimistic
// forward-reference placeholder.
//
// Grounded on the teacher's encodeInstruction/encodeOperands/encodeRM/
// encodeRI family (v0/kasm/codegen_encode.go) — same "resolve operand to an
// int, range-check, mask-and-OR into the instruction word" shape,
// generalized from x86 ModR/M+REX packing to TriCore's (position,length)
// slot table and brace-delimited split windows. The split-field packing
// loop and local-label/forward-reference resolution are grounded on
// original_source/src/instruction_encoder.py's
// _encode_split_operand_instruction/parse_operand_value.
package encoder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/keurnel/tricore-asm/internal/instrtable"
	"github.com/keurnel/tricore-asm/internal/numparse"
	"github.com/keurnel/tricore-asm/internal/operand"
)

// ErrOperandOutOfRange is returned when a resolved operand value does not
// fit the bit width of its instruction-table slot.
var ErrOperandOutOfRange = errors.New("encoder: operand value out of range")

// ErrUnresolvedOperand is returned when an immediate operand is neither a
// numeric literal, a local numeric label, nor resolvable through Resolver.
var ErrUnresolvedOperand = errors.New("encoder: cannot resolve operand")

// forwardPlaceholder is the pessimistic forward-reference displacement
// original_source/instruction_encoder.py returns for an as-yet-unresolved
// label during the assembler's first pass, chosen to force selection of the
// widest instruction variant (spec.md §8 decision / SPEC_FULL.md §7).
const forwardPlaceholder = 254

// backwardPlaceholder is the matching placeholder for an unresolved
// backward local-label reference.
const backwardPlaceholder = -254

// Resolver supplies label and local-numeric-label addresses during
// encoding. Both methods return ok=false when the name/number is not yet
// known (first assembler pass, or a genuinely undefined reference that a
// later pass — or the linker — may still resolve).
type Resolver interface {
	ResolveLabel(name string) (address int64, ok bool)
	ResolveLocal(digits string, forward bool, currentAddress int64) (address int64, ok bool)
}

var localLabelPattern = regexp.MustCompile(`^(\d+)([fb])$`)
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ResolveValue turns a single operand into the signed integer value that
// gets packed into its instruction slot: a register number, or an
// immediate resolved from a literal, a local numeric label, or a named
// label (as a PC-relative byte displacement from currentAddress).
func ResolveValue(op operand.Operand, currentAddress int64, resolver Resolver) (int64, error) {
	switch v := op.(type) {
	case operand.Reg:
		return int64(v.Number), nil
	case operand.PostInc:
		return int64(v.Number), nil
	case operand.Imm:
		return resolveImmediate(v.Raw, currentAddress, resolver)
	default:
		return 0, fmt.Errorf("%w: unsupported operand %T", ErrUnresolvedOperand, op)
	}
}

func resolveImmediate(raw string, currentAddress int64, resolver Resolver) (int64, error) {
	if val, ok := resolveKnownImmediate(raw, currentAddress, resolver); ok {
		return val, nil
	}

	if m := localLabelPattern.FindStringSubmatch(raw); m != nil {
		if m[2] == "f" {
			return forwardPlaceholder, nil
		}
		return backwardPlaceholder, nil
	}

	if identifierPattern.MatchString(raw) {
		// Forward reference to a label the resolver doesn't know yet:
		// bias toward the widest variant by returning the maximum
		// single-byte positive displacement as a placeholder.
		return forwardPlaceholder, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnresolvedOperand, raw)
}

// resolveKnownImmediate resolves raw to a concrete value without ever
// falling back to a placeholder: ok is false whenever raw names something
// the resolver genuinely cannot answer yet. Unlike resolveImmediate, it
// never masks "still unresolved" behind a guessed displacement, which is
// what lets a caller distinguish the two cases instead of always assuming
// the worst.
func resolveKnownImmediate(raw string, currentAddress int64, resolver Resolver) (int64, bool) {
	if v, err := numparse.ParseInt(raw); err == nil {
		return v, true
	}

	if m := localLabelPattern.FindStringSubmatch(raw); m != nil {
		if resolver == nil {
			return 0, false
		}
		forward := m[2] == "f"
		addr, ok := resolver.ResolveLocal(m[1], forward, currentAddress)
		if !ok {
			return 0, false
		}
		return addr - currentAddress, true
	}

	if resolver != nil {
		if addr, ok := resolver.ResolveLabel(raw); ok {
			return addr - currentAddress, true
		}
	}

	return 0, false
}

// ResolveKnown is ResolveValue without the pessimistic forward-reference
// placeholder: it reports ok=false instead of guessing when op is a label
// or local reference the resolver cannot yet answer. Callers that need to
// tell "resolved to this value" apart from "still unresolved" — variant
// selection's range and bias checks, in particular — use this instead of
// ResolveValue.
func ResolveKnown(op operand.Operand, currentAddress int64, resolver Resolver) (int64, bool) {
	switch v := op.(type) {
	case operand.Reg:
		return int64(v.Number), true
	case operand.PostInc:
		return int64(v.Number), true
	case operand.Imm:
		return resolveKnownImmediate(v.Raw, currentAddress, resolver)
	default:
		return 0, false
	}
}

// Encode packs every operand of a chosen variant into its instruction word,
// returning the raw encoded value (callers serialize it to little-endian
// bytes sized by def.OpcodeSize/8).
func Encode(def *instrtable.Definition, ops []operand.Operand, currentAddress int64, resolver Resolver) (uint32, error) {
	value := def.Opcode

	for i := range ops {
		operandNum := i + 1
		fields := def.SplitFields(operandNum)
		if len(fields) > 0 {
			packed, err := encodeSplit(def, ops, i, operandNum, fields, currentAddress, resolver)
			if err != nil {
				return 0, err
			}
			value |= packed
			continue
		}

		raw, err := ResolveValue(ops[i], currentAddress, resolver)
		if err != nil {
			return 0, err
		}
		if scale := def.Scale(operandNum); scale > 1 {
			raw /= int64(scale)
		}

		slot := def.Slots[i]
		if slot.Len == 0 {
			continue
		}
		mask := uint32(1)<<uint(slot.Len) - 1
		if !fits(raw, slot.Len) {
			return 0, fmt.Errorf("%w: operand %d value %d does not fit %d-bit field of %s",
				ErrOperandOutOfRange, operandNum, raw, slot.Len, def.Mnemonic)
		}
		value |= (uint32(raw) & mask) << uint(slot.Pos)
	}
	return value, nil
}

// encodeSplit packs one split operand's windows into their own successive
// table slots — window i of a split operand at 1-based position N occupies
// slot N+i, per original_source's LEA split-field example (the windows of
// off16{[9:6][15:10][5:0]} land in op3/op4/op5, three successive slots
// starting at the operand's own position).
func encodeSplit(def *instrtable.Definition, ops []operand.Operand, opIdx, operandNum int, fields []instrtable.SplitField, currentAddress int64, resolver Resolver) (uint32, error) {
	raw, err := ResolveValue(ops[opIdx], currentAddress, resolver)
	if err != nil {
		return 0, err
	}
	if scale := def.Scale(operandNum); scale > 1 {
		raw /= int64(scale)
	}

	totalBits := 0
	for _, f := range fields {
		totalBits += f.Width()
	}
	if !fits(raw, totalBits) {
		return 0, fmt.Errorf("%w: split operand %d value %d does not fit %d-bit field of %s",
			ErrOperandOutOfRange, operandNum, raw, totalBits, def.Mnemonic)
	}

	var packed uint32
	for i, f := range fields {
		slotIdx := operandNum - 1 + i
		if slotIdx >= len(def.Slots) {
			return 0, fmt.Errorf("encoder: split operand %d of %s has more windows than table slots", operandNum, def.Mnemonic)
		}
		slot := def.Slots[slotIdx]
		windowMask := uint32(1)<<uint(f.Width()) - 1
		part := (uint32(raw) >> uint(f.Low)) & windowMask
		slotMask := uint32(1)<<uint(slot.Len) - 1
		packed |= (part & slotMask) << uint(slot.Pos)
	}
	return packed, nil
}

// fits reports whether a signed value is representable in n bits, either
// as a signed or an unsigned quantity — original_source accepts either, to
// tolerate tables that define an operand as an unsigned field even when
// callers pass a small negative displacement.
func fits(value int64, bits int) bool {
	if bits <= 0 || bits >= 64 {
		return true
	}
	maxSigned := int64(1)<<uint(bits-1) - 1
	minSigned := -(int64(1) << uint(bits-1))
	maxUnsigned := int64(1)<<uint(bits) - 1
	return (value >= minSigned && value <= maxSigned) || (value >= 0 && value <= maxUnsigned)
}

// FormatHex renders a 32-bit encoded instruction word as an "0x"-prefixed
// hex string, used by the assembler's preliminary listing output.
func FormatHex(value uint32, size int) string {
	digits := size / 4
	if digits <= 0 {
		digits = 8
	}
	return "0x" + padHex(strconv.FormatUint(uint64(value), 16), digits)
}

func padHex(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
