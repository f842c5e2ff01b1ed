package linker

import (
	"sort"
	"strings"

	"github.com/keurnel/tricore-asm/internal/objectfile"
)

// branchPrefixes are the mnemonic prefixes original_source/linker.py treats
// as "this instruction is a jump/call, not a function body" when deciding
// whether a label attached to it should really be attached to whatever
// comes after it (SPEC_FULL.md §8 decision 2).
var branchPrefixes = []string{"J", "CALL", "LOOP"}

func isBranchMnemonic(mnemonic string) bool {
	up := strings.ToUpper(mnemonic)
	for _, p := range branchPrefixes {
		if strings.HasPrefix(up, p) {
			return true
		}
	}
	return false
}

// mnemonicOf pulls the leading mnemonic token off an instruction's recorded
// source text, stripping a leading "label:" prefix if present (the same
// text assembler.Assembler.Assemble stores verbatim in SourceText).
func mnemonicOf(sourceText string) string {
	text := strings.TrimSpace(sourceText)
	if idx := strings.IndexByte(text, ':'); idx >= 0 {
		text = strings.TrimSpace(text[idx+1:])
	}
	if text == "" {
		return ""
	}
	fields := strings.Fields(text)
	return fields[0]
}

// reanchorLabels recomputes one object's label addresses against its
// current (just-relaid-out) instruction list, applying the
// branch-label-belongs-to-next-instruction heuristic. obj.Instructions is
// assumed to already carry this iteration's addresses, in ascending
// source-line order, as assembler.Assemble emits them.
func reanchorLabels(obj *objectfile.ObjectFile) map[string]uint32 {
	constants := make(map[string]bool, len(obj.Constants))
	for _, c := range obj.Constants {
		constants[c.Name] = true
	}

	labels := append([]objectfile.LabelRecord(nil), obj.Labels...)
	sort.Slice(labels, func(i, j int) bool { return labels[i].Line < labels[j].Line })

	instructions := obj.Instructions

	result := make(map[string]uint32, len(labels))
	for i, label := range labels {
		ownerIdx := sort.Search(len(instructions), func(k int) bool {
			return instructions[k].SourceLine >= label.Line
		})
		if ownerIdx >= len(instructions) {
			// Trailing label with no statement after it anywhere in the
			// object (e.g. an end-of-file marker): nothing to re-anchor to.
			result[label.Name] = label.Address
			continue
		}

		isFirstLabel := i == 0
		mnemonic := mnemonicOf(instructions[ownerIdx].SourceText)
		if isBranchMnemonic(mnemonic) && !constants[label.Name] && !isFirstLabel && ownerIdx+1 < len(instructions) {
			result[label.Name] = instructions[ownerIdx+1].Address
			continue
		}
		result[label.Name] = instructions[ownerIdx].Address
	}
	return result
}
