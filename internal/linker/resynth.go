package linker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/keurnel/tricore-asm/internal/directive"
)

// linkResolver exposes a stable global label/constant table to
// resynthesizeDataBytes, so a TIMES count or a reserve-directive size that
// refers to a cross-object label sees the same addresses the final
// re-encoding pass used.
type linkResolver struct {
	labels    map[string]uint32
	constants map[string]int64
}

func (r linkResolver) ResolveLabel(name string) (int64, bool) {
	v, ok := r.labels[name]
	return int64(v), ok
}

func (r linkResolver) ResolveConstant(name string) (int64, bool) {
	v, ok := r.constants[name]
	return v, ok
}

var labelPrefixPattern = regexp.MustCompile(`^\s*[A-Za-z0-9_.]+\s*:\s*`)

// stripLabelPrefix removes a leading "label:" from one recorded source
// line, the same shape assembler.Assemble stores verbatim in
// InstructionRecord.SourceText.
func stripLabelPrefix(text string) string {
	return labelPrefixPattern.ReplaceAllString(text, "")
}

// splitDirective pulls the directive mnemonic and its operand text off a
// stripped source line, duplicating assembler.go's splitMnemonic rather
// than importing it: the two packages parse the same grammar for different
// reasons (assembly-time sizing/encoding vs. link-time re-synthesis), the
// same duplication original_source keeps between assembler.py and
// linker.py.
func splitDirective(text string) (string, string) {
	text = strings.TrimSpace(text)
	idx := strings.IndexAny(text, " \t")
	if idx < 0 {
		return strings.ToUpper(text), ""
	}
	return strings.ToUpper(text[:idx]), strings.TrimSpace(text[idx+1:])
}

// resynthesizeDataBytes rebuilds one data-directive record's bytes from its
// recorded source text at link time (spec.md §4.8 Phase E). This is the
// only path that ever reads an INCBIN file's actual contents — the
// assembler only ever recorded its size (SPEC_FULL.md §8 decision 3) — and
// the only path that expands TIMES's repetition, since the object file
// stores a TIMES directive as a single record sized for all repetitions.
func resynthesizeDataBytes(sourceText string, resolver directive.Resolver, baseDir string) ([]byte, error) {
	stripped := stripLabelPrefix(sourceText)
	mnemonic, operandsText := splitDirective(stripped)

	switch mnemonic {
	case "TIMES":
		t, err := directive.ParseTimes("TIMES "+operandsText, resolver)
		if err != nil {
			return nil, err
		}
		innerBytes, err := resynthesizeDataBytes(t.Rest, resolver, baseDir)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(innerBytes)*int(t.Count))
		for i := int64(0); i < t.Count; i++ {
			out = append(out, innerBytes...)
		}
		return out, nil

	case "INCBIN":
		inc, err := directive.ParseIncbin(operandsText, resolver)
		if err != nil {
			return nil, err
		}
		return directive.ReadIncbin(inc, baseDir)

	default:
		if _, ok := directive.DataSizes[mnemonic]; ok {
			values, err := directive.ParseDataList(operandsText, resolver)
			if err != nil {
				return nil, err
			}
			return directive.EncodeValues(mnemonic, values, false)
		}
		if _, ok := directive.ReserveSizes[mnemonic]; ok {
			size, err := directive.CalculateReserveSize(mnemonic, operandsText, resolver)
			if err != nil {
				return nil, err
			}
			return make([]byte, size), nil
		}
		return nil, fmt.Errorf("linker: unknown directive %q in %q", mnemonic, sourceText)
	}
}

// isDataDirectiveLine reports whether a recorded instruction's source text
// is a data directive (DB/DW/.../TIMES/INCBIN/RESB/...) rather than a real
// TriCore instruction, so the final emission pass knows whether to trust
// OpcodeWord or to re-synthesize Data.
func isDataDirectiveLine(sourceText string) bool {
	mnemonic, _ := splitDirective(stripLabelPrefix(sourceText))
	return directive.IsDirective(mnemonic)
}
