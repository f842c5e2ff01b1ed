// Package linker implements the multi-pass linker of spec.md §4.8: global
// symbol resolution across object files, iterative re-encoding/re-layout
// until instruction sizes stabilize (the chicken-and-egg problem of a
// branch's displacement depending on its own encoded size), label
// re-anchoring, and final image emission.
//
// Grounded on original_source/src/linker.py's Linker.link_files pipeline
// (_load_object_files / _resolve_symbols / _optimize_instruction_sizes /
// _final_reencoding_pass / _generate_output), generalized from that
// module's ad hoc tuple-based ObjectFile into objectfile.ObjectFile and
// from its from-scratch re-parsing of source text into the already-built
// operand/variant/encoder packages this module shares with
// internal/assembler.
package linker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/keurnel/tricore-asm/internal/encoder"
	"github.com/keurnel/tricore-asm/internal/instrtable"
	"github.com/keurnel/tricore-asm/internal/objectfile"
	"github.com/keurnel/tricore-asm/internal/operand"
	"github.com/keurnel/tricore-asm/internal/variant"
)

// maxIterations bounds the size/address convergence loop (spec.md §4.8
// Phase C), matching original_source/linker.py's own max_iterations.
const maxIterations = 10

var (
	ErrMultiplyDefined  = errors.New("linker: symbol multiply defined")
	ErrUnresolvedSymbol = errors.New("linker: unresolved external symbol")
	ErrAddressConflict  = errors.New("linker: instruction address conflict")
	ErrNoObjects        = errors.New("linker: no object files supplied")
)

// Diagnostic is one reported linking error, named after the object file
// (its source path from assembly) it concerns rather than a Claude-facing
// "file" label, since one link can combine many objects.
type Diagnostic struct {
	Code    string
	Object  string
	Line    uint32
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", d.Object, d.Line, d.Code, d.Message)
}

// ObjectInput pairs one decoded object file with the path it was loaded
// from (objectfile.ObjectFile.SourcePath is the assembler's original
// source file, not the .obj path, so both are kept).
type ObjectInput struct {
	Path   string
	Object *objectfile.ObjectFile
}

// Options configures one Link call.
type Options struct {
	Table     *instrtable.Table
	Variant   variant.Options
	BaseDir   string
	BigEndian bool
}

// Result is the outcome of a successful link: the final byte-addressed
// memory image, the fully resolved global label table, and any
// convergence/diagnostic notices that are not themselves fatal (an
// unconverged size warning still produces an image; a symbol-resolution
// failure does not, and is instead returned as an error alongside a nil
// Result.Image).
type Result struct {
	Image       map[uint32]byte
	Labels      map[string]uint32
	Diagnostics []Diagnostic
	Converged   bool
	Iterations  int
}

// Link combines inputs into one memory image. Phase A (decoding object
// files from disk) is the caller's job via objectfile.Decode; Link starts
// at Phase B.
func Link(inputs []ObjectInput, opts Options) (*Result, error) {
	if len(inputs) == 0 {
		return nil, ErrNoObjects
	}

	diags, err := resolveSymbols(inputs)
	if err != nil {
		return &Result{Diagnostics: diags}, err
	}

	converged, iterations := convergeLayout(inputs, opts)
	if !converged {
		diags = append(diags, Diagnostic{
			Code:    "SizeNotConverged",
			Message: fmt.Sprintf("instruction sizes did not stabilize after %d iteration(s)", maxIterations),
		})
	}

	// Phase D: one final re-encoding pass against the now-stable label map.
	finalLabels := collectLabels(inputs)
	for _, in := range inputs {
		if _, err := reencodeAndRelayout(in.Object, finalLabels, opts); err != nil {
			return nil, fmt.Errorf("linker: final re-encoding of %s: %w", in.Path, err)
		}
		for name, addr := range reanchorLabels(in.Object) {
			setLabelAddress(in.Object, name, addr)
		}
	}
	finalLabels = collectLabels(inputs)

	image, conflicts, err := emitImage(inputs, finalLabels, opts)
	if err != nil {
		return nil, err
	}
	diags = append(diags, conflicts...)
	if len(conflicts) > 0 {
		return &Result{Diagnostics: diags}, fmt.Errorf("%w: %d conflicting range(s)", ErrAddressConflict, len(conflicts))
	}

	return &Result{
		Image:       image,
		Labels:      finalLabels,
		Diagnostics: diags,
		Converged:   converged,
		Iterations:  iterations,
	}, nil
}

// ---------------------------------------------------------------------------
// Phase B — symbol resolution
// ---------------------------------------------------------------------------

// resolveSymbols unions every object's labels into one namespace, flags a
// name bound by more than one object, and flags any unresolved-symbol
// reference naming a symbol no object defines. Every diagnostic is
// collected before returning, per spec.md §4.8's "report every offending
// symbol, then abort" rule (a one-symbol-at-a-time abort would hide the
// rest from a single link invocation).
func resolveSymbols(inputs []ObjectInput) ([]Diagnostic, error) {
	var diags []Diagnostic
	definedIn := make(map[string]string)

	for _, in := range inputs {
		for _, l := range in.Object.Labels {
			if prev, ok := definedIn[l.Name]; ok {
				diags = append(diags, Diagnostic{
					Code: "MultiplyDefined", Object: in.Path, Line: l.Line,
					Message: fmt.Sprintf("symbol %q already defined in %s", l.Name, prev),
				})
				continue
			}
			definedIn[l.Name] = in.Path
		}
	}

	for _, in := range inputs {
		for _, sym := range in.Object.Symbols {
			if _, ok := definedIn[sym.Name]; !ok {
				diags = append(diags, Diagnostic{
					Code: "UnresolvedSymbol", Object: in.Path, Line: sym.Line,
					Message: fmt.Sprintf("undefined symbol %q", sym.Name),
				})
			}
		}
	}

	if len(diags) > 0 {
		sentinel := ErrUnresolvedSymbol
		for _, d := range diags {
			if d.Code == "MultiplyDefined" {
				sentinel = ErrMultiplyDefined
				break
			}
		}
		return diags, fmt.Errorf("%w: %d symbol resolution error(s)", sentinel, len(diags))
	}
	return nil, nil
}

func collectLabels(inputs []ObjectInput) map[string]uint32 {
	out := make(map[string]uint32)
	for _, in := range inputs {
		for _, l := range in.Object.Labels {
			out[l.Name] = l.Address
		}
	}
	return out
}

func setLabelAddress(obj *objectfile.ObjectFile, name string, addr uint32) {
	for i := range obj.Labels {
		if obj.Labels[i].Name == name {
			obj.Labels[i].Address = addr
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Phase C — size/address convergence
// ---------------------------------------------------------------------------

// convergeLayout repeats re-encode/re-layout/re-anchor across every object
// until an iteration changes no instruction's chosen size and at least two
// iterations have run (the first iteration's addresses still carry the
// assembler's single-file guesses about other objects' layout, so a stable
// first iteration isn't yet trustworthy — spec.md §4.8 Phase C,
// original_source/linker.py's own "iteration >= 2" rule).
func convergeLayout(inputs []ObjectInput, opts Options) (bool, int) {
	iteration := 0
	for iteration < maxIterations {
		iteration++

		labels := collectLabels(inputs)
		sizesChanged := false
		for _, in := range inputs {
			changed, err := reencodeAndRelayout(in.Object, labels, opts)
			if err != nil {
				// A mid-convergence encode failure just means this
				// object's instructions keep their previous encoding for
				// this iteration; Phase D's final pass surfaces any
				// genuinely fatal error.
				continue
			}
			if changed {
				sizesChanged = true
			}
		}

		for _, in := range inputs {
			for name, addr := range reanchorLabels(in.Object) {
				setLabelAddress(in.Object, name, addr)
			}
		}

		if !sizesChanged && iteration >= 2 {
			return true, iteration
		}
	}
	return false, iteration
}

var localRefPattern = regexp.MustCompile(`^[0-9]+[fb]$`)

// referencesLocalLabel reports whether any operand is a GCC-style local
// numeric label reference ("3f"/"3b"). Local labels are resolved entirely
// within one assembler run and never appear in the object file format
// (internal/assembler's own design), so the linker has no table to look
// them up in and must leave such an instruction's original encoding alone.
func referencesLocalLabel(ops []operand.Operand) bool {
	for _, op := range ops {
		if imm, ok := op.(operand.Imm); ok && localRefPattern.MatchString(imm.Raw) {
			return true
		}
	}
	return false
}

type labelResolver struct{ labels map[string]uint32 }

func (r labelResolver) ResolveLabel(name string) (int64, bool) {
	v, ok := r.labels[name]
	return int64(v), ok
}

func (r labelResolver) ResolveLocal(string, bool, int64) (int64, bool) {
	return 0, false
}

// reencodeAndRelayout re-runs variant selection and encoding for every
// non-data-directive instruction of obj against the current global label
// map, then recomputes addresses with computeLayout's gap-preserving rule.
// It reports whether any instruction's chosen size changed from this
// object's previous iteration.
func reencodeAndRelayout(obj *objectfile.ObjectFile, labels map[string]uint32, opts Options) (bool, error) {
	prevAddrs := make([]uint32, len(obj.Instructions))
	prevSizes := make([]uint32, len(obj.Instructions))
	for i, rec := range obj.Instructions {
		prevAddrs[i] = rec.Address
		prevSizes[i] = uint32(rec.SizeBytes)
	}

	resolver := labelResolver{labels: labels}
	changed := false

	for i := range obj.Instructions {
		rec := &obj.Instructions[i]
		if isDataDirectiveLine(rec.SourceText) {
			continue
		}

		stripped := stripLabelPrefix(rec.SourceText)
		mnemonic, operandsText := splitDirective(stripped)
		ops, err := operand.ParseList(operandsText)
		if err != nil {
			continue
		}
		if referencesLocalLabel(ops) {
			continue
		}
		def, err := variant.Select(opts.Table, mnemonic, ops, int64(rec.Address), resolver, opts.Variant)
		if err != nil {
			continue
		}
		word, err := encoder.Encode(def, ops, int64(rec.Address), resolver)
		if err != nil {
			continue
		}

		newSize := def.OpcodeSize / 8
		if uint32(newSize) != prevSizes[i] {
			changed = true
		}
		rec.SizeBytes = uint8(newSize)
		rec.OpcodeWord = word
		buf := make([]byte, newSize)
		full := make([]byte, 4)
		binary.LittleEndian.PutUint32(full, word)
		copy(buf, full[:min(newSize, 4)])
		rec.Data = buf
	}

	newSizes := make([]uint32, len(obj.Instructions))
	for i, rec := range obj.Instructions {
		newSizes[i] = uint32(rec.SizeBytes)
	}
	newAddrs := computeLayout(prevAddrs, prevSizes, newSizes)
	for i := range obj.Instructions {
		obj.Instructions[i].Address = newAddrs[i]
	}

	return changed, nil
}

// ---------------------------------------------------------------------------
// Phase E — image emission
// ---------------------------------------------------------------------------

type addressRange struct {
	object string
	line   uint32
	start  uint32
	end    uint32 // exclusive
}

// emitImage writes every instruction's bytes into a sparse byte-addressed
// map, re-synthesizing data-directive bytes (including a link-time INCBIN
// read) rather than trusting their placeholder Data. It also collects any
// overlapping address range as an AddressConflict diagnostic instead of
// silently letting the later write win, per spec.md §4.8 Phase E.
func emitImage(inputs []ObjectInput, labels map[string]uint32, opts Options) (map[uint32]byte, []Diagnostic, error) {
	image := make(map[uint32]byte)
	var ranges []addressRange
	var conflicts []Diagnostic

	for _, in := range inputs {
		constants := make(map[string]int64, len(in.Object.Constants))
		for _, c := range in.Object.Constants {
			constants[c.Name] = int64(c.Value)
		}
		resolver := linkResolver{labels: labels, constants: constants}

		for _, rec := range in.Object.Instructions {
			var data []byte
			if isDataDirectiveLine(rec.SourceText) {
				bytes, err := resynthesizeDataBytes(rec.SourceText, resolver, opts.BaseDir)
				if err != nil {
					return nil, nil, fmt.Errorf("linker: %s:%d: %w", in.Path, rec.SourceLine, err)
				}
				data = bytes
			} else {
				data = make([]byte, rec.SizeBytes)
				if opts.BigEndian {
					full := make([]byte, 4)
					binary.BigEndian.PutUint32(full, rec.OpcodeWord)
					copy(data, full[4-int(rec.SizeBytes):])
				} else {
					full := make([]byte, 4)
					binary.LittleEndian.PutUint32(full, rec.OpcodeWord)
					copy(data, full[:rec.SizeBytes])
				}
			}

			ranges = append(ranges, addressRange{
				object: in.Path, line: rec.SourceLine,
				start: rec.Address, end: rec.Address + uint32(len(data)),
			})
			for i, b := range data {
				image[rec.Address+uint32(i)] = b
			}
		}
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	for i := 1; i < len(ranges); i++ {
		if ranges[i].start < ranges[i-1].end {
			conflicts = append(conflicts, Diagnostic{
				Code: "AddressConflict", Object: ranges[i].object, Line: ranges[i].line,
				Message: fmt.Sprintf("range [0x%08X,0x%08X) overlaps %s:%d's [0x%08X,0x%08X)",
					ranges[i].start, ranges[i].end, ranges[i-1].object, ranges[i-1].line, ranges[i-1].start, ranges[i-1].end),
			})
		}
	}

	return image, conflicts, nil
}
