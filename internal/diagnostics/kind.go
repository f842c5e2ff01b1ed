package diagnostics

// Kind is the closed error taxonomy spec.md §7 names. The assembler and
// linker record a diagnostic's code as a plain string: most of those codes
// are these names, but not all of them — the assembler also emits
// "UnresolvedValue", "InvalidCount", "UnresolvedOperand" and a catch-all
// "Error", and the linker reports non-convergence as "SizeNotConverged".
type Kind string

const (
	FileNotFound      Kind = "FileNotFound"
	InvalidNumber     Kind = "InvalidNumber"
	InvalidLabelName  Kind = "InvalidLabelName"
	InvalidOrg        Kind = "InvalidOrg"
	InvalidEqu        Kind = "InvalidEqu"
	DuplicateLabel    Kind = "DuplicateLabel"
	UnknownInstruction Kind = "UnknownInstruction"
	NoVariantMatches  Kind = "NoVariantMatches"
	OperandOutOfRange Kind = "OperandOutOfRange"
	BranchOutOfRange  Kind = "BranchOutOfRange"
	UnresolvedSymbol  Kind = "UnresolvedSymbol"
	MultiplyDefined   Kind = "MultiplyDefined"
	AddressConflict   Kind = "AddressConflict"
	ConvergenceFailed Kind = "ConvergenceFailed"
)

// Fatal reports whether a diagnostic of this kind stops its phase
// immediately rather than accumulating until phase end (spec.md §7's
// recovery column).
func (k Kind) Fatal() bool {
	switch k {
	case FileNotFound, AddressConflict:
		return true
	default:
		return false
	}
}

// Warning reports whether a diagnostic of this kind is advisory only and
// never fails its phase (spec.md §7: ConvergenceFailed "Warning only; emit
// with current best encoding").
func (k Kind) Warning() bool {
	return k == ConvergenceFailed
}
