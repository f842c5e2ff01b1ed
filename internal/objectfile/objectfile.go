// Package objectfile encodes and decodes the relocatable object format
// (spec.md §6.1): magic "TOBJ", version 0x0001, a source path, and four
// record sections (instructions, labels, symbol references, constants),
// all little-endian with length-prefixed variable fields.
//
// Grounded on the teacher's binary.Write/binary.Read usage in
// v0/kasm/codegen_encode.go and on the length-prefixed record shape of
// db47h-ngaro/vm/image.go's Load/Save pair and
// ProjectSerenity-firefly/tools/ruse/binary/elf/elf.go's encode64 (explicit
// field-by-field binary.Write calls rather than a single struct blit, since
// this format's records carry variable-length strings).
package objectfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Magic is the 4-byte object-file signature.
var Magic = [4]byte{'T', 'O', 'B', 'J'}

// Version is the only object-file format version this package emits and
// accepts.
const Version uint16 = 0x0001

// ErrBadMagic is returned when a file does not start with Magic.
var ErrBadMagic = errors.New("objectfile: bad magic")

// ErrUnsupportedVersion is returned when a file's version is not Version.
var ErrUnsupportedVersion = errors.New("objectfile: unsupported version")

// InstructionRecord is one assembled line: its final (or, in a preliminary
// object, best-guess) address, the low 32 bits of its encoded word, its
// size in bytes, and its originating source line/text for re-synthesis.
//
// Data carries the full encoded byte run for the line. For an ordinary
// instruction this is redundant with OpcodeWord (the low SizeBytes bytes of
// OpcodeWord, little-endian) and exists mainly so a decoder never needs to
// special-case data directives; for a DT/DO/DY/DZ-class directive wider
// than 4 bytes, Data is the only complete record — SPEC_FULL.md §8
// decision 3. An INCBIN record's Data is a zero-filled placeholder of the
// right size; the linker reads the file itself.
type InstructionRecord struct {
	Address    uint32
	OpcodeWord uint32
	SizeBytes  uint8
	SourceLine uint32
	SourceText string
	Data       []byte
}

// LabelRecord is one label binding: its name, resolved address, and
// defining source line.
type LabelRecord struct {
	Name    string
	Address uint32
	Line    uint32
}

// SymbolRecord is one as-yet-unresolved symbol reference the linker must
// bind: its name, the placeholder address used in its place during
// assembly, and its referencing source line.
type SymbolRecord struct {
	Name               string
	PlaceholderAddress uint32
	Line               uint32
}

// ConstantRecord is one EQU binding: its name and signed 32-bit value.
type ConstantRecord struct {
	Name  string
	Value int32
}

// ObjectFile is one assembled translation unit, ready to be linked.
type ObjectFile struct {
	SourcePath   string
	Instructions []InstructionRecord
	Labels       []LabelRecord
	Symbols      []SymbolRecord
	Constants    []ConstantRecord
}

// Encode writes the object file in its binary format to w. Per spec.md
// §4.9's determinism requirement, labels and constants are written in
// lexicographic order by name (instructions are already caller-ordered by
// source line and are written as given).
func Encode(w io.Writer, obj *ObjectFile) error {
	bw := &errWriter{w: w}

	bw.write(Magic)
	bw.write(Version)
	bw.writeString16(obj.SourcePath)

	bw.write(uint32(len(obj.Instructions)))
	for _, rec := range obj.Instructions {
		bw.write(rec.Address)
		bw.write(rec.OpcodeWord)
		bw.write(rec.SizeBytes)
		bw.write(rec.SourceLine)
		bw.writeString16(rec.SourceText)
		bw.write(uint32(len(rec.Data)))
		bw.writeRaw(rec.Data)
	}

	labels := append([]LabelRecord(nil), obj.Labels...)
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	bw.write(uint32(len(labels)))
	for _, rec := range labels {
		bw.writeString16(rec.Name)
		bw.write(rec.Address)
		bw.write(rec.Line)
	}

	bw.write(uint32(len(obj.Symbols)))
	for _, rec := range obj.Symbols {
		bw.writeString16(rec.Name)
		bw.write(rec.PlaceholderAddress)
		bw.write(rec.Line)
	}

	constants := append([]ConstantRecord(nil), obj.Constants...)
	sort.Slice(constants, func(i, j int) bool { return constants[i].Name < constants[j].Name })
	bw.write(uint32(len(constants)))
	for _, rec := range constants {
		bw.writeString16(rec.Name)
		bw.write(rec.Value)
	}

	return bw.err
}

// Decode reads an object file previously written by Encode.
func Decode(r io.Reader) (*ObjectFile, error) {
	br := &errReader{r: r}

	var magic [4]byte
	br.read(&magic)
	if br.err != nil {
		return nil, br.err
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: got %q", ErrBadMagic, magic)
	}

	var version uint16
	br.read(&version)
	if version != Version {
		return nil, fmt.Errorf("%w: %#04x", ErrUnsupportedVersion, version)
	}

	obj := &ObjectFile{}
	obj.SourcePath = br.readString16()

	var instrCount uint32
	br.read(&instrCount)
	obj.Instructions = make([]InstructionRecord, 0, instrCount)
	for i := uint32(0); i < instrCount && br.err == nil; i++ {
		var rec InstructionRecord
		br.read(&rec.Address)
		br.read(&rec.OpcodeWord)
		br.read(&rec.SizeBytes)
		br.read(&rec.SourceLine)
		rec.SourceText = br.readString16()
		var dataLen uint32
		br.read(&dataLen)
		rec.Data = br.readBytes(dataLen)
		obj.Instructions = append(obj.Instructions, rec)
	}

	var labelCount uint32
	br.read(&labelCount)
	obj.Labels = make([]LabelRecord, 0, labelCount)
	for i := uint32(0); i < labelCount && br.err == nil; i++ {
		var rec LabelRecord
		rec.Name = br.readString16()
		br.read(&rec.Address)
		br.read(&rec.Line)
		obj.Labels = append(obj.Labels, rec)
	}

	var symCount uint32
	br.read(&symCount)
	obj.Symbols = make([]SymbolRecord, 0, symCount)
	for i := uint32(0); i < symCount && br.err == nil; i++ {
		var rec SymbolRecord
		rec.Name = br.readString16()
		br.read(&rec.PlaceholderAddress)
		br.read(&rec.Line)
		obj.Symbols = append(obj.Symbols, rec)
	}

	var constCount uint32
	br.read(&constCount)
	obj.Constants = make([]ConstantRecord, 0, constCount)
	for i := uint32(0); i < constCount && br.err == nil; i++ {
		var rec ConstantRecord
		rec.Name = br.readString16()
		br.read(&rec.Value)
		obj.Constants = append(obj.Constants, rec)
	}

	if br.err != nil {
		return nil, br.err
	}
	return obj, nil
}

// errWriter accumulates the first error from a sequence of binary.Write
// calls so callers don't have to check after every field.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) write(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *errWriter) writeRaw(b []byte) {
	if e.err != nil || len(b) == 0 {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *errWriter) writeString16(s string) {
	e.write(uint16(len(s)))
	e.writeRaw([]byte(s))
}

// errReader mirrors errWriter for decoding.
type errReader struct {
	r   io.Reader
	err error
}

func (e *errReader) read(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Read(e.r, binary.LittleEndian, v)
}

func (e *errReader) readBytes(n uint32) []byte {
	if e.err != nil || n == 0 {
		return nil
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(e.r, buf)
	if err != nil {
		e.err = err
		return nil
	}
	return buf
}

func (e *errReader) readString16() string {
	var n uint16
	e.read(&n)
	b := e.readBytes(uint32(n))
	return string(b)
}

// Buffer is a convenience for round-tripping through memory (used by tests
// and by callers that want to checksum or size an object before writing it
// to disk).
func Buffer(obj *ObjectFile) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, obj); err != nil {
		return nil, err
	}
	return buf, nil
}
