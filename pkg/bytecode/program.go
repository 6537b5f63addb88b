package bytecode

import (
	"encoding/binary"
	"fmt"
)

// BytecodeVersion is the current program image format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// Magic bytes for program images: "TPBC" (TaPe ByteCode)
var BytecodeMagic = []byte{'T', 'P', 'B', 'C'}

// ProgramFlags contains compilation flags for a program.
type ProgramFlags uint16

const (
	// ProgramFlagDebug indicates a source map is present.
	ProgramFlagDebug ProgramFlags = 1 << 0
)

// Instruction is a single decoded VM instruction.
// Arg is the run count for OpAdd/OpSub/OpRight/OpLeft and the jump target
// for OpJumpZero/OpJumpNotZero. It is unused by the other opcodes.
type Instruction struct {
	Op  Opcode `cbor:"op"`
	Arg int    `cbor:"arg"`
}

func (in Instruction) String() string {
	if in.Op.HasArg() {
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	}
	return in.Op.String()
}

// SourceLocation maps an instruction to the source character that started it.
type SourceLocation struct {
	Offset uint32 `cbor:"offset"` // Byte offset in source (0-based)
	Line   uint32 `cbor:"line"`   // Source line number (1-based)
	Column uint32 `cbor:"column"` // Source column number (1-based)
}

// Program is a compiled instruction sequence. It is immutable once compiled.
type Program struct {
	Version      uint16        `cbor:"version"`
	Flags        ProgramFlags  `cbor:"flags"`
	Instructions []Instruction `cbor:"instructions"`

	// Debug information (present if ProgramFlagDebug is set), one entry per
	// instruction.
	SourceMap []SourceLocation `cbor:"source_map,omitempty"`
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Instructions)
}

// At returns the instruction at index i.
func (p *Program) At(i int) Instruction {
	return p.Instructions[i]
}

// Location returns the source location of instruction i.
// Returns the zero location if no source map is present.
func (p *Program) Location(i int) SourceLocation {
	if p.Flags&ProgramFlagDebug == 0 || i < 0 || i >= len(p.SourceMap) {
		return SourceLocation{}
	}
	return p.SourceMap[i]
}

// Validate checks that the program is fully resolved: no loop placeholders,
// every jump paired with its partner, and run counts in range.
func (p *Program) Validate() error {
	n := len(p.Instructions)
	if p.Flags&ProgramFlagDebug != 0 && len(p.SourceMap) != n {
		return fmt.Errorf("%w: source map has %d entries for %d instructions", ErrMalformedProgram, len(p.SourceMap), n)
	}
	for i, in := range p.Instructions {
		switch in.Op {
		case OpAdd, OpSub:
			if in.Arg < 0 || in.Arg > 255 {
				return fmt.Errorf("%w: %s count %d out of range at %d", ErrMalformedProgram, in.Op, in.Arg, i)
			}
		case OpRight, OpLeft:
			if in.Arg < 0 {
				return fmt.Errorf("%w: negative %s count at %d", ErrMalformedProgram, in.Op, i)
			}
		case OpJumpZero:
			j := in.Arg
			if j <= i || j >= n {
				return fmt.Errorf("%w: jump target %d invalid at %d", ErrMalformedProgram, j, i)
			}
			if partner := p.Instructions[j]; partner.Op != OpJumpNotZero || partner.Arg != i {
				return fmt.Errorf("%w: unpaired jump at %d", ErrMalformedProgram, i)
			}
		case OpJumpNotZero:
			j := in.Arg
			if j < 0 || j >= i {
				return fmt.Errorf("%w: jump target %d invalid at %d", ErrMalformedProgram, j, i)
			}
			if partner := p.Instructions[j]; partner.Op != OpJumpZero || partner.Arg != i {
				return fmt.Errorf("%w: unpaired jump at %d", ErrMalformedProgram, i)
			}
		case OpOutput, OpInput:
		case OpLoopStart:
			return fmt.Errorf("%w: unresolved loop start at %d", ErrMalformedProgram, i)
		default:
			return fmt.Errorf("%w: unknown opcode 0x%02X at %d", ErrMalformedProgram, byte(in.Op), i)
		}
	}
	return nil
}

// Serialize encodes the program to bytes for storage/transport.
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[count:4] [op:1 arg:4]...
//	[map_count:4] [offset:4 line:4 column:4]... (if ProgramFlagDebug)
func (p *Program) Serialize() ([]byte, error) {
	size := 12 + len(p.Instructions)*5
	if p.Flags&ProgramFlagDebug != 0 {
		size += 4 + len(p.SourceMap)*12
	}
	buf := make([]byte, 0, size)

	buf = append(buf, BytecodeMagic...)
	buf = binary.BigEndian.AppendUint16(buf, p.Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(p.Flags))

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Instructions)))
	for i, in := range p.Instructions {
		if in.Arg < 0 || int64(in.Arg) > int64(^uint32(0)) {
			return nil, fmt.Errorf("instruction %d: argument %d does not fit the image format", i, in.Arg)
		}
		buf = append(buf, byte(in.Op))
		buf = binary.BigEndian.AppendUint32(buf, uint32(in.Arg))
	}

	if p.Flags&ProgramFlagDebug != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.SourceMap)))
		for _, loc := range p.SourceMap {
			buf = binary.BigEndian.AppendUint32(buf, loc.Offset)
			buf = binary.BigEndian.AppendUint32(buf, loc.Line)
			buf = binary.BigEndian.AppendUint32(buf, loc.Column)
		}
	}

	return buf, nil
}

// Deserialize decodes a program from bytes and validates it.
func Deserialize(data []byte) (*Program, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("bytecode too short: need at least 12 bytes, got %d", len(data))
	}

	if string(data[0:4]) != string(BytecodeMagic) {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", BytecodeMagic, data[0:4])
	}

	p := &Program{
		Version: binary.BigEndian.Uint16(data[4:6]),
		Flags:   ProgramFlags(binary.BigEndian.Uint16(data[6:8])),
	}
	if p.Version > BytecodeVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", p.Version, BytecodeVersion)
	}

	count := binary.BigEndian.Uint32(data[8:12])
	pos := 12
	if uint64(len(data)-pos) < uint64(count)*5 {
		return nil, fmt.Errorf("unexpected end of bytecode reading %d instructions at pos %d", count, pos)
	}
	p.Instructions = make([]Instruction, count)
	for i := range p.Instructions {
		p.Instructions[i].Op = Opcode(data[pos])
		p.Instructions[i].Arg = int(binary.BigEndian.Uint32(data[pos+1:]))
		pos += 5
	}

	if p.Flags&ProgramFlagDebug != 0 {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("unexpected end of bytecode reading source map count")
		}
		mapLen := binary.BigEndian.Uint32(data[pos:])
		pos += 4
		if uint64(len(data)-pos) < uint64(mapLen)*12 {
			return nil, fmt.Errorf("unexpected end of bytecode reading %d source locations", mapLen)
		}
		p.SourceMap = make([]SourceLocation, mapLen)
		for i := range p.SourceMap {
			p.SourceMap[i].Offset = binary.BigEndian.Uint32(data[pos:])
			p.SourceMap[i].Line = binary.BigEndian.Uint32(data[pos+4:])
			p.SourceMap[i].Column = binary.BigEndian.Uint32(data[pos+8:])
			pos += 12
		}
	}

	if pos != len(data) {
		return nil, fmt.Errorf("trailing data after program: %d bytes", len(data)-pos)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
