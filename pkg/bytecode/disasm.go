package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing for the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable listing with a name header.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Tape Bytecode v%d\n", p.Version))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", p.Flags))
	if p.Flags&ProgramFlagDebug != 0 {
		sb.WriteString(" [DEBUG]")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("; Instructions: %d\n\n", len(p.Instructions)))

	sb.WriteString("; Code:\n")
	for i := range p.Instructions {
		line := p.disassembleInstruction(i)
		if loc := p.Location(i); loc.Line > 0 {
			sb.WriteString(fmt.Sprintf("%04d  %-24s ; line %d:%d\n", i, line, loc.Line, loc.Column))
		} else {
			sb.WriteString(fmt.Sprintf("%04d  %s\n", i, line))
		}
	}

	return sb.String()
}

// disassembleInstruction formats instruction i.
func (p *Program) disassembleInstruction(i int) string {
	in := p.Instructions[i]
	switch in.Op {
	case OpAdd, OpSub, OpRight, OpLeft:
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	case OpJumpZero, OpJumpNotZero:
		return fmt.Sprintf("%s -> %04d", in.Op, in.Arg)
	default:
		return in.Op.String()
	}
}
