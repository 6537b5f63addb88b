package bytecode

import "fmt"

// Opcode represents a VM instruction.
type Opcode byte

const (
	// ========================================================================
	// Cell arithmetic (0x00-0x0F)
	// ========================================================================

	OpAdd Opcode = 0x01 // Add arg to current cell, wrapping: OpAdd <count:0-255>
	OpSub Opcode = 0x02 // Subtract arg from current cell, wrapping: OpSub <count:0-255>

	// ========================================================================
	// Pointer movement (0x10-0x1F)
	// ========================================================================

	OpRight Opcode = 0x10 // Advance data pointer: OpRight <count>
	OpLeft  Opcode = 0x11 // Retreat data pointer: OpLeft <count>

	// ========================================================================
	// Control flow (0x20-0x2F)
	// ========================================================================

	OpJumpZero    Opcode = 0x20 // Jump to target if current cell is 0: OpJumpZero <target>
	OpJumpNotZero Opcode = 0x21 // Jump to target if current cell is not 0: OpJumpNotZero <target>
	OpLoopStart   Opcode = 0x2F // Unresolved loop placeholder, compiler-internal only

	// ========================================================================
	// I/O (0x30-0x3F)
	// ========================================================================

	OpOutput Opcode = 0x30 // Write current cell to the output port
	OpInput  Opcode = 0x31 // Read one byte from the input port into current cell
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name   string // Human-readable mnemonic
	Symbol byte   // Source character that produces it (0 if none)
	HasArg bool   // Whether Instruction.Arg is meaningful
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Arithmetic
	OpAdd: {"ADD", '+', true},
	OpSub: {"SUB", '-', true},

	// Movement
	OpRight: {"RIGHT", '>', true},
	OpLeft:  {"LEFT", '<', true},

	// Control flow
	OpJumpZero:    {"JUMP_ZERO", '[', true},
	OpJumpNotZero: {"JUMP_NOT_ZERO", ']', true},
	OpLoopStart:   {"LOOP_START", 0, false},

	// I/O
	OpOutput: {"OUTPUT", '.', false},
	OpInput:  {"INPUT", ',', false},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// HasArg reports whether the opcode uses its instruction argument.
func (op Opcode) HasArg() bool {
	return GetOpcodeInfo(op).HasArg
}

// IsJump returns true if this opcode is a resolved jump instruction.
func (op Opcode) IsJump() bool {
	return op == OpJumpZero || op == OpJumpNotZero
}

// IsRun returns true for opcodes produced by run-length encoding.
func (op Opcode) IsRun() bool {
	return op == OpAdd || op == OpSub || op == OpRight || op == OpLeft
}

// IsValid returns true if the opcode may appear in a compiled program.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok && op != OpLoopStart
}

// runOpcode maps a run-length source symbol to its opcode.
func runOpcode(ch byte) (Opcode, bool) {
	switch ch {
	case '+':
		return OpAdd, true
	case '-':
		return OpSub, true
	case '>':
		return OpRight, true
	case '<':
		return OpLeft, true
	}
	return 0, false
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
