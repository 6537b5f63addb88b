package bytecode

import (
	"errors"
	"fmt"
)

// Compile-time errors.
var (
	ErrUnopenedLoop = errors.New("unopened loop")
	ErrUnclosedLoop = errors.New("unclosed loop")
)

// Runtime errors.
var (
	ErrNegativeIndex    = errors.New("negative index")
	ErrOutOfBounds      = errors.New("pointer out of bounds")
	ErrMissingInput     = errors.New("missing input")
	ErrMalformedProgram = errors.New("malformed program")
	ErrStepLimit        = errors.New("step limit exceeded")
)

// CompileError reports malformed bracket nesting at a source position.
// Line and Column are 1-based; Offset is the 0-based byte offset.
type CompileError struct {
	Err    error
	Offset int
	Line   int
	Column int
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %v", e.Line, e.Column, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// RuntimeError reports a fatal condition raised while executing a program.
type RuntimeError struct {
	Err     error
	IP      int    // Instruction pointer at the failing instruction
	Op      Opcode // Failing instruction's opcode
	Pointer int    // Data pointer when the error was raised
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at instruction %d (%s, pointer=%d): %v", e.IP, e.Op, e.Pointer, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsCompileError checks if an error is a compile error and returns it.
func IsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
