// Package bytecode compiles and runs programs for the eight-symbol tape
// language (+ - < > [ ] . ,) on a small byte-code virtual machine.
//
// The pipeline has two stages with no shared state between them:
//
//   - Compiler: scans source text, ignores every character outside the
//     operator alphabet, collapses runs of + - < > into single counted
//     instructions and resolves [ ] pairs into jump targets by patching
//     placeholders recorded on a loop stack.
//
//   - VM: runs the resulting Program with a fetch-decode-execute loop over a
//     fixed-size tape of byte cells. Cell arithmetic wraps modulo 256. Moving
//     the data pointer outside the tape is fatal.
//
// # Programs
//
// A Program is an ordered list of Instructions. Once compiled it is never
// modified. Every JumpZero at index i with target j is paired with a
// JumpNotZero at index j with target i, and j > i. Programs can be
// serialized to the "TPBC" binary image format (TaPe ByteCode) for caching
// and transport; Deserialize re-checks the pairing invariant.
//
// # I/O
//
// The VM talks to the outside world through a Port, which is simply an
// io.ByteReader plus an io.ByteWriter. Reading io.EOF means end of input.
// NewStreamPort binds a Port to process streams and BufferPort binds one to
// memory.
//
// # Errors
//
// Compile errors are *CompileError values wrapping ErrUnopenedLoop or
// ErrUnclosedLoop. Runtime errors are *RuntimeError values wrapping
// ErrNegativeIndex, ErrOutOfBounds, ErrMissingInput, ErrMalformedProgram,
// ErrStepLimit or an I/O error from the Port. All runtime errors abort the
// run; the tape is discarded.
package bytecode
