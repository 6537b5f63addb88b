package wire

import (
	"context"
	"errors"

	"github.com/chazu/tapevm/pkg/bytecode"
)

// Diagnostic describes a compile error at a source position.
type Diagnostic struct {
	Kind    string `cbor:"kind"` // "unopened-loop" or "unclosed-loop"
	Message string `cbor:"message"`
	Offset  int    `cbor:"offset"`
	Line    int    `cbor:"line"`
	Column  int    `cbor:"column"`
}

// CompileRequest asks for source to be compiled.
type CompileRequest struct {
	Source string `cbor:"source"`
}

// CompileResponse carries the compiled program or a diagnostic.
type CompileResponse struct {
	Program     *bytecode.Program `cbor:"program,omitempty"`
	Hash        string            `cbor:"hash"`
	Cached      bool              `cbor:"cached"`
	Diagnostics []Diagnostic      `cbor:"diagnostics,omitempty"`
}

// Validate checks the carried program, if any.
func (r *CompileResponse) Validate() error {
	if r.Program == nil {
		return nil
	}
	return r.Program.Validate()
}

// CheckRequest asks for source to be checked without running it.
type CheckRequest struct {
	Source string `cbor:"source"`
}

// CheckResponse reports whether source compiles.
type CheckResponse struct {
	Valid       bool         `cbor:"valid"`
	Diagnostics []Diagnostic `cbor:"diagnostics,omitempty"`
}

// RunRequest asks for source to be compiled and executed against Input.
// Zero-valued limits fall back to the server's configuration.
type RunRequest struct {
	Source   string `cbor:"source"`
	Input    []byte `cbor:"input,omitempty"`
	TapeSize int    `cbor:"tape_size,omitempty"`
	EOF      string `cbor:"eof,omitempty"`
	MaxSteps int64  `cbor:"max_steps,omitempty"`
}

// RunResponse reports the outcome of a run. Output holds everything written
// before the run ended, including partial output of failed runs.
type RunResponse struct {
	RunID       string       `cbor:"run_id"`
	Output      []byte       `cbor:"output"`
	Steps       int64        `cbor:"steps"`
	Error       string       `cbor:"error,omitempty"`
	ErrorKind   string       `cbor:"error_kind,omitempty"`
	Diagnostics []Diagnostic `cbor:"diagnostics,omitempty"`
}

// Error kinds reported in RunResponse.ErrorKind and Diagnostic.Kind.
const (
	KindUnopenedLoop     = "unopened-loop"
	KindUnclosedLoop     = "unclosed-loop"
	KindNegativeIndex    = "negative-index"
	KindOutOfBounds      = "out-of-bounds"
	KindMissingInput     = "missing-input"
	KindMalformedProgram = "malformed-program"
	KindStepLimit        = "step-limit"
	KindCanceled         = "canceled"
	KindIO               = "io"
)

// ErrorKind classifies a compile or runtime error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, bytecode.ErrUnopenedLoop):
		return KindUnopenedLoop
	case errors.Is(err, bytecode.ErrUnclosedLoop):
		return KindUnclosedLoop
	case errors.Is(err, bytecode.ErrNegativeIndex):
		return KindNegativeIndex
	case errors.Is(err, bytecode.ErrOutOfBounds):
		return KindOutOfBounds
	case errors.Is(err, bytecode.ErrMissingInput):
		return KindMissingInput
	case errors.Is(err, bytecode.ErrMalformedProgram):
		return KindMalformedProgram
	case errors.Is(err, bytecode.ErrStepLimit):
		return KindStepLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindIO
	}
}

// DiagnosticsFor converts a compile error to diagnostics. Returns nil for
// other errors.
func DiagnosticsFor(err error) []Diagnostic {
	ce, ok := bytecode.IsCompileError(err)
	if !ok {
		return nil
	}
	return []Diagnostic{{
		Kind:    ErrorKind(ce),
		Message: ce.Error(),
		Offset:  ce.Offset,
		Line:    ce.Line,
		Column:  ce.Column,
	}}
}
