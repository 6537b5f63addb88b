package bytecode

import "fmt"

// DefaultTapeSize is the conventional tape length.
const DefaultTapeSize = 30000

// Tape is a fixed-size row of byte cells with a data pointer.
// Cells start at zero and arithmetic wraps modulo 256.
type Tape struct {
	cells []byte
	ptr   int
}

// NewTape creates a zeroed tape. A non-positive size selects DefaultTapeSize.
func NewTape(size int) *Tape {
	if size <= 0 {
		size = DefaultTapeSize
	}
	return &Tape{cells: make([]byte, size)}
}

// Len returns the number of cells.
func (t *Tape) Len() int {
	return len(t.cells)
}

// Pointer returns the data pointer.
func (t *Tape) Pointer() int {
	return t.ptr
}

// Get returns the current cell.
func (t *Tape) Get() byte {
	return t.cells[t.ptr]
}

// Set stores b in the current cell.
func (t *Tape) Set(b byte) {
	t.cells[t.ptr] = b
}

// Add adds n to the current cell with unsigned 8-bit wraparound.
func (t *Tape) Add(n byte) {
	t.cells[t.ptr] += n
}

// Sub subtracts n from the current cell with unsigned 8-bit wraparound.
func (t *Tape) Sub(n byte) {
	t.cells[t.ptr] -= n
}

// Right advances the pointer by n cells.
// The pointer is left unchanged if it would leave the tape.
func (t *Tape) Right(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative move count %d", ErrMalformedProgram, n)
	}
	if n > len(t.cells)-1-t.ptr {
		return ErrOutOfBounds
	}
	t.ptr += n
	return nil
}

// Left retreats the pointer by n cells.
// The pointer is left unchanged if it would go below cell 0.
func (t *Tape) Left(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative move count %d", ErrMalformedProgram, n)
	}
	if n > t.ptr {
		return ErrNegativeIndex
	}
	t.ptr -= n
	return nil
}

// Cell returns the value of cell i.
func (t *Tape) Cell(i int) byte {
	return t.cells[i]
}
