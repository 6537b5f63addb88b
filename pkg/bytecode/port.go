package bytecode

import (
	"bufio"
	"bytes"
	"io"
)

// Port is the VM's I/O collaborator. ReadByte returning io.EOF signals
// end of input.
type Port interface {
	io.ByteReader
	io.ByteWriter
}

// Flusher is implemented by ports that buffer output. The VM flushes such
// ports when a run ends, successfully or not.
type Flusher interface {
	Flush() error
}

// StreamPort binds a Port to a reader and writer, typically the process
// standard streams.
type StreamPort struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewStreamPort wraps r and w in buffers.
func NewStreamPort(r io.Reader, w io.Writer) *StreamPort {
	return &StreamPort{r: bufio.NewReader(r), w: bufio.NewWriter(w)}
}

// ReadByte flushes pending output, so prompts appear before blocking on
// input, then reads one byte.
func (p *StreamPort) ReadByte() (byte, error) {
	if err := p.w.Flush(); err != nil {
		return 0, err
	}
	return p.r.ReadByte()
}

func (p *StreamPort) WriteByte(b byte) error {
	return p.w.WriteByte(b)
}

func (p *StreamPort) Flush() error {
	return p.w.Flush()
}

// BufferPort is an in-memory Port.
type BufferPort struct {
	in  *bytes.Reader
	out bytes.Buffer
}

// NewBufferPort creates a port that reads from input and collects output.
func NewBufferPort(input []byte) *BufferPort {
	return &BufferPort{in: bytes.NewReader(input)}
}

func (p *BufferPort) ReadByte() (byte, error) {
	return p.in.ReadByte()
}

func (p *BufferPort) WriteByte(b byte) error {
	return p.out.WriteByte(b)
}

// Output returns everything written so far.
func (p *BufferPort) Output() []byte {
	return p.out.Bytes()
}
