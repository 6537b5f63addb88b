package bytecode

import "unicode/utf8"

// compiler turns source text into a Program.
type compiler struct {
	instructions []Instruction
	sourceMap    []SourceLocation

	// Indices of OpLoopStart placeholders awaiting their closing bracket
	loops []int

	// Pending run of + - < >
	inRun    bool
	runOp    Opcode
	runCount int
	runLoc   SourceLocation
}

// Compile converts source text to a Program.
//
// Characters outside the operator alphabet are comments and are skipped
// without breaking a pending run, so "+ +" compiles to a single ADD 2.
// Runs of + and - are reduced modulo 256 here; runs of < and > keep their
// full length.
func Compile(source string) (*Program, error) {
	c := &compiler{
		instructions: make([]Instruction, 0, len(source)/2),
		sourceMap:    make([]SourceLocation, 0, len(source)/2),
	}

	line, col := 1, 1
	for offset, r := range source {
		loc := SourceLocation{Offset: uint32(offset), Line: uint32(line), Column: uint32(col)}
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
		if r >= utf8.RuneSelf {
			continue
		}
		if err := c.feed(byte(r), loc); err != nil {
			return nil, err
		}
	}
	c.flushRun()

	if len(c.loops) > 0 {
		// Report the innermost bracket that was never closed
		start := c.loops[len(c.loops)-1]
		return nil, compileErrorAt(ErrUnclosedLoop, c.sourceMap[start])
	}

	return &Program{
		Version:      BytecodeVersion,
		Flags:        ProgramFlagDebug,
		Instructions: c.instructions,
		SourceMap:    c.sourceMap,
	}, nil
}

// CompileBytes is Compile for a byte slice.
func CompileBytes(source []byte) (*Program, error) {
	return Compile(string(source))
}

// MustCompile is like Compile but panics on error. Intended for tests and
// program literals known to be well formed.
func MustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

// feed processes one ASCII source character.
func (c *compiler) feed(ch byte, loc SourceLocation) error {
	if op, ok := runOpcode(ch); ok {
		if c.inRun && c.runOp == op {
			c.runCount++
			return nil
		}
		c.flushRun()
		c.inRun = true
		c.runOp = op
		c.runCount = 1
		c.runLoc = loc
		return nil
	}

	switch ch {
	case '[':
		c.flushRun()
		c.loops = append(c.loops, len(c.instructions))
		c.emit(OpLoopStart, 0, loc)

	case ']':
		c.flushRun()
		if len(c.loops) == 0 {
			return compileErrorAt(ErrUnopenedLoop, loc)
		}
		start := c.loops[len(c.loops)-1]
		c.loops = c.loops[:len(c.loops)-1]
		c.patchLoop(start)
		c.emit(OpJumpNotZero, start, loc)

	case '.':
		c.flushRun()
		c.emit(OpOutput, 0, loc)

	case ',':
		c.flushRun()
		c.emit(OpInput, 0, loc)
	}
	return nil
}

// flushRun emits the pending run, if any.
func (c *compiler) flushRun() {
	if !c.inRun {
		return
	}
	count := c.runCount
	if c.runOp == OpAdd || c.runOp == OpSub {
		count %= 256
	}
	c.emit(c.runOp, count, c.runLoc)
	c.inRun = false
	c.runCount = 0
}

// patchLoop resolves the placeholder at start to jump to the instruction
// about to be emitted.
func (c *compiler) patchLoop(start int) {
	c.instructions[start] = Instruction{Op: OpJumpZero, Arg: len(c.instructions)}
}

func (c *compiler) emit(op Opcode, arg int, loc SourceLocation) int {
	idx := len(c.instructions)
	c.instructions = append(c.instructions, Instruction{Op: op, Arg: arg})
	c.sourceMap = append(c.sourceMap, loc)
	return idx
}

func compileErrorAt(err error, loc SourceLocation) *CompileError {
	return &CompileError{
		Err:    err,
		Offset: int(loc.Offset),
		Line:   int(loc.Line),
		Column: int(loc.Column),
	}
}
