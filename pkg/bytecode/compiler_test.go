package bytecode

import (
	"errors"
	"strings"
	"testing"
)

func TestCompileEmpty(t *testing.T) {
	for _, src := range []string{"", "just a comment", "\n\t "} {
		prog, err := Compile(src)
		if err != nil {
			t.Fatalf("Compile(%q) failed: %v", src, err)
		}
		if prog.Len() != 0 {
			t.Errorf("Compile(%q) produced %d instructions, want 0", src, prog.Len())
		}
		if prog.Version != BytecodeVersion {
			t.Errorf("Version = %d, want %d", prog.Version, BytecodeVersion)
		}
	}
}

func TestCompileRunLengthEncoding(t *testing.T) {
	tests := []struct {
		src  string
		want []Instruction
	}{
		{"+", []Instruction{{OpAdd, 1}}},
		{"+++", []Instruction{{OpAdd, 3}}},
		{"---", []Instruction{{OpSub, 3}}},
		{">>>>", []Instruction{{OpRight, 4}}},
		{"<<", []Instruction{{OpLeft, 2}}},
		{"++--", []Instruction{{OpAdd, 2}, {OpSub, 2}}},
		{"+-+", []Instruction{{OpAdd, 1}, {OpSub, 1}, {OpAdd, 1}}},
		{"++>+++.", []Instruction{{OpAdd, 2}, {OpRight, 1}, {OpAdd, 3}, {OpOutput, 0}}},
		{"..", []Instruction{{OpOutput, 0}, {OpOutput, 0}}},
		{",,", []Instruction{{OpInput, 0}, {OpInput, 0}}},
		{"+.+", []Instruction{{OpAdd, 1}, {OpOutput, 0}, {OpAdd, 1}}},
	}

	for _, tt := range tests {
		prog, err := Compile(tt.src)
		if err != nil {
			t.Fatalf("Compile(%q) failed: %v", tt.src, err)
		}
		if !instructionsEqual(prog.Instructions, tt.want) {
			t.Errorf("Compile(%q) = %v, want %v", tt.src, prog.Instructions, tt.want)
		}
	}
}

func TestCompileCommentsDoNotBreakRuns(t *testing.T) {
	prog, err := Compile("+ + comment +\n+")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	want := []Instruction{{OpAdd, 4}}
	if !instructionsEqual(prog.Instructions, want) {
		t.Errorf("got %v, want %v", prog.Instructions, want)
	}
}

func TestCompileIgnoresNonASCII(t *testing.T) {
	prog, err := Compile("+é+ → >")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	want := []Instruction{{OpAdd, 2}, {OpRight, 1}}
	if !instructionsEqual(prog.Instructions, want) {
		t.Errorf("got %v, want %v", prog.Instructions, want)
	}
}

func TestCompileArithmeticRunsWrap(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{255, 255},
		{256, 0},
		{257, 1},
		{600, 88},
	}
	for _, tt := range tests {
		prog, err := Compile(strings.Repeat("+", tt.n))
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if prog.Len() != 1 || prog.At(0).Op != OpAdd || prog.At(0).Arg != tt.want {
			t.Errorf("%d '+' compiled to %v, want ADD %d", tt.n, prog.Instructions, tt.want)
		}
	}

	// Moves keep their full length
	prog := MustCompile(strings.Repeat(">", 300))
	if prog.At(0).Arg != 300 {
		t.Errorf("300 '>' compiled to %v, want RIGHT 300", prog.At(0))
	}
}

func TestCompileLoop(t *testing.T) {
	prog, err := Compile("+[-]")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	want := []Instruction{
		{OpAdd, 1},
		{OpJumpZero, 3},
		{OpSub, 1},
		{OpJumpNotZero, 1},
	}
	if !instructionsEqual(prog.Instructions, want) {
		t.Errorf("got %v, want %v", prog.Instructions, want)
	}
}

func TestCompileNestedLoops(t *testing.T) {
	prog, err := Compile("[[]][]")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	want := []Instruction{
		{OpJumpZero, 3},
		{OpJumpZero, 2},
		{OpJumpNotZero, 1},
		{OpJumpNotZero, 0},
		{OpJumpZero, 5},
		{OpJumpNotZero, 4},
	}
	if !instructionsEqual(prog.Instructions, want) {
		t.Errorf("got %v, want %v", prog.Instructions, want)
	}
}

func TestCompileJumpPairing(t *testing.T) {
	sources := []string{
		"[]",
		"+[>+<-]",
		"[[[[]]]]",
		"[][][]",
		"++++[>+++++<-]>[<+++++>-]+<+[>[>+>+<<-]++>>[<<+>>-]>>>[-]++>[-]+>>>+[[-]++++++>>>]<<<[[<++++++++<++>>-]+<.<[>----<-]<]<<[>>>>>[>>>[-]+++++++++<[>-<-]+++++++++>[-[<->-]+[<<<]]<[>+<-]>]<<-]<<-]",
	}
	for _, src := range sources {
		prog, err := Compile(src)
		if err != nil {
			t.Fatalf("Compile(%q) failed: %v", src, err)
		}
		if err := prog.Validate(); err != nil {
			t.Errorf("Compile(%q) produced invalid program: %v", src, err)
		}
		for i, in := range prog.Instructions {
			switch in.Op {
			case OpJumpZero:
				j := in.Arg
				if j <= i || prog.At(j).Op != OpJumpNotZero || prog.At(j).Arg != i {
					t.Errorf("%q: JUMP_ZERO at %d not paired (target %d)", src, i, j)
				}
			case OpJumpNotZero:
				j := in.Arg
				if prog.At(j).Op != OpJumpZero || prog.At(j).Arg != i {
					t.Errorf("%q: JUMP_NOT_ZERO at %d not paired (target %d)", src, i, j)
				}
			case OpLoopStart:
				t.Errorf("%q: unresolved loop start at %d", src, i)
			}
		}
	}
}

func TestCompileUnopenedLoop(t *testing.T) {
	_, err := Compile("+\n+]")
	if !errors.Is(err, ErrUnopenedLoop) {
		t.Fatalf("expected ErrUnopenedLoop, got %v", err)
	}
	ce, ok := IsCompileError(err)
	if !ok {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	if ce.Offset != 3 || ce.Line != 2 || ce.Column != 2 {
		t.Errorf("position = offset %d %d:%d, want offset 3 2:2", ce.Offset, ce.Line, ce.Column)
	}
}

func TestCompileUnclosedLoop(t *testing.T) {
	prog, err := Compile("[ [] [")
	if prog != nil {
		t.Error("no partial program should be returned")
	}
	if !errors.Is(err, ErrUnclosedLoop) {
		t.Fatalf("expected ErrUnclosedLoop, got %v", err)
	}
	ce, _ := IsCompileError(err)
	// Innermost unclosed bracket is the last one
	if ce.Column != 6 {
		t.Errorf("column = %d, want 6", ce.Column)
	}
	if !strings.Contains(err.Error(), "unclosed loop") {
		t.Errorf("error message %q should mention unclosed loop", err.Error())
	}
}

func TestCompileSingleUnmatchedBrackets(t *testing.T) {
	if _, err := Compile("]"); !errors.Is(err, ErrUnopenedLoop) {
		t.Errorf("']' -> %v, want ErrUnopenedLoop", err)
	}
	if _, err := Compile("["); !errors.Is(err, ErrUnclosedLoop) {
		t.Errorf("'[' -> %v, want ErrUnclosedLoop", err)
	}
	if _, err := Compile("[]]"); !errors.Is(err, ErrUnopenedLoop) {
		t.Errorf("'[]]' -> %v, want ErrUnopenedLoop", err)
	}
}

func TestCompileSourceMap(t *testing.T) {
	prog, err := Compile("ab++\n >.")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if prog.Flags&ProgramFlagDebug == 0 {
		t.Fatal("compiled program should carry a source map")
	}
	want := []SourceLocation{
		{Offset: 2, Line: 1, Column: 3},
		{Offset: 6, Line: 2, Column: 2},
		{Offset: 7, Line: 2, Column: 3},
	}
	if len(prog.SourceMap) != len(want) {
		t.Fatalf("source map has %d entries, want %d", len(prog.SourceMap), len(want))
	}
	for i, loc := range want {
		if prog.Location(i) != loc {
			t.Errorf("Location(%d) = %+v, want %+v", i, prog.Location(i), loc)
		}
	}
}

func TestMustCompilePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustCompile should panic on malformed source")
		}
	}()
	MustCompile("[")
}

func instructionsEqual(a, b []Instruction) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
