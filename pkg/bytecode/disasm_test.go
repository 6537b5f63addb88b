package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleEmpty(t *testing.T) {
	output := programOf().Disassemble()

	if !strings.Contains(output, "Tape Bytecode v1") {
		t.Error("Disassembly missing header")
	}
	if !strings.Contains(output, "Instructions: 0") {
		t.Error("Disassembly missing instruction count")
	}
}

func TestDisassembleWithName(t *testing.T) {
	output := programOf().DisassembleWithName("hello.bf")
	if !strings.HasPrefix(output, "; === hello.bf ===\n") {
		t.Errorf("missing name header:\n%s", output)
	}
}

func TestDisassembleLoop(t *testing.T) {
	output := MustCompile("+[-]\n.").Disassemble()

	for _, want := range []string{
		"0000  ADD 1",
		"0001  JUMP_ZERO -> 0003",
		"0002  SUB 1",
		"0003  JUMP_NOT_ZERO -> 0001",
		"0004  OUTPUT",
		"; line 2:1",
		"[DEBUG]",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Disassembly missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleWithoutSourceMap(t *testing.T) {
	output := programOf(Instruction{OpRight, 5}, Instruction{OpInput, 0}).Disassemble()
	if strings.Contains(output, "; line") {
		t.Errorf("no source locations expected:\n%s", output)
	}
	if !strings.Contains(output, "0000  RIGHT 5\n") || !strings.Contains(output, "0001  INPUT\n") {
		t.Errorf("unexpected listing:\n%s", output)
	}
}
