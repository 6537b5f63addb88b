// End-to-end tests: source text through the compiler and the VM.
package bytecode

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestIntegrationPrintsCellOne(t *testing.T) {
	port := NewBufferPort(nil)
	if err := Run("++>+++.", port); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !bytes.Equal(port.Output(), []byte{3}) {
		t.Errorf("output = %v, want [3]", port.Output())
	}
}

func TestIntegrationClearLoop(t *testing.T) {
	vm := NewVM(Options{})
	if err := vm.Execute(MustCompile("+[-]"), NewBufferPort(nil)); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if vm.Tape().Cell(0) != 0 {
		t.Errorf("cell 0 = %d, want 0", vm.Tape().Cell(0))
	}
}

func TestIntegrationMoveLeftAtZero(t *testing.T) {
	port := NewBufferPort(nil)
	err := Run("<", port)
	if !errors.Is(err, ErrNegativeIndex) {
		t.Fatalf("expected ErrNegativeIndex, got %v", err)
	}
	if len(port.Output()) != 0 {
		t.Errorf("no output expected, got %v", port.Output())
	}
}

func TestIntegrationEchoOne(t *testing.T) {
	port := NewBufferPort([]byte("A"))
	if err := Run(",.", port); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !bytes.Equal(port.Output(), []byte{65}) {
		t.Errorf("output = %v, want [65]", port.Output())
	}
}

func TestIntegrationCompileErrorsSurface(t *testing.T) {
	if err := Run("+]", NewBufferPort(nil)); !errors.Is(err, ErrUnopenedLoop) {
		t.Errorf("expected ErrUnopenedLoop, got %v", err)
	}
	if err := Run("[+", NewBufferPort(nil)); !errors.Is(err, ErrUnclosedLoop) {
		t.Errorf("expected ErrUnclosedLoop, got %v", err)
	}
}

func TestIntegrationHelloWorld(t *testing.T) {
	src := `
hello world program
++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++.`
	port := NewBufferPort(nil)
	if err := Run(src, port); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(port.Output()) != "Hello World!\n" {
		t.Errorf("output = %q, want %q", port.Output(), "Hello World!\n")
	}
}

func TestIntegrationCat(t *testing.T) {
	vm := NewVM(Options{EOF: EOFZero})
	port := NewBufferPort([]byte("tape"))
	if err := vm.Execute(MustCompile(",[.,]"), port); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(port.Output()) != "tape" {
		t.Errorf("output = %q, want %q", port.Output(), "tape")
	}
}

func TestIntegrationSquares(t *testing.T) {
	// Prints the squares 0..10000, one per line
	src := "++++[>+++++<-]>[<+++++>-]+<+[>[>+>+<<-]++>>[<<+>>-]>>>[-]++>[-]+>>>+[[-]++++++>>>]<<<[[<++++++++<++>>-]+<.<[>----<-]<]<<[>>>>>[>>>[-]+++++++++<[>-<-]+++++++++>[-[<->-]+[<<<]]<[>+<-]>]<<-]<<-]"
	port := NewBufferPort(nil)
	if err := Run(src, port); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	out := string(port.Output())
	if !strings.HasPrefix(out, "0\n1\n4\n9\n16\n") {
		t.Errorf("unexpected output prefix: %q", out[:min(len(out), 32)])
	}
	if !strings.HasSuffix(out, "9801\n10000\n") {
		t.Errorf("unexpected output suffix")
	}
}
