package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/tapevm/manifest"
	"github.com/chazu/tapevm/server"
)

// runTape invokes the CLI in a temporary working directory so no stray
// tape.toml is picked up.
func runTape(t *testing.T, stdin string, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out, errOut bytes.Buffer
	code = run(args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestRunInline(t *testing.T) {
	out, _, code := runTape(t, "", "-e", "++++++++[>++++++++<-]>+.")
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if out != "A" {
		t.Errorf("output = %q, want %q", out, "A")
	}
}

func TestRunFileWithInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.bf")
	if err := os.WriteFile(path, []byte("read and echo: ,[.,]"), 0644); err != nil {
		t.Fatal(err)
	}

	// Default eof policy is error, so use a config that stops at zero
	cfg := filepath.Join(dir, "tape.toml")
	if err := os.WriteFile(cfg, []byte("[vm]\neof = \"zero\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, errOut, code := runTape(t, "meow", "-config", cfg, path)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, errOut)
	}
	if out != "meow" {
		t.Errorf("output = %q, want %q", out, "meow")
	}
}

func TestRunCompileError(t *testing.T) {
	_, errOut, code := runTape(t, "", "-e", "+]")
	if code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(errOut, "unopened loop") || !strings.Contains(errOut, "1:2") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestRunRuntimeErrorKeepsOutput(t *testing.T) {
	out, errOut, code := runTape(t, "", "-e", "+++.<")
	if code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
	if out != "\x03" {
		t.Errorf("output = %q, want partial output", out)
	}
	if !strings.Contains(errOut, "negative index") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestDisassemble(t *testing.T) {
	out, _, code := runTape(t, "", "-d", "-e", "+[-]")
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	for _, want := range []string{"; === <inline> ===", "JUMP_ZERO -> 0003", "JUMP_NOT_ZERO -> 0001"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"-e", "+", "file.bf"},
		{"a.bf", "b.bf"},
		{"-no-such-flag"},
	}
	for _, args := range tests {
		_, _, code := runTape(t, "", args...)
		if code != exitUsage {
			t.Errorf("run(%q) = %d, want %d", args, code, exitUsage)
		}
	}
}

func TestRemoteRejectsLocalOnlyFlags(t *testing.T) {
	for _, arg := range []string{"-d", "-trace", "-time"} {
		_, errOut, code := runTape(t, "", "-remote", "127.0.0.1:1", arg, "-e", "+")
		if code != exitUsage {
			t.Errorf("%s with -remote: exit code = %d, want %d", arg, code, exitUsage)
		}
		if !strings.Contains(errOut, "cannot be combined") {
			t.Errorf("%s with -remote: stderr = %q", arg, errOut)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestRemoteOutputWriteError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(server.WithWorkers(1))
	go srv.Serve(l)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	var errOut bytes.Buffer
	code := runRemote(l.Addr().String(), "++++++++[>++++++++<-]>+.", manifest.Default(), strings.NewReader(""), failingWriter{}, &errOut)
	if code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(errOut.String(), "writing output") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestMissingFile(t *testing.T) {
	_, _, code := runTape(t, "", "does-not-exist.bf")
	if code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
}

func TestTiming(t *testing.T) {
	_, errOut, code := runTape(t, "", "-time", "-e", "+")
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(errOut, "elapsed:") || !strings.Contains(errOut, "(1 steps)") {
		t.Errorf("stderr = %q", errOut)
	}
}
