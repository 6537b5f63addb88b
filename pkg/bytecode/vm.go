package bytecode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EOFPolicy selects what an input instruction does at end of input.
type EOFPolicy int

const (
	// EOFError fails the run with ErrMissingInput.
	EOFError EOFPolicy = iota
	// EOFZero stores 0 in the current cell.
	EOFZero
	// EOFUnchanged leaves the current cell as it was.
	EOFUnchanged
)

// String returns the configuration name of the policy.
func (p EOFPolicy) String() string {
	switch p {
	case EOFError:
		return "error"
	case EOFZero:
		return "zero"
	case EOFUnchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("EOFPolicy(%d)", int(p))
	}
}

// ParseEOFPolicy parses "error", "zero" or "unchanged". The empty string
// selects EOFError.
func ParseEOFPolicy(s string) (EOFPolicy, error) {
	switch strings.ToLower(s) {
	case "", "error":
		return EOFError, nil
	case "zero":
		return EOFZero, nil
	case "unchanged":
		return EOFUnchanged, nil
	}
	return EOFError, fmt.Errorf("unknown eof policy %q", s)
}

// Options configures a VM.
type Options struct {
	TapeSize int       // Number of cells; 0 selects DefaultTapeSize
	EOF      EOFPolicy // Input behaviour at end of input
	MaxSteps int64     // Instruction budget per run; 0 means unlimited
}

// ctxCheckInterval is how many instructions run between context polls.
const ctxCheckInterval = 1024

// VM executes compiled programs. A VM is not safe for concurrent use; each
// run owns its tape and instruction pointer exclusively.
type VM struct {
	opts Options

	// Current execution state
	prog  *Program
	ip    int
	tape  *Tape
	steps int64

	// Trace receives one line per executed instruction when non-nil.
	Trace io.Writer
}

// NewVM creates a new VM instance.
func NewVM(opts Options) *VM {
	return &VM{opts: opts}
}

// Options returns the VM configuration.
func (vm *VM) Options() Options {
	return vm.opts
}

// Steps returns the number of instructions executed by the last run.
func (vm *VM) Steps() int64 {
	return vm.steps
}

// Tape returns the tape left by the last successful run, or nil if the last
// run failed.
func (vm *VM) Tape() *Tape {
	return vm.tape
}

// Execute runs a program to completion against a fresh tape.
func (vm *VM) Execute(prog *Program, port Port) error {
	return vm.ExecuteContext(context.Background(), prog, port)
}

// ExecuteContext is Execute with cancellation. The context is polled
// periodically, not on every instruction.
func (vm *VM) ExecuteContext(ctx context.Context, prog *Program, port Port) error {
	vm.prog = prog
	vm.ip = 0
	vm.steps = 0
	vm.tape = NewTape(vm.opts.TapeSize)

	err := vm.run(ctx, port)

	if f, ok := port.(Flusher); ok {
		if ferr := f.Flush(); ferr != nil && err == nil {
			err = vm.fail(OpOutput, fmt.Errorf("flush output: %w", ferr))
		}
	}
	if err != nil {
		vm.tape = nil
	}
	vm.prog = nil
	return err
}

// run is the main execution loop.
func (vm *VM) run(ctx context.Context, port Port) error {
	code := vm.prog.Instructions
	tape := vm.tape

	for vm.ip < len(code) {
		in := code[vm.ip]

		if vm.opts.MaxSteps > 0 && vm.steps >= vm.opts.MaxSteps {
			return vm.fail(in.Op, ErrStepLimit)
		}
		if vm.steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return vm.fail(in.Op, err)
			}
		}
		vm.steps++

		if vm.Trace != nil {
			fmt.Fprintf(vm.Trace, "[%04d] %-20s dp=%d cell=%d\n", vm.ip, in, tape.Pointer(), tape.Get())
		}

		switch in.Op {
		// ============ Arithmetic ============
		case OpAdd:
			tape.Add(byte(in.Arg))

		case OpSub:
			tape.Sub(byte(in.Arg))

		// ============ Movement ============
		case OpRight:
			if err := tape.Right(in.Arg); err != nil {
				return vm.fail(in.Op, err)
			}

		case OpLeft:
			if err := tape.Left(in.Arg); err != nil {
				return vm.fail(in.Op, err)
			}

		// ============ Control Flow ============
		case OpJumpZero:
			if tape.Get() == 0 {
				if err := vm.jump(in.Arg); err != nil {
					return vm.fail(in.Op, err)
				}
				continue
			}

		case OpJumpNotZero:
			if tape.Get() != 0 {
				if err := vm.jump(in.Arg); err != nil {
					return vm.fail(in.Op, err)
				}
				continue
			}

		// ============ I/O ============
		case OpOutput:
			if err := port.WriteByte(tape.Get()); err != nil {
				return vm.fail(in.Op, fmt.Errorf("output: %w", err))
			}

		case OpInput:
			b, err := port.ReadByte()
			switch {
			case err == nil:
				tape.Set(b)
			case errors.Is(err, io.EOF):
				switch vm.opts.EOF {
				case EOFZero:
					tape.Set(0)
				case EOFUnchanged:
				default:
					return vm.fail(in.Op, ErrMissingInput)
				}
			default:
				return vm.fail(in.Op, fmt.Errorf("input: %w", err))
			}

		case OpLoopStart:
			return vm.fail(in.Op, fmt.Errorf("%w: unresolved loop start", ErrMalformedProgram))

		default:
			return vm.fail(in.Op, fmt.Errorf("%w: unknown opcode 0x%02X", ErrMalformedProgram, byte(in.Op)))
		}

		vm.ip++
	}

	return nil
}

// jump sets the instruction pointer to target.
func (vm *VM) jump(target int) error {
	if target < 0 || target >= len(vm.prog.Instructions) {
		return fmt.Errorf("%w: jump target %d out of range", ErrMalformedProgram, target)
	}
	vm.ip = target
	return nil
}

func (vm *VM) fail(op Opcode, err error) *RuntimeError {
	return &RuntimeError{
		Err:     err,
		IP:      vm.ip,
		Op:      op,
		Pointer: vm.tape.Pointer(),
	}
}

// Execute runs prog with default options.
func Execute(prog *Program, port Port) error {
	return NewVM(Options{}).Execute(prog, port)
}

// Run compiles source and executes it with default options.
func Run(source string, port Port) error {
	prog, err := Compile(source)
	if err != nil {
		return err
	}
	return Execute(prog, port)
}
