// tape compiles and runs tape programs, and hosts the execution server and
// language server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/tapevm/manifest"
	"github.com/chazu/tapevm/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tapevm.cli")

// Exit statuses.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	source     string
	disasm     bool
	timing     bool
	trace      bool
	configPath string
	serve      bool
	lsp        bool
	remote     string
	verbosity  int
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("tape", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.source, "e", "", "Program source given inline instead of a file")
	fs.BoolVar(&opts.disasm, "d", false, "Print the compiled program instead of running it")
	fs.BoolVar(&opts.timing, "time", false, "Report elapsed time on stderr")
	fs.BoolVar(&opts.trace, "trace", false, "Trace every executed instruction on stderr")
	fs.StringVar(&opts.configPath, "config", "", "Path to tape.toml (default: search upward from the working directory)")
	fs.BoolVar(&opts.serve, "serve", false, "Start the execution server (gRPC + Connect)")
	fs.BoolVar(&opts.lsp, "lsp", false, "Start the language server on stdio")
	fs.StringVar(&opts.remote, "remote", "", "Run the program on the execution server at host:port")
	fs.IntVar(&opts.verbosity, "v", -1, "Log verbosity 0-5 (default from tape.toml)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tape [options] [file]\n\n")
		fmt.Fprintf(stderr, "Compiles a tape program and runs it with stdin and stdout as its I/O port.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  tape hello.bf                # Run a file\n")
		fmt.Fprintf(stderr, "  tape -e ',[.,]' < in.txt     # Run inline source\n")
		fmt.Fprintf(stderr, "  tape -d hello.bf             # Show bytecode\n")
		fmt.Fprintf(stderr, "  tape -serve                  # Start the execution server\n")
		fmt.Fprintf(stderr, "  tape -remote host:4567 x.bf  # Run on a server\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if opts.remote != "" && (opts.disasm || opts.trace || opts.timing) {
		fmt.Fprintf(stderr, "tape: -remote cannot be combined with -d, -trace or -time\n")
		return exitUsage
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "tape: %v\n", err)
		return exitError
	}
	verbosity := cfg.Log.Verbosity
	if opts.verbosity >= 0 {
		verbosity = opts.verbosity
	}
	commonlog.Configure(verbosity, nil)

	vmOpts, err := cfg.VMOptions()
	if err != nil {
		fmt.Fprintf(stderr, "tape: %v\n", err)
		return exitError
	}

	switch {
	case opts.serve:
		return serve(cfg, vmOpts, stderr)
	case opts.lsp:
		return serveLSP(stderr)
	}

	name, source, code := readSource(fs, opts, stderr)
	if code != exitOK {
		return code
	}

	if opts.remote != "" {
		return runRemote(opts.remote, source, cfg, stdin, stdout, stderr)
	}

	start := time.Now()
	prog, err := bytecode.Compile(source)
	if err != nil {
		fmt.Fprintf(stderr, "tape: %s: %v\n", name, err)
		return exitError
	}
	log.Debugf("compiled %s: %d instructions", name, prog.Len())

	if opts.disasm {
		fmt.Fprint(stdout, prog.DisassembleWithName(name))
		return exitOK
	}

	machine := bytecode.NewVM(vmOpts)
	if opts.trace {
		machine.Trace = stderr
	}
	err = machine.Execute(prog, bytecode.NewStreamPort(stdin, stdout))
	if opts.timing {
		fmt.Fprintf(stderr, "elapsed: %s (%d steps)\n", time.Since(start), machine.Steps())
	}
	if err != nil {
		fmt.Fprintf(stderr, "tape: %s: %v\n", name, err)
		return exitError
	}
	return exitOK
}

// loadConfig loads the named config file, or searches upward from the
// working directory, falling back to defaults.
func loadConfig(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	cfg, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = manifest.Default()
	}
	return cfg, nil
}

// readSource returns the program named by -e or the single file argument.
func readSource(fs *flag.FlagSet, opts options, stderr io.Writer) (name, source string, code int) {
	switch {
	case opts.source != "" && fs.NArg() > 0:
		fmt.Fprintf(stderr, "tape: -e and a file argument are mutually exclusive\n")
		return "", "", exitUsage
	case opts.source != "":
		return "<inline>", opts.source, exitOK
	case fs.NArg() == 1:
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "tape: %v\n", err)
			return "", "", exitError
		}
		return fs.Arg(0), string(data), exitOK
	default:
		fs.Usage()
		return "", "", exitUsage
	}
}
