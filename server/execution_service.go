package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/chazu/tapevm/pkg/bytecode"
	"github.com/chazu/tapevm/store"
	"github.com/chazu/tapevm/wire"
)

// ExecutionServiceName is the fully-qualified name of the execution service.
const ExecutionServiceName = "tape.v1.ExecutionService"

// Procedure paths, usable both as Connect URLs and gRPC method names.
const (
	CompileProcedure = "/" + ExecutionServiceName + "/Compile"
	RunProcedure     = "/" + ExecutionServiceName + "/Run"
	CheckProcedure   = "/" + ExecutionServiceName + "/Check"
)

// MaxTapeSize is the largest tape a request may ask for.
const MaxTapeSize = 1 << 24

// ExecutionService implements the ExecutionService Connect/gRPC handler.
type ExecutionService struct {
	pool  *Pool
	store *store.Store
	opts  bytecode.Options
}

// NewExecutionService creates an ExecutionService. st may be nil, in which
// case programs are compiled on every request and runs are not recorded.
func NewExecutionService(pool *Pool, st *store.Store, opts bytecode.Options) *ExecutionService {
	return &ExecutionService{
		pool:  pool,
		store: st,
		opts:  opts,
	}
}

// NewExecutionServiceHandler builds an HTTP handler serving the service's
// procedures with the CBOR codec. It returns the path prefix to mount it on.
func NewExecutionServiceHandler(svc *ExecutionService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(wire.Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, svc.Compile, opts...))
	mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, svc.Run, opts...))
	mux.Handle(CheckProcedure, connect.NewUnaryHandler(CheckProcedure, svc.Check, opts...))
	return "/" + ExecutionServiceName + "/", mux
}

// Compile compiles source, consulting the program cache when one is
// configured. Bracket errors are reported as diagnostics, not RPC errors.
func (s *ExecutionService) Compile(
	ctx context.Context,
	req *connect.Request[wire.CompileRequest],
) (*connect.Response[wire.CompileResponse], error) {
	prog, hash, cached, err := s.compile(req.Msg.Source)
	if err != nil {
		if _, ok := bytecode.IsCompileError(err); ok {
			return connect.NewResponse(&wire.CompileResponse{
				Hash:        hash,
				Diagnostics: wire.DiagnosticsFor(err),
			}), nil
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&wire.CompileResponse{
		Program: prog,
		Hash:    hash,
		Cached:  cached,
	}), nil
}

// Check validates source without executing or caching it.
func (s *ExecutionService) Check(
	ctx context.Context,
	req *connect.Request[wire.CheckRequest],
) (*connect.Response[wire.CheckResponse], error) {
	if _, err := bytecode.Compile(req.Msg.Source); err != nil {
		return connect.NewResponse(&wire.CheckResponse{
			Valid:       false,
			Diagnostics: wire.DiagnosticsFor(err),
		}), nil
	}
	return connect.NewResponse(&wire.CheckResponse{Valid: true}), nil
}

// Run compiles and executes source against the request's input. Compile
// and runtime errors are part of the response; output written before a
// runtime error is returned with it.
func (s *ExecutionService) Run(
	ctx context.Context,
	req *connect.Request[wire.RunRequest],
) (*connect.Response[wire.RunResponse], error) {
	opts, err := s.runOptions(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	prog, hash, _, err := s.compile(req.Msg.Source)
	if err != nil {
		if _, ok := bytecode.IsCompileError(err); ok {
			return connect.NewResponse(&wire.RunResponse{
				Error:       err.Error(),
				ErrorKind:   wire.ErrorKind(err),
				Diagnostics: wire.DiagnosticsFor(err),
			}), nil
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	port := bytecode.NewBufferPort(req.Msg.Input)
	machine := bytecode.NewVM(opts)
	started := time.Now()

	var runErr error
	if err := s.pool.Do(ctx, func() error {
		runErr = machine.ExecuteContext(ctx, prog, port)
		return nil
	}); err != nil {
		return nil, poolError(err)
	}

	resp := &wire.RunResponse{
		RunID:  uuid.New().String(),
		Output: port.Output(),
		Steps:  machine.Steps(),
	}
	if runErr != nil {
		resp.Error = runErr.Error()
		resp.ErrorKind = wire.ErrorKind(runErr)
	}

	log.Infof("run %s: program %s, %d steps, %d bytes out, %s", resp.RunID, hash, resp.Steps, len(resp.Output), describe(runErr))

	if s.store != nil {
		rec := &store.RunRecord{
			ID:        resp.RunID,
			Hash:      hash,
			StartedAt: started,
			Duration:  time.Since(started),
			Steps:     resp.Steps,
			OutputLen: len(resp.Output),
			ErrorKind: resp.ErrorKind,
			Error:     resp.Error,
		}
		if err := s.store.RecordRun(rec); err != nil {
			log.Warningf("recording run %s: %s", resp.RunID, err)
		}
	}

	return connect.NewResponse(resp), nil
}

func (s *ExecutionService) compile(source string) (*bytecode.Program, string, bool, error) {
	if s.store != nil {
		return s.store.Compile(source)
	}
	prog, err := bytecode.Compile(source)
	return prog, store.HashSource(source), false, err
}

// runOptions merges per-request limits into the server defaults. A request
// may lower the server's step limit but never raise it.
func (s *ExecutionService) runOptions(req *wire.RunRequest) (bytecode.Options, error) {
	opts := s.opts

	switch {
	case req.TapeSize < 0:
		return opts, fmt.Errorf("tape_size must not be negative")
	case req.TapeSize > MaxTapeSize:
		return opts, fmt.Errorf("tape_size %d exceeds maximum %d", req.TapeSize, MaxTapeSize)
	case req.TapeSize > 0:
		opts.TapeSize = req.TapeSize
	}

	if req.EOF != "" {
		policy, err := bytecode.ParseEOFPolicy(req.EOF)
		if err != nil {
			return opts, err
		}
		opts.EOF = policy
	}

	if req.MaxSteps < 0 {
		return opts, fmt.Errorf("max_steps must not be negative")
	}
	if req.MaxSteps > 0 && (opts.MaxSteps == 0 || req.MaxSteps < opts.MaxSteps) {
		opts.MaxSteps = req.MaxSteps
	}

	return opts, nil
}

func poolError(err error) *connect.Error {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, ErrPoolStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func describe(err error) string {
	if err == nil {
		return "ok"
	}
	return wire.ErrorKind(err)
}
