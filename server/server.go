// Package server exposes the tape VM over the network: an ExecutionService
// speaking Connect and gRPC on one port, a matching gRPC client, and a
// language server for editors.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/tapevm/pkg/bytecode"
	"github.com/chazu/tapevm/store"
)

var log = commonlog.GetLogger("tapevm.server")

// Server serves the ExecutionService over both the Connect protocol
// (HTTP/1.1 or HTTP/2) and gRPC (cleartext HTTP/2) on the same port.
type Server struct {
	svc        *ExecutionService
	pool       *Pool
	mux        *http.ServeMux
	httpServer *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	store     *store.Store
	vmOptions bytecode.Options
	workers   int
}

// WithStore enables the program cache and run history. The caller keeps
// ownership of st and closes it after the server stops.
func WithStore(st *store.Store) ServerOption {
	return func(c *serverConfig) { c.store = st }
}

// WithVMOptions sets the default VM options for runs.
func WithVMOptions(opts bytecode.Options) ServerOption {
	return func(c *serverConfig) { c.vmOptions = opts }
}

// WithWorkers sets how many programs may execute concurrently.
// The default is one per CPU.
func WithWorkers(n int) ServerOption {
	return func(c *serverConfig) { c.workers = n }
}

// New creates a Server.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	pool := NewPool(cfg.workers)
	svc := NewExecutionService(pool, cfg.store, cfg.vmOptions)

	s := &Server{
		svc:  svc,
		pool: pool,
		mux:  http.NewServeMux(),
	}

	path, handler := NewExecutionServiceHandler(svc)
	s.mux.Handle(path, handler)

	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	s.httpServer = &http.Server{
		Handler:           s.mux,
		Protocols:         &protocols,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Service returns the ExecutionService implementation.
func (s *Server) Service() *ExecutionService {
	return s.svc
}

// ListenAndServe starts the server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	addr := l.Addr().String()
	log.Noticef("tape server listening on %s (%d workers)", addr, s.pool.Size())
	log.Infof("  Connect: http://%s%s", addr, RunProcedure)
	log.Infof("  gRPC:    grpc://%s", addr)

	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, waits for in-flight requests and
// stops the worker pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.pool.Stop()
	return err
}
