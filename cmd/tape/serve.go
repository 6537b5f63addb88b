package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chazu/tapevm/manifest"
	"github.com/chazu/tapevm/pkg/bytecode"
	"github.com/chazu/tapevm/server"
	"github.com/chazu/tapevm/store"
	"github.com/chazu/tapevm/wire"
)

// serve runs the execution server until interrupted.
func serve(cfg *manifest.Manifest, vmOpts bytecode.Options, stderr io.Writer) int {
	srvOpts := []server.ServerOption{server.WithVMOptions(vmOpts)}

	if path := cfg.StorePath(); path != "" {
		st, err := store.Open(path)
		if err != nil {
			fmt.Fprintf(stderr, "tape: %v\n", err)
			return exitError
		}
		defer st.Close()
		srvOpts = append(srvOpts, server.WithStore(st))
	}

	srv := server.New(srvOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(cfg.Server.Addr) }()

	select {
	case err := <-errc:
		if err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return exitError
		}
	case <-ctx.Done():
		log.Noticef("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return exitError
		}
	}
	return exitOK
}

// serveLSP runs the language server on stdio.
func serveLSP(stderr io.Writer) int {
	if err := server.NewLSP().Run(); err != nil {
		fmt.Fprintf(stderr, "LSP error: %v\n", err)
		return exitError
	}
	return exitOK
}

// runRemote sends the program and all of stdin to an execution server and
// copies back its output.
func runRemote(addr, source string, cfg *manifest.Manifest, stdin io.Reader, stdout, stderr io.Writer) int {
	input, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "tape: reading input: %v\n", err)
		return exitError
	}

	client, err := server.Dial(addr)
	if err != nil {
		fmt.Fprintf(stderr, "tape: %v\n", err)
		return exitError
	}
	defer client.Close()

	resp, err := client.Run(context.Background(), &wire.RunRequest{
		Source:   source,
		Input:    input,
		TapeSize: cfg.VM.TapeSize,
		EOF:      cfg.VM.EOF,
		MaxSteps: cfg.VM.MaxSteps,
	})
	if err != nil {
		fmt.Fprintf(stderr, "tape: remote run: %v\n", err)
		return exitError
	}
	log.Debugf("remote run %s: %d steps", resp.RunID, resp.Steps)

	if _, err := stdout.Write(resp.Output); err != nil {
		fmt.Fprintf(stderr, "tape: writing output: %v\n", err)
		return exitError
	}
	if resp.Error != "" {
		fmt.Fprintf(stderr, "tape: %s\n", resp.Error)
		return exitError
	}
	return exitOK
}
