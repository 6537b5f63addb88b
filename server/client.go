package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/chazu/tapevm/wire"
)

func init() {
	encoding.RegisterCodec(wire.Codec{})
}

// Client calls a remote ExecutionService over gRPC with the CBOR codec.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the server at addr ("host:port"). The
// connection is plaintext HTTP/2 and established lazily on first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Compile compiles source remotely.
func (c *Client) Compile(ctx context.Context, req *wire.CompileRequest) (*wire.CompileResponse, error) {
	resp := new(wire.CompileResponse)
	if err := c.conn.Invoke(ctx, CompileProcedure, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Run compiles and executes source remotely.
func (c *Client) Run(ctx context.Context, req *wire.RunRequest) (*wire.RunResponse, error) {
	resp := new(wire.RunResponse)
	if err := c.conn.Invoke(ctx, RunProcedure, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Check validates source remotely.
func (c *Client) Check(ctx context.Context, req *wire.CheckRequest) (*wire.CheckResponse, error) {
	resp := new(wire.CheckResponse)
	if err := c.conn.Invoke(ctx, CheckProcedure, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
