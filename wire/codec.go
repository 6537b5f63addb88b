package wire

// CodecName is the content subtype used on the wire: application/grpc+cbor
// for gRPC and application/cbor for the Connect protocol.
const CodecName = "cbor"

// Codec marshals RPC messages with CBOR. It satisfies both connect.Codec
// and grpc's encoding.Codec.
type Codec struct{}

func (Codec) Name() string {
	return CodecName
}

func (Codec) Marshal(v any) ([]byte, error) {
	return Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return Unmarshal(data, v)
}
