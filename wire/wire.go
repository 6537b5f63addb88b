// Package wire defines the CBOR encoding used to move programs and
// execution requests between processes.
package wire

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

var (
	// cborEncMode uses canonical mode for deterministic encoding.
	cborEncMode cbor.EncMode

	// cborDecMode lifts the default array limit so programs with more
	// than 131072 instructions decode.
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		MaxArrayElements: math.MaxInt32,
		MaxMapPairs:      math.MaxInt32,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// validator is implemented by messages that check their own invariants
// after decoding.
type validator interface {
	Validate() error
}

// Marshal encodes v as canonical CBOR.
func Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Messages carrying a program are
// validated, so a received program always has resolved, paired jumps.
func Unmarshal(data []byte, v any) error {
	if err := cborDecMode.Unmarshal(data, v); err != nil {
		return err
	}
	if m, ok := v.(validator); ok {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("wire: %w", err)
		}
	}
	return nil
}
