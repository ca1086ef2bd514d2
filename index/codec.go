package index

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// FileName is the name of the serialized index below the storage root.
const FileName = "meta.cbor"

// encMode uses Core Deterministic Encoding (sorted keys, shortest integers),
// so the same index always serializes to identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("index: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("index: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode writes snapshot as a single CBOR map of text to unsigned integer.
func Encode(w io.Writer, snapshot map[string]uint32) error {
	if snapshot == nil {
		snapshot = map[string]uint32{}
	}

	if err := encMode.NewEncoder(w).Encode(snapshot); err != nil {
		return fmt.Errorf("index: encode snapshot: %w", err)
	}

	return nil
}

// Decode reads a snapshot written by Encode.
// An empty stream is rejected since every stored index holds at least a map header.
func Decode(r io.Reader) (map[string]uint32, error) {
	snapshot := make(map[string]uint32)
	if err := decMode.NewDecoder(r).Decode(&snapshot); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("index: decode snapshot: empty file")
		}
		return nil, fmt.Errorf("index: decode snapshot: %w", err)
	}

	if snapshot == nil {
		snapshot = make(map[string]uint32)
	}

	return snapshot, nil
}

// Marshal returns the encoded form of snapshot.
func Marshal(snapshot map[string]uint32) ([]byte, error) {
	if snapshot == nil {
		snapshot = map[string]uint32{}
	}

	return encMode.Marshal(snapshot)
}
