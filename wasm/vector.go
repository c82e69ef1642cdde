package wasm

import (
	"github.com/wippyai/bf-wasm/wasm/internal/binary"
)

// EncodeName returns s as UTF-8 bytes prefixed with their length.
func EncodeName(s string) []byte {
	w := binary.NewWriter()
	w.WriteName(s)
	return w.Bytes()
}

// EncodeVector returns the item count followed by every item's bytes.
func EncodeVector(items [][]byte) []byte {
	w := binary.NewWriter()
	w.WriteVector(items)
	return w.Bytes()
}

// EncodeSection frames payload as a section: id, payload length, payload.
// Section ids are single bytes; the caller must pass an id the format defines.
func EncodeSection(id byte, payload []byte) []byte {
	w := binary.NewWriter()
	w.WriteSection(id, payload)
	return w.Bytes()
}

// DecodeName reads a length-prefixed UTF-8 string from the start of data.
func DecodeName(data []byte) (string, error) {
	return binary.NewReader(data).ReadName()
}
