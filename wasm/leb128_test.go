package wasm_test

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/wippyai/bf-wasm/wasm"
)

func TestLEB128Unsigned(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xff, 0x01}, 255},
		{[]byte{0x80, 0x02}, 256},
		{[]byte{0xff, 0x7f}, 16383},
		{[]byte{0x80, 0x80, 0x01}, 16384},
		{[]byte{0xe0, 0xd4, 0x03}, 60000},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			var buf bytes.Buffer
			wasm.WriteLEB128u(&buf, tt.value)
			if !bytes.Equal(buf.Bytes(), tt.encoded) {
				t.Errorf("encode %d: got %v, want %v", tt.value, buf.Bytes(), tt.encoded)
			}

			lazy := slices.Collect(wasm.LEB128u(uint64(tt.value)))
			if !bytes.Equal(lazy, tt.encoded) {
				t.Errorf("lazy encode %d: got %v, want %v", tt.value, lazy, tt.encoded)
			}

			got, err := wasm.ReadLEB128u(bytes.NewReader(tt.encoded))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.value {
				t.Errorf("decode: got %d, want %d", got, tt.value)
			}
		})
	}
}

func TestLEB128uEarlyStop(t *testing.T) {
	var got []byte
	for b := range wasm.LEB128u(0xFFFFFFFF) {
		got = append(got, b)
		if len(got) == 2 {
			break
		}
	}
	if !bytes.Equal(got, []byte{0xff, 0xff}) {
		t.Errorf("got %v", got)
	}
}

func TestLEB128uBeyond32Bits(t *testing.T) {
	got := wasm.EncodeLEB128u64(1 << 35)
	want := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestLEB128Signed(t *testing.T) {
	tests := []struct {
		encoded []byte
		value   int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, -1},
		{[]byte{0x3f}, 63},
		{[]byte{0xc0, 0x00}, 64},
		{[]byte{0x40}, -64},
		{[]byte{0xbf, 0x7f}, -65},
		{[]byte{0xe0, 0xd4, 0x03}, 60000},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x78}, -2147483648},
	}

	for _, tt := range tests {
		got := wasm.EncodeLEB128s(tt.value)
		if !bytes.Equal(got, tt.encoded) {
			t.Errorf("encode %d: got %v, want %v", tt.value, got, tt.encoded)
		}
		dec, err := wasm.ReadLEB128s(bytes.NewReader(tt.encoded))
		if err != nil {
			t.Fatalf("decode %d: %v", tt.value, err)
		}
		if dec != tt.value {
			t.Errorf("decode: got %d, want %d", dec, tt.value)
		}
	}
}

func TestLEB128Overflow(t *testing.T) {
	data := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if _, err := wasm.ReadLEB128u(bytes.NewReader(data)); !errors.Is(err, wasm.ErrOverflow) {
		t.Errorf("unsigned: expected ErrOverflow, got %v", err)
	}
	if _, err := wasm.ReadLEB128s(bytes.NewReader(data)); !errors.Is(err, wasm.ErrOverflow) {
		t.Errorf("signed: expected ErrOverflow, got %v", err)
	}
}
