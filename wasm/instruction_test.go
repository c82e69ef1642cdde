package wasm_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/bf-wasm/wasm"
)

func TestInstructionRoundTrip(t *testing.T) {
	tests := []wasm.Instruction{
		{Opcode: wasm.OpUnreachable},
		{Opcode: wasm.OpNop},
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: wasm.BlockTypeI32}},
		{Opcode: wasm.OpEnd},
		{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: 0}},
		{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 1}},
		{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 300}},
		{Opcode: wasm.OpDrop},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 2}},
		{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: 0}},
		{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: 0}},
		{Opcode: wasm.OpI32Load8U, Imm: wasm.MemoryImm{}},
		{Opcode: wasm.OpI32Store, Imm: wasm.MemoryImm{Align: 2, Offset: 16}},
		{Opcode: wasm.OpMemorySize, Imm: wasm.MemoryIdxImm{}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: -7}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 60008}},
		{Opcode: wasm.OpI32Eqz},
		{Opcode: wasm.OpI32Add},
		{Opcode: wasm.OpI32Sub},
	}

	for _, tt := range tests {
		encoded := wasm.EncodeInstructions([]wasm.Instruction{tt})
		decoded, err := wasm.DecodeInstructions(encoded)
		if err != nil {
			t.Fatalf("%s: decode error: %v", tt, err)
		}
		if len(decoded) != 1 {
			t.Fatalf("%s: expected 1 instruction, got %d", tt, len(decoded))
		}
		if decoded[0].Opcode != tt.Opcode || decoded[0].Imm != tt.Imm {
			t.Errorf("round trip: got %#v, want %#v", decoded[0], tt)
		}
	}
}

func TestEncodeInstructionsBytes(t *testing.T) {
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: 0}},
		{Opcode: wasm.OpI32Load8U, Imm: wasm.MemoryImm{}},
		{Opcode: wasm.OpI32Eqz},
		{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 1}},
	}
	want := []byte{0x02, 0x40, 0x03, 0x40, 0x23, 0x00, 0x2d, 0x00, 0x00, 0x45, 0x0d, 0x01}
	if got := wasm.EncodeInstructions(instrs); !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestDecodeInstructionsUnsupported(t *testing.T) {
	if _, err := wasm.DecodeInstructions([]byte{0xfd, 0x00}); err == nil {
		t.Error("expected error for unsupported opcode")
	}
	if _, err := wasm.DecodeInstructions([]byte{wasm.OpCall}); err == nil {
		t.Error("expected error for truncated immediate")
	}
}

func TestGetCallTarget(t *testing.T) {
	call := wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 5}}
	if idx, ok := call.GetCallTarget(); !ok || idx != 5 {
		t.Errorf("GetCallTarget = %d, %v", idx, ok)
	}
	nop := wasm.Instruction{Opcode: wasm.OpNop}
	if _, ok := nop.GetCallTarget(); ok {
		t.Error("nop is not a call")
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		want  string
		instr wasm.Instruction
	}{
		{"block", wasm.Instruction{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}}},
		{"br_if 1", wasm.Instruction{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 1}}},
		{"call 7", wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 7}}},
		{"i32.const 60000", wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 60000}}},
		{"i32.store8", wasm.Instruction{Opcode: wasm.OpI32Store8, Imm: wasm.MemoryImm{}}},
		{"i32.add", wasm.Instruction{Opcode: wasm.OpI32Add}},
		{"<0xfe>", wasm.Instruction{Opcode: 0xfe}},
	}
	for _, tt := range tests {
		if got := tt.instr.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
