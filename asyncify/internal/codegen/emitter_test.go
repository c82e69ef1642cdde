package codegen

import (
	"bytes"
	"testing"

	"github.com/wippyai/bf-wasm/wasm"
)

func TestEmitter_Sequence(t *testing.T) {
	e := NewEmitter()
	e.GlobalGet(1).I32Const(-1).I32Eq().If(BlockVoid).Unreachable().End()
	want := []byte{
		wasm.OpGlobalGet, 1,
		wasm.OpI32Const, 0x7F,
		wasm.OpI32Eq,
		wasm.OpIf, 0x40,
		wasm.OpUnreachable,
		wasm.OpEnd,
	}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("got % x, want % x", e.Bytes(), want)
	}
}

func TestEmitter_DecodesBack(t *testing.T) {
	e := NewEmitter()
	e.Block(BlockI32).LocalGet(300).I32Load(2, 4).Br(0).End().
		LocalSet(2).Call(7).EmitRaw([]byte{wasm.OpNop}).End()

	instrs, err := wasm.DecodeInstructions(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	ops := []byte{
		wasm.OpBlock, wasm.OpLocalGet, wasm.OpI32Load, wasm.OpBr, wasm.OpEnd,
		wasm.OpLocalSet, wasm.OpCall, wasm.OpNop, wasm.OpEnd,
	}
	if len(instrs) != len(ops) {
		t.Fatalf("decoded %d instructions, want %d", len(instrs), len(ops))
	}
	for i, op := range ops {
		if instrs[i].Opcode != op {
			t.Errorf("instr %d = %s, want %s", i, instrs[i], wasm.OpcodeName(op))
		}
	}
	if imm := instrs[1].Imm.(wasm.LocalImm); imm.LocalIdx != 300 {
		t.Errorf("local.get index = %d, want 300", imm.LocalIdx)
	}
	if imm := instrs[2].Imm.(wasm.MemoryImm); imm.Align != 2 || imm.Offset != 4 {
		t.Errorf("i32.load memarg = %+v", imm)
	}
}

func TestEmitter_Pool(t *testing.T) {
	e := GetEmitter(16)
	e.Nop()
	out := e.Copy()
	PutEmitter(e)

	e2 := GetEmitter(16)
	defer PutEmitter(e2)
	if e2.Len() != 0 {
		t.Errorf("pooled emitter not reset: %d bytes", e2.Len())
	}
	if !bytes.Equal(out, []byte{wasm.OpNop}) {
		t.Errorf("Copy = % x", out)
	}
}
