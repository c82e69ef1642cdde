// Package codegen emits the WebAssembly bytecode of instrumented functions.
package codegen

import (
	"bytes"
	"sync"

	"github.com/wippyai/bf-wasm/wasm"
)

// BlockType is the type immediate of block, loop and if.
type BlockType int32

const (
	BlockVoid BlockType = BlockType(wasm.BlockTypeVoid)
	BlockI32  BlockType = BlockType(wasm.BlockTypeI32)
)

// Emitter appends instructions to a byte buffer. Every method returns the
// emitter so sequences chain.
type Emitter struct {
	buf bytes.Buffer
}

var pool = sync.Pool{New: func() any { return new(Emitter) }}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return new(Emitter)
}

// GetEmitter takes an emitter from the pool and sizes it for about n bytes.
func GetEmitter(n int) *Emitter {
	e := pool.Get().(*Emitter)
	e.buf.Reset()
	e.buf.Grow(n)
	return e
}

// PutEmitter returns e to the pool. Bytes obtained from e must not be used
// afterwards; take a Copy first.
func PutEmitter(e *Emitter) {
	pool.Put(e)
}

func (e *Emitter) Len() int      { return e.buf.Len() }
func (e *Emitter) Bytes() []byte { return e.buf.Bytes() }
func (e *Emitter) Reset()        { e.buf.Reset() }

// Copy returns the emitted bytes in a fresh slice.
func (e *Emitter) Copy() []byte {
	return bytes.Clone(e.buf.Bytes())
}

// EmitRawOpcode writes an opcode without immediates.
func (e *Emitter) EmitRawOpcode(op byte) *Emitter {
	e.buf.WriteByte(op)
	return e
}

// EmitRaw appends already encoded instructions.
func (e *Emitter) EmitRaw(code []byte) *Emitter {
	e.buf.Write(code)
	return e
}

// EmitInstr writes a decoded instruction with its immediates.
func (e *Emitter) EmitInstr(instr wasm.Instruction) *Emitter {
	wasm.EncodeInstructionTo(&e.buf, &instr)
	return e
}

func (e *Emitter) blockOp(op byte, bt BlockType) *Emitter {
	e.buf.WriteByte(op)
	wasm.WriteLEB128s(&e.buf, int32(bt))
	return e
}

func (e *Emitter) indexOp(op byte, idx uint32) *Emitter {
	e.buf.WriteByte(op)
	wasm.WriteLEB128u(&e.buf, idx)
	return e
}

func (e *Emitter) Block(bt BlockType) *Emitter { return e.blockOp(wasm.OpBlock, bt) }
func (e *Emitter) Loop(bt BlockType) *Emitter  { return e.blockOp(wasm.OpLoop, bt) }
func (e *Emitter) If(bt BlockType) *Emitter    { return e.blockOp(wasm.OpIf, bt) }
func (e *Emitter) Else() *Emitter              { return e.EmitRawOpcode(wasm.OpElse) }
func (e *Emitter) End() *Emitter               { return e.EmitRawOpcode(wasm.OpEnd) }
func (e *Emitter) Br(label uint32) *Emitter    { return e.indexOp(wasm.OpBr, label) }
func (e *Emitter) BrIf(label uint32) *Emitter  { return e.indexOp(wasm.OpBrIf, label) }
func (e *Emitter) Return() *Emitter            { return e.EmitRawOpcode(wasm.OpReturn) }
func (e *Emitter) Call(fn uint32) *Emitter     { return e.indexOp(wasm.OpCall, fn) }
func (e *Emitter) Unreachable() *Emitter       { return e.EmitRawOpcode(wasm.OpUnreachable) }
func (e *Emitter) Nop() *Emitter               { return e.EmitRawOpcode(wasm.OpNop) }
func (e *Emitter) Drop() *Emitter              { return e.EmitRawOpcode(wasm.OpDrop) }
func (e *Emitter) Select() *Emitter            { return e.EmitRawOpcode(wasm.OpSelect) }

func (e *Emitter) LocalGet(idx uint32) *Emitter  { return e.indexOp(wasm.OpLocalGet, idx) }
func (e *Emitter) LocalSet(idx uint32) *Emitter  { return e.indexOp(wasm.OpLocalSet, idx) }
func (e *Emitter) LocalTee(idx uint32) *Emitter  { return e.indexOp(wasm.OpLocalTee, idx) }
func (e *Emitter) GlobalGet(idx uint32) *Emitter { return e.indexOp(wasm.OpGlobalGet, idx) }
func (e *Emitter) GlobalSet(idx uint32) *Emitter { return e.indexOp(wasm.OpGlobalSet, idx) }

// I32Const writes i32.const v.
func (e *Emitter) I32Const(v int32) *Emitter {
	e.buf.WriteByte(wasm.OpI32Const)
	wasm.WriteLEB128s(&e.buf, v)
	return e
}

func (e *Emitter) memOp(op byte, align, offset uint32) *Emitter {
	return e.EmitInstr(wasm.Instruction{Opcode: op, Imm: wasm.MemoryImm{Align: align, Offset: offset}})
}

// I32Load writes i32.load with the given alignment exponent and offset.
func (e *Emitter) I32Load(align, offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Load, align, offset)
}

// I32Store writes i32.store with the given alignment exponent and offset.
func (e *Emitter) I32Store(align, offset uint32) *Emitter {
	return e.memOp(wasm.OpI32Store, align, offset)
}

func (e *Emitter) I32Eqz() *Emitter { return e.EmitRawOpcode(wasm.OpI32Eqz) }
func (e *Emitter) I32Eq() *Emitter  { return e.EmitRawOpcode(wasm.OpI32Eq) }
func (e *Emitter) I32Ne() *Emitter  { return e.EmitRawOpcode(wasm.OpI32Ne) }
func (e *Emitter) I32GtU() *Emitter { return e.EmitRawOpcode(wasm.OpI32GtU) }
func (e *Emitter) I32Add() *Emitter { return e.EmitRawOpcode(wasm.OpI32Add) }
func (e *Emitter) I32Sub() *Emitter { return e.EmitRawOpcode(wasm.OpI32Sub) }
func (e *Emitter) I32And() *Emitter { return e.EmitRawOpcode(wasm.OpI32And) }
func (e *Emitter) I32Or() *Emitter  { return e.EmitRawOpcode(wasm.OpI32Or) }

// StateCheck leaves (global == state) on the stack.
func (e *Emitter) StateCheck(global uint32, state int32) *Emitter {
	return e.GlobalGet(global).I32Const(state).I32Eq()
}

// IfState opens an if block taken when global == state.
func (e *Emitter) IfState(global uint32, state int32, bt BlockType) *Emitter {
	return e.StateCheck(global, state).If(bt)
}
