package handler

import (
	"github.com/wippyai/bf-wasm/wasm"
)

// Drop forgets the top slot; the value already lives in a local.
type DropHandler struct{}

func (DropHandler) Handle(ctx *Context, _ wasm.Instruction) error {
	ctx.Stack.Pop()
	return nil
}

// RawHandler re-emits the instruction as is. Used for opcodes without
// operands or results.
type RawHandler struct{}

func (RawHandler) Handle(ctx *Context, instr wasm.Instruction) error {
	ctx.Emit.EmitInstr(instr)
	return nil
}

// LocalGetHandler snapshots a local into a temporary so that later writes
// to the local do not change the value already on the stack.
type LocalGetHandler struct{}

func (LocalGetHandler) Handle(ctx *Context, instr wasm.Instruction) error {
	imm := instr.Imm.(wasm.LocalImm)
	vt := ctx.TypeOf(imm.LocalIdx)
	tmp := ctx.AllocTemp(vt)
	ctx.Emit.LocalGet(imm.LocalIdx).LocalSet(tmp)
	ctx.Stack.Push(tmp, vt)
	return nil
}

type LocalSetHandler struct{}

func (LocalSetHandler) Handle(ctx *Context, instr wasm.Instruction) error {
	imm := instr.Imm.(wasm.LocalImm)
	ctx.Emit.LocalGet(ctx.Stack.Pop()).LocalSet(imm.LocalIdx)
	return nil
}

// LocalTeeHandler stores into the local and keeps a copy in a temporary
// for the stack, like LocalGetHandler.
type LocalTeeHandler struct{}

func (LocalTeeHandler) Handle(ctx *Context, instr wasm.Instruction) error {
	imm := instr.Imm.(wasm.LocalImm)
	vt := ctx.TypeOf(imm.LocalIdx)
	tmp := ctx.AllocTemp(vt)
	ctx.Emit.LocalGet(ctx.Stack.Pop()).LocalTee(imm.LocalIdx).LocalSet(tmp)
	ctx.Stack.Push(tmp, vt)
	return nil
}

type GlobalGetHandler struct{}

func (GlobalGetHandler) Handle(ctx *Context, instr wasm.Instruction) error {
	imm := instr.Imm.(wasm.GlobalImm)
	vt := ctx.GlobalType(imm.GlobalIdx)
	tmp := ctx.AllocTemp(vt)
	ctx.Emit.GlobalGet(imm.GlobalIdx).LocalSet(tmp)
	ctx.Stack.Push(tmp, vt)
	return nil
}

type GlobalSetHandler struct{}

func (GlobalSetHandler) Handle(ctx *Context, instr wasm.Instruction) error {
	imm := instr.Imm.(wasm.GlobalImm)
	ctx.Emit.LocalGet(ctx.Stack.Pop()).GlobalSet(imm.GlobalIdx)
	return nil
}

// ConstHandler materialises i32.const into a temporary.
type ConstHandler struct{}

func (ConstHandler) Handle(ctx *Context, instr wasm.Instruction) error {
	imm := instr.Imm.(wasm.I32Imm)
	tmp := ctx.AllocTemp(wasm.ValI32)
	ctx.Emit.I32Const(imm.Value).LocalSet(tmp)
	ctx.Stack.Push(tmp, wasm.ValI32)
	return nil
}

// OpHandler covers every instruction that pops Pops operands, pushes one
// i32 and keeps its immediate: arithmetic, comparisons, loads and
// memory.grow / memory.size. Operands are reloaded bottom first.
type OpHandler struct {
	Pops int
}

func (h OpHandler) Handle(ctx *Context, instr wasm.Instruction) error {
	args := make([]uint32, h.Pops)
	for i := h.Pops - 1; i >= 0; i-- {
		args[i] = ctx.Stack.Pop()
	}
	tmp := ctx.AllocTemp(wasm.ValI32)
	for _, a := range args {
		ctx.Emit.LocalGet(a)
	}
	ctx.Emit.EmitInstr(instr).LocalSet(tmp)
	ctx.Stack.Push(tmp, wasm.ValI32)
	return nil
}

// StoreHandler reloads address and value and performs the store.
type StoreHandler struct{}

func (StoreHandler) Handle(ctx *Context, instr wasm.Instruction) error {
	value := ctx.Stack.Pop()
	addr := ctx.Stack.Pop()
	ctx.Emit.LocalGet(addr).LocalGet(value).EmitInstr(instr)
	return nil
}

// SelectHandler takes its result type from the false operand.
type SelectHandler struct{}

func (SelectHandler) Handle(ctx *Context, _ wasm.Instruction) error {
	cond := ctx.Stack.Pop()
	falseVal := ctx.Stack.PopTyped()
	trueVal := ctx.Stack.Pop()
	tmp := ctx.AllocTemp(falseVal.Type)
	ctx.Emit.LocalGet(trueVal).LocalGet(falseVal.LocalIdx).LocalGet(cond).Select().LocalSet(tmp)
	ctx.Stack.Push(tmp, falseVal.Type)
	return nil
}

// RegisterDefaults installs handlers for every non-control opcode the wasm
// package decodes. Calls and control flow are handled by the engine.
func RegisterDefaults(r *Registry) {
	r.Register(wasm.OpNop, RawHandler{}, "nop")
	r.Register(wasm.OpUnreachable, RawHandler{}, "unreachable")
	r.Register(wasm.OpDrop, DropHandler{}, "drop")
	r.Register(wasm.OpSelect, SelectHandler{}, "select")

	r.Register(wasm.OpLocalGet, LocalGetHandler{}, "local.get")
	r.Register(wasm.OpLocalSet, LocalSetHandler{}, "local.set")
	r.Register(wasm.OpLocalTee, LocalTeeHandler{}, "local.tee")
	r.Register(wasm.OpGlobalGet, GlobalGetHandler{}, "global.get")
	r.Register(wasm.OpGlobalSet, GlobalSetHandler{}, "global.set")

	r.Register(wasm.OpI32Const, ConstHandler{}, "i32.const")

	for _, op := range []byte{wasm.OpI32Eqz, wasm.OpI32Load, wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpMemoryGrow} {
		r.Register(op, OpHandler{Pops: 1}, wasm.OpcodeName(op))
	}
	for _, op := range []byte{
		wasm.OpI32Eq, wasm.OpI32Ne, wasm.OpI32GtU,
		wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul,
		wasm.OpI32And, wasm.OpI32Or, wasm.OpI32Xor,
	} {
		r.Register(op, OpHandler{Pops: 2}, wasm.OpcodeName(op))
	}
	r.Register(wasm.OpMemorySize, OpHandler{Pops: 0}, "memory.size")

	r.Register(wasm.OpI32Store, StoreHandler{}, "i32.store")
	r.Register(wasm.OpI32Store8, StoreHandler{}, "i32.store8")
}
