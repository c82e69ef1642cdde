package compiler

import (
	"fmt"

	"github.com/wippyai/bf-wasm/wasm"
)

var (
	pointer   = wasm.GlobalImm{GlobalIdx: 0}
	byteAlign = wasm.MemoryImm{}
)

func globalGet() wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: pointer}
}

func i32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func call(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: idx}}
}

func op(code byte) wasm.Instruction {
	return wasm.Instruction{Opcode: code}
}

func mem(code byte) wasm.Instruction {
	return wasm.Instruction{Opcode: code, Imm: byteAlign}
}

// Template returns the instruction sequence for op under abi. Callable
// operators yield their function body without the trailing end; brackets
// yield the fragment inlined into the entry function. OpIgnore yields nil.
func Template(o Op, abi ABI) []wasm.Instruction {
	switch o {
	case OpIncrement, OpDecrement:
		arith := wasm.OpI32Add
		if o == OpDecrement {
			arith = wasm.OpI32Sub
		}
		return []wasm.Instruction{
			globalGet(),
			globalGet(),
			mem(wasm.OpI32Load8U),
			i32Const(1),
			op(arith),
			mem(wasm.OpI32Store8),
		}

	case OpRight, OpLeft:
		arith := wasm.OpI32Add
		if o == OpLeft {
			arith = wasm.OpI32Sub
		}
		return []wasm.Instruction{
			globalGet(),
			i32Const(1),
			op(arith),
			{Opcode: wasm.OpGlobalSet, Imm: pointer},
		}

	case OpOutput:
		if abi == ABIDescriptor {
			return descriptorCall(StdoutFD, FuncOutput)
		}
		return []wasm.Instruction{
			globalGet(),
			mem(wasm.OpI32Load8U),
			call(FuncOutput),
		}

	case OpInput:
		if abi == ABIDescriptor {
			return descriptorCall(StdinFD, FuncInput)
		}
		return []wasm.Instruction{
			globalGet(),
			call(FuncInput),
			mem(wasm.OpI32Store8),
		}

	case OpLoopOpen:
		return []wasm.Instruction{
			{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
			{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
			globalGet(),
			mem(wasm.OpI32Load8U),
			op(wasm.OpI32Eqz),
			{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 1}},
		}

	case OpLoopClose:
		return []wasm.Instruction{
			{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: 0}},
			op(wasm.OpEnd),
			op(wasm.OpEnd),
		}

	case OpIgnore:
		return nil
	}
	panic(fmt.Sprintf("compiler: unknown operator %d", o))
}

// descriptorCall points a one byte iovec at the current cell and transfers
// it through fd. The errno result is dropped.
func descriptorCall(fd int32, fn uint32) []wasm.Instruction {
	return []wasm.Instruction{
		i32Const(IovecAddr),
		globalGet(),
		{Opcode: wasm.OpI32Store, Imm: byteAlign},
		i32Const(IovecLenAddr),
		i32Const(1),
		{Opcode: wasm.OpI32Store, Imm: byteAlign},
		i32Const(fd),
		i32Const(IovecAddr),
		i32Const(1),
		i32Const(NWrittenAddr),
		call(fn),
		op(wasm.OpDrop),
	}
}
