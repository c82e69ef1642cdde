package wasm

import (
	"bytes"
	"fmt"
)

// Opcode constants are defined in constants.go

// Instruction represents a decoded WebAssembly instruction
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type for block, loop and if instructions.
type BlockImm struct {
	Type int32 // Block type: -64=void, -1=i32, >=0=type index
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// CallImm holds the function index for call instruction.
type CallImm struct {
	FuncIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
type MemoryImm struct {
	Align  uint32
	Offset uint32
}

// MemoryIdxImm holds memory index for memory.size, memory.grow
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds the constant value for i32.const instruction.
type I32Imm struct {
	Value int32
}

// GetCallTarget returns the call target if this is a call instruction
func (i Instruction) GetCallTarget() (uint32, bool) {
	if i.Opcode == OpCall {
		if imm, ok := i.Imm.(CallImm); ok {
			return imm.FuncIdx, true
		}
	}
	return 0, false
}

// String renders the instruction in text format, e.g. "i32.const 1".
func (i Instruction) String() string {
	name := OpcodeName(i.Opcode)
	if name == "" {
		name = fmt.Sprintf("<0x%02x>", i.Opcode)
	}
	switch imm := i.Imm.(type) {
	case BlockImm:
		if imm.Type == BlockTypeVoid {
			return name
		}
		return fmt.Sprintf("%s %d", name, imm.Type)
	case BranchImm:
		return fmt.Sprintf("%s %d", name, imm.LabelIdx)
	case CallImm:
		return fmt.Sprintf("%s %d", name, imm.FuncIdx)
	case LocalImm:
		return fmt.Sprintf("%s %d", name, imm.LocalIdx)
	case GlobalImm:
		return fmt.Sprintf("%s %d", name, imm.GlobalIdx)
	case MemoryImm:
		if imm.Align == 0 && imm.Offset == 0 {
			return name
		}
		return fmt.Sprintf("%s offset=%d align=%d", name, imm.Offset, imm.Align)
	case MemoryIdxImm:
		return name
	case I32Imm:
		return fmt.Sprintf("%s %d", name, imm.Value)
	}
	return name
}

// DecodeInstructions decodes a sequence of instructions from raw bytes
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := bytes.NewReader(code)
	var instrs []Instruction

	for r.Len() > 0 {
		pos := len(code) - r.Len()
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}

		instr := Instruction{Opcode: op}
		switch op {
		case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect,
			OpI32Eqz, OpI32Eq, OpI32Ne, OpI32GtU, OpI32Add, OpI32Sub, OpI32Mul,
			OpI32And, OpI32Or, OpI32Xor:
			// no immediates

		case OpBlock, OpLoop, OpIf:
			bt, err := ReadLEB128s(r)
			if err != nil {
				return nil, fmt.Errorf("offset %d: block type: %w", pos, err)
			}
			instr.Imm = BlockImm{Type: bt}

		case OpBr, OpBrIf:
			idx, err := ReadLEB128u(r)
			if err != nil {
				return nil, fmt.Errorf("offset %d: label: %w", pos, err)
			}
			instr.Imm = BranchImm{LabelIdx: idx}

		case OpCall:
			idx, err := ReadLEB128u(r)
			if err != nil {
				return nil, fmt.Errorf("offset %d: function index: %w", pos, err)
			}
			instr.Imm = CallImm{FuncIdx: idx}

		case OpLocalGet, OpLocalSet, OpLocalTee:
			idx, err := ReadLEB128u(r)
			if err != nil {
				return nil, fmt.Errorf("offset %d: local index: %w", pos, err)
			}
			instr.Imm = LocalImm{LocalIdx: idx}

		case OpGlobalGet, OpGlobalSet:
			idx, err := ReadLEB128u(r)
			if err != nil {
				return nil, fmt.Errorf("offset %d: global index: %w", pos, err)
			}
			instr.Imm = GlobalImm{GlobalIdx: idx}

		case OpI32Load, OpI32Load8S, OpI32Load8U, OpI32Store, OpI32Store8:
			imm, err := readMemArg(r)
			if err != nil {
				return nil, fmt.Errorf("offset %d: memarg: %w", pos, err)
			}
			instr.Imm = imm

		case OpMemorySize, OpMemoryGrow:
			idx, err := ReadLEB128u(r)
			if err != nil {
				return nil, fmt.Errorf("offset %d: memory index: %w", pos, err)
			}
			instr.Imm = MemoryIdxImm{MemIdx: idx}

		case OpI32Const:
			v, err := ReadLEB128s(r)
			if err != nil {
				return nil, fmt.Errorf("offset %d: i32 constant: %w", pos, err)
			}
			instr.Imm = I32Imm{Value: v}

		default:
			return nil, fmt.Errorf("offset %d: unsupported opcode 0x%02x", pos, op)
		}
		instrs = append(instrs, instr)
	}

	return instrs, nil
}

// EncodeInstructionTo appends the binary encoding of instr to buf.
func EncodeInstructionTo(buf *bytes.Buffer, instr *Instruction) {
	buf.WriteByte(instr.Opcode)
	switch imm := instr.Imm.(type) {
	case BlockImm:
		WriteLEB128s(buf, imm.Type)
	case BranchImm:
		WriteLEB128u(buf, imm.LabelIdx)
	case CallImm:
		WriteLEB128u(buf, imm.FuncIdx)
	case LocalImm:
		WriteLEB128u(buf, imm.LocalIdx)
	case GlobalImm:
		WriteLEB128u(buf, imm.GlobalIdx)
	case MemoryImm:
		writeMemArg(buf, imm)
	case MemoryIdxImm:
		WriteLEB128u(buf, imm.MemIdx)
	case I32Imm:
		WriteLEB128s(buf, imm.Value)
	}
}

// EncodeInstructionsTo appends the encoding of every instruction to buf.
func EncodeInstructionsTo(buf *bytes.Buffer, instrs []Instruction) {
	for i := range instrs {
		EncodeInstructionTo(buf, &instrs[i])
	}
}

// EncodeInstructions encodes instructions to bytecode.
func EncodeInstructions(instrs []Instruction) []byte {
	var buf bytes.Buffer
	EncodeInstructionsTo(&buf, instrs)
	return buf.Bytes()
}

func readMemArg(r *bytes.Reader) (MemoryImm, error) {
	align, err := ReadLEB128u(r)
	if err != nil {
		return MemoryImm{}, err
	}
	offset, err := ReadLEB128u(r)
	if err != nil {
		return MemoryImm{}, err
	}
	return MemoryImm{Align: align, Offset: offset}, nil
}

func writeMemArg(buf *bytes.Buffer, imm MemoryImm) {
	WriteLEB128u(buf, imm.Align)
	WriteLEB128u(buf, imm.Offset)
}
