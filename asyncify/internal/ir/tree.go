// Package ir parses function bodies into a control flow tree and checks
// that a function's shape can be instrumented.
package ir

import "github.com/wippyai/bf-wasm/wasm"

// Node is an element of the control flow tree.
type Node interface {
	isNode()
}

// SeqNode is a straight run of nodes.
type SeqNode struct {
	Children []Node
}

// BlockNode is a block or loop.
type BlockNode struct {
	Body   *SeqNode
	Type   int32
	Opcode byte
}

// IfNode is an if with an optional else arm.
type IfNode struct {
	Then *SeqNode
	Else *SeqNode
	Type int32
}

// InstrNode is any other instruction.
type InstrNode struct {
	Instr wasm.Instruction
	Index int // position in the flat instruction list
}

func (*SeqNode) isNode()   {}
func (*BlockNode) isNode() {}
func (*IfNode) isNode()    {}
func (*InstrNode) isNode() {}

// Parse builds the tree for a decoded function body. The closing end of
// the body terminates the top-level sequence.
func Parse(instrs []wasm.Instruction) *SeqNode {
	p := &parser{instrs: instrs}
	return p.seq()
}

type parser struct {
	instrs []wasm.Instruction
	pos    int
}

func (p *parser) seq() *SeqNode {
	s := &SeqNode{}
	for p.pos < len(p.instrs) {
		instr := p.instrs[p.pos]
		switch instr.Opcode {
		case wasm.OpEnd:
			p.pos++
			return s
		case wasm.OpElse:
			return s
		case wasm.OpBlock, wasm.OpLoop:
			p.pos++
			bt := blockType(instr)
			s.Children = append(s.Children, &BlockNode{Opcode: instr.Opcode, Type: bt, Body: p.seq()})
		case wasm.OpIf:
			p.pos++
			n := &IfNode{Type: blockType(instr), Then: p.seq()}
			if p.pos < len(p.instrs) && p.instrs[p.pos].Opcode == wasm.OpElse {
				p.pos++
				n.Else = p.seq()
			}
			s.Children = append(s.Children, n)
		default:
			s.Children = append(s.Children, &InstrNode{Instr: instr, Index: p.pos})
			p.pos++
		}
	}
	return s
}

func blockType(instr wasm.Instruction) int32 {
	if imm, ok := instr.Imm.(wasm.BlockImm); ok {
		return imm.Type
	}
	return wasm.BlockTypeVoid
}
