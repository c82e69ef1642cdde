package engine

import (
	"github.com/wippyai/bf-wasm/wasm"
)

// Liveness decides which original locals an unwind has to save.
//
// A local is live at a call site when some path from the call reaches a
// read of it without passing a write. The analysis is one backward pass
// over the flat instruction list. Loops are handled conservatively: every
// local a loop touches counts as live at its header and at every call site
// inside it, which covers the back edges.
type Liveness struct {
	numLocals int
}

func NewLiveness(numLocals int) *Liveness {
	return &Liveness{numLocals: numLocals}
}

// loopSpan is a loop construct: header index, end index and the locals
// referenced between them.
type loopSpan struct {
	start, end int
	touched    *BitSet
}

// AtCallSites returns, for each instruction index in sites, the locals live
// just before that instruction.
func (l *Liveness) AtCallSites(instrs []wasm.Instruction, sites []int) map[int][]uint32 {
	if len(sites) == 0 {
		return nil
	}
	want := make(map[int]bool, len(sites))
	for _, s := range sites {
		want[s] = true
	}
	loops := l.loops(instrs)
	live := NewBitSet(l.numLocals)
	result := make(map[int][]uint32, len(sites))
	for i := len(instrs) - 1; i >= 0; i-- {
		switch instrs[i].Opcode {
		case wasm.OpLocalGet:
			live.Set(instrs[i].Imm.(wasm.LocalImm).LocalIdx)
		case wasm.OpLocalSet:
			live.Clear(instrs[i].Imm.(wasm.LocalImm).LocalIdx)
			// local.tee keeps the old liveness: the value also flows on.
		}
		for _, lp := range loops {
			if lp.start == i {
				live.Union(lp.touched)
			}
		}
		if !want[i] {
			continue
		}
		at := NewBitSet(l.numLocals)
		at.Union(live)
		for _, lp := range loops {
			if lp.start < i && i < lp.end {
				at.Union(lp.touched)
			}
		}
		result[i] = at.ToSlice()
	}
	return result
}

// loops returns every loop construct with the locals referenced in its body.
func (l *Liveness) loops(instrs []wasm.Instruction) []loopSpan {
	type open struct {
		start  int
		isLoop bool
	}
	var stack []open
	var result []loopSpan
	for i, instr := range instrs {
		switch instr.Opcode {
		case wasm.OpBlock, wasm.OpIf:
			stack = append(stack, open{start: i})
		case wasm.OpLoop:
			stack = append(stack, open{start: i, isLoop: true})
		case wasm.OpEnd:
			if len(stack) == 0 {
				continue
			}
			o := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !o.isLoop {
				continue
			}
			set := NewBitSet(l.numLocals)
			for j := o.start + 1; j < i; j++ {
				switch instrs[j].Opcode {
				case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
					set.Set(instrs[j].Imm.(wasm.LocalImm).LocalIdx)
				}
			}
			result = append(result, loopSpan{start: o.start, end: i, touched: set})
		}
	}
	return result
}
