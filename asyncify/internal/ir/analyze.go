package ir

import (
	"errors"
	"fmt"

	"github.com/wippyai/bf-wasm/wasm"
)

// ErrShape marks a function whose control flow cannot be instrumented.
var ErrShape = errors.New("unsupported control flow")

// Analysis is what Analyze found in a function.
type Analysis struct {
	CallSites      []int // flat indices of calls to async functions
	NeedsTransform bool
}

// Analyze collects the async call sites of tree and rejects shapes the
// rewind path cannot re-enter: typed blocks (their values would have to
// survive a flattened operand stack) and async calls inside an if arm
// (the arm is chosen by a condition that is not recomputed on rewind).
func Analyze(tree *SeqNode, asyncFuncs map[uint32]bool) (*Analysis, error) {
	a := &analyzer{async: asyncFuncs}
	if err := a.seq(tree, false); err != nil {
		return nil, err
	}
	if len(a.sites) > 0 && a.typed != nil {
		return nil, a.typed
	}
	return &Analysis{CallSites: a.sites, NeedsTransform: len(a.sites) > 0}, nil
}

type analyzer struct {
	async map[uint32]bool
	typed error // first typed block; only fatal when the function has call sites
	sites []int
}

func (a *analyzer) blockType(op byte, bt int32) {
	if bt != wasm.BlockTypeVoid && a.typed == nil {
		a.typed = fmt.Errorf("%w: %s with block type %d", ErrShape, wasm.OpcodeName(op), bt)
	}
}

func (a *analyzer) seq(s *SeqNode, inIf bool) error {
	if s == nil {
		return nil
	}
	for _, child := range s.Children {
		switch n := child.(type) {
		case *BlockNode:
			a.blockType(n.Opcode, n.Type)
			if err := a.seq(n.Body, inIf); err != nil {
				return err
			}
		case *IfNode:
			a.blockType(wasm.OpIf, n.Type)
			if err := a.seq(n.Then, true); err != nil {
				return err
			}
			if err := a.seq(n.Else, true); err != nil {
				return err
			}
		case *InstrNode:
			target, ok := n.Instr.GetCallTarget()
			if !ok || !a.async[target] {
				continue
			}
			if inIf {
				return fmt.Errorf("%w: call %d inside an if arm", ErrShape, target)
			}
			a.sites = append(a.sites, n.Index)
		}
	}
	return nil
}
