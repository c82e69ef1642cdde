package engine

import (
	"fmt"

	"github.com/wippyai/bf-wasm/wasm"
)

// CallGraph maps a function index to the functions it calls directly.
type CallGraph map[uint32][]uint32

// BuildCallGraph records the direct call edges of every function body.
func BuildCallGraph(m *wasm.Module) (CallGraph, error) {
	cg := make(CallGraph)
	numImported := uint32(m.NumImportedFuncs())
	for i, body := range m.Code {
		caller := numImported + uint32(i)
		instrs, err := wasm.DecodeInstructions(body.Code)
		if err != nil {
			return nil, fmt.Errorf("decode func %d: %w", caller, err)
		}
		for _, instr := range instrs {
			if callee, ok := instr.GetCallTarget(); ok {
				cg[caller] = appendUnique(cg[caller], callee)
			}
		}
	}
	return cg, nil
}

// TransitiveCallers returns targets plus every function that can reach one
// of them through direct calls.
func (cg CallGraph) TransitiveCallers(targets map[uint32]bool) map[uint32]bool {
	result := make(map[uint32]bool, len(targets))
	for t := range targets {
		result[t] = true
	}
	for changed := true; changed; {
		changed = false
		for caller, callees := range cg {
			if result[caller] {
				continue
			}
			for _, callee := range callees {
				if result[callee] {
					result[caller] = true
					changed = true
					break
				}
			}
		}
	}
	return result
}

func appendUnique(s []uint32, v uint32) []uint32 {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
