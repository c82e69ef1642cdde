package compiler

import "github.com/wippyai/bf-wasm/wasm"

// opNamePrefix prefixes operator function names in the name section.
const opNamePrefix = "op "

// functionNames lists every function's debug name in index order.
func functionNames(abi ABI) []wasm.NameAssoc {
	names := make([]wasm.NameAssoc, 0, FuncEntry+1)
	names = append(names,
		wasm.NameAssoc{Index: FuncInput, Name: abi.InputName()},
		wasm.NameAssoc{Index: FuncOutput, Name: abi.OutputName()},
	)
	for _, o := range callableOps {
		idx, _ := FuncIndex(o)
		names = append(names, wasm.NameAssoc{Index: idx, Name: opNamePrefix + o.String()})
	}
	return append(names, wasm.NameAssoc{Index: FuncEntry, Name: EntryName})
}
