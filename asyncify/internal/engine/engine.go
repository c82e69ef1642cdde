package engine

import (
	"errors"
	"fmt"

	"github.com/wippyai/bf-wasm/asyncify/internal/codegen"
	"github.com/wippyai/bf-wasm/asyncify/internal/handler"
	"github.com/wippyai/bf-wasm/wasm"
)

// Asyncify state constants.
const (
	StateNormal    int32 = 0
	StateUnwinding int32 = 1
	StateRewinding int32 = 2
)

// ErrParse marks input that is not a module the wasm package can decode.
var ErrParse = errors.New("parse module")

// ImportMatcher decides which imports may suspend.
//
// Every function that can transitively call a matching import is
// instrumented.
type ImportMatcher interface {
	Match(module, name string) bool
}

// FunctionMatcher selects functions by export name for the add and remove
// lists.
type FunctionMatcher interface {
	MatchFunction(name string) bool
}

// GlobalIndices holds the indices of the globals added to the module.
type GlobalIndices struct {
	StateGlobal uint32 // 0=normal, 1=unwinding, 2=rewinding
	DataGlobal  uint32 // address of the data struct
}

// Config configures the transformation engine.
type Config struct {
	Matcher       ImportMatcher
	AddList       FunctionMatcher
	RemoveList    FunctionMatcher
	Registry      *handler.Registry
	IgnoreImports bool
	Asserts       bool
	ExportGlobals bool
}

// Engine runs the transformation pipeline. It keeps no state between
// Transform calls.
type Engine struct {
	matcher       ImportMatcher
	addList       FunctionMatcher
	removeList    FunctionMatcher
	registry      *handler.Registry
	ignoreImports bool
	asserts       bool
	exportGlobals bool
}

func New(cfg Config) *Engine {
	reg := cfg.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Engine{
		matcher:       cfg.Matcher,
		addList:       cfg.AddList,
		removeList:    cfg.RemoveList,
		registry:      reg,
		ignoreImports: cfg.IgnoreImports,
		asserts:       cfg.Asserts,
		exportGlobals: cfg.ExportGlobals,
	}
}

// DefaultRegistry returns a registry with every standard handler.
func DefaultRegistry() *handler.Registry {
	r := handler.NewRegistry()
	handler.RegisterDefaults(r)
	return r
}

// Transform instruments a module:
//  1. parse the binary
//  2. add the state and data globals
//  3. find the functions that can reach an async import
//  4. instrument each of them
//  5. add the control function exports
//  6. encode
func (e *Engine) Transform(wasmData []byte) ([]byte, error) {
	m, err := wasm.ParseModule(wasmData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if e.isPreAsyncified(m) {
		return nil, fmt.Errorf("module is already asyncified (has asyncify exports)")
	}

	globals := e.addGlobals(m)
	e.ensureMemory(m)

	asyncFuncs, err := e.findAsyncFuncs(m)
	if err != nil {
		return nil, err
	}

	numImported := uint32(m.NumImportedFuncs())
	transformer := NewFunctionTransformer(e.registry, m, globals)
	for i := range m.Code {
		funcIdx := numImported + uint32(i)
		if !asyncFuncs[funcIdx] {
			continue
		}
		if err := transformer.Transform(funcIdx, &m.Code[i], asyncFuncs); err != nil {
			return nil, fmt.Errorf("transform func %d: %w", funcIdx, err)
		}
	}

	if e.asserts {
		e.addAssertions(m, globals, asyncFuncs)
	}
	e.addExports(m, globals)
	return m.Encode(), nil
}

// addAssertions makes every non-instrumented function trap when entered
// outside the normal state.
func (e *Engine) addAssertions(m *wasm.Module, globals GlobalIndices, asyncFuncs map[uint32]bool) {
	numImported := uint32(m.NumImportedFuncs())
	for i := range m.Code {
		if asyncFuncs[numImported+uint32(i)] {
			continue
		}
		body := &m.Code[i]
		em := codegen.NewEmitter()
		em.GlobalGet(globals.StateGlobal).
			I32Const(StateNormal).
			I32Ne().
			If(codegen.BlockVoid).Unreachable().End()
		em.EmitRaw(body.Code)
		body.Code = em.Bytes()
	}
}

// addGlobals appends the two mutable i32 globals, both starting at zero.
func (e *Engine) addGlobals(m *wasm.Module) GlobalIndices {
	base := uint32(len(m.Globals))
	zero := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 0}},
		{Opcode: wasm.OpEnd},
	})
	for range 2 {
		m.Globals = append(m.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
			Init: zero,
		})
	}
	return GlobalIndices{StateGlobal: base, DataGlobal: base + 1}
}

// ensureMemory adds a one page memory if the module has none; frames need
// somewhere to live.
func (e *Engine) ensureMemory(m *wasm.Module) {
	if m.NumImportedMemories()+len(m.Memories) > 0 {
		return
	}
	m.Memories = append(m.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: 1}})
}

// isPreAsyncified reports whether all control functions are already
// exported by defined functions.
func (e *Engine) isPreAsyncified(m *wasm.Module) bool {
	names := map[string]bool{
		ExportGetState:    true,
		ExportStartUnwind: true,
		ExportStopUnwind:  true,
		ExportStartRewind: true,
		ExportStopRewind:  true,
	}
	numImported := uint32(m.NumImportedFuncs())
	found := 0
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindFunc && names[exp.Name] && exp.Idx >= numImported {
			found++
		}
	}
	return found >= len(names)
}

// findAsyncFuncs returns the functions to instrument.
func (e *Engine) findAsyncFuncs(m *wasm.Module) (map[uint32]bool, error) {
	exportNames := make(map[uint32]string)
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindFunc {
			exportNames[exp.Idx] = exp.Name
		}
	}

	cg, err := BuildCallGraph(m)
	if err != nil {
		return nil, fmt.Errorf("build call graph: %w", err)
	}

	asyncImports := make(map[uint32]bool)
	if e.matcher != nil && !e.ignoreImports {
		importIdx := uint32(0)
		for _, imp := range m.Imports {
			if imp.Desc.Kind != wasm.KindFunc {
				continue
			}
			if e.matcher.Match(imp.Module, imp.Name) {
				asyncImports[importIdx] = true
			}
			importIdx++
		}
	}
	result := cg.TransitiveCallers(asyncImports)

	if e.addList != nil {
		for funcIdx, name := range exportNames {
			if e.addList.MatchFunction(name) {
				result[funcIdx] = true
			}
		}
	}
	// The remove list wins over everything else.
	if e.removeList != nil {
		for funcIdx, name := range exportNames {
			if e.removeList.MatchFunction(name) {
				delete(result, funcIdx)
			}
		}
	}
	return result, nil
}

// addExports adds the control functions and, when configured, exports the
// two globals.
func (e *Engine) addExports(m *wasm.Module, globals GlobalIndices) {
	NewExportManager(m, globals).AddAsyncifyExports()

	if e.exportGlobals {
		m.Exports = append(m.Exports,
			wasm.Export{Name: "asyncify_state", Kind: wasm.KindGlobal, Idx: globals.StateGlobal},
			wasm.Export{Name: "asyncify_data", Kind: wasm.KindGlobal, Idx: globals.DataGlobal},
		)
	}
}

// IsParseError reports whether err came from decoding the input module.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParse)
}
