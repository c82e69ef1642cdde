package engine

import (
	"github.com/wippyai/bf-wasm/asyncify/internal/codegen"
	"github.com/wippyai/bf-wasm/wasm"
)

// Names of the exported control functions.
const (
	ExportGetState    = "asyncify_get_state"
	ExportStartUnwind = "asyncify_start_unwind"
	ExportStopUnwind  = "asyncify_stop_unwind"
	ExportStartRewind = "asyncify_start_rewind"
	ExportStopRewind  = "asyncify_stop_rewind"
)

// HelperBuilder builds the bodies of the functions the host calls to drive
// the state machine.
type HelperBuilder struct {
	globals GlobalIndices
}

func NewHelperBuilder(globals GlobalIndices) *HelperBuilder {
	return &HelperBuilder{globals: globals}
}

// BuildGetState returns the current state.
func (h *HelperBuilder) BuildGetState() []byte {
	em := codegen.NewEmitter()
	em.GlobalGet(h.globals.StateGlobal).End()
	return em.Bytes()
}

// BuildStartUnwind moves Normal -> Unwinding and records the data pointer
// passed as the only parameter.
func (h *HelperBuilder) BuildStartUnwind() []byte {
	return h.buildStart(StateUnwinding)
}

// BuildStopUnwind moves Unwinding -> Normal.
func (h *HelperBuilder) BuildStopUnwind() []byte {
	return h.buildStop(StateUnwinding)
}

// BuildStartRewind moves Normal -> Rewinding and records the data pointer.
func (h *HelperBuilder) BuildStartRewind() []byte {
	return h.buildStart(StateRewinding)
}

// BuildStopRewind moves Rewinding -> Normal.
func (h *HelperBuilder) BuildStopRewind() []byte {
	return h.buildStop(StateRewinding)
}

func (h *HelperBuilder) buildStart(to int32) []byte {
	em := codegen.NewEmitter()
	h.emitExpectState(em, StateNormal)
	em.I32Const(to).GlobalSet(h.globals.StateGlobal)
	em.LocalGet(0).GlobalSet(h.globals.DataGlobal)
	h.emitStackValidation(em)
	em.End()
	return em.Bytes()
}

func (h *HelperBuilder) buildStop(from int32) []byte {
	em := codegen.NewEmitter()
	h.emitExpectState(em, from)
	em.I32Const(StateNormal).GlobalSet(h.globals.StateGlobal)
	h.emitStackValidation(em)
	em.End()
	return em.Bytes()
}

// emitExpectState traps unless the state global equals state.
func (h *HelperBuilder) emitExpectState(em *codegen.Emitter, state int32) {
	em.GlobalGet(h.globals.StateGlobal).
		I32Const(state).
		I32Ne().
		If(codegen.BlockVoid).Unreachable().End()
}

// emitStackValidation traps when stack_ptr > stack_end.
// Data layout: [stack_ptr at 0, stack_end at 4].
func (h *HelperBuilder) emitStackValidation(em *codegen.Emitter) {
	em.GlobalGet(h.globals.DataGlobal).I32Load(2, 0)
	em.GlobalGet(h.globals.DataGlobal).I32Load(2, 4)
	em.I32GtU()
	em.If(codegen.BlockVoid).Unreachable().End()
}

// ExportManager appends the control functions to a module and exports them.
type ExportManager struct {
	module  *wasm.Module
	globals GlobalIndices
}

func NewExportManager(m *wasm.Module, globals GlobalIndices) *ExportManager {
	return &ExportManager{module: m, globals: globals}
}

// AddAsyncifyExports adds and exports all five control functions.
func (em *ExportManager) AddAsyncifyExports() {
	b := NewHelperBuilder(em.globals)

	getState := em.module.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	em.addExport(ExportGetState, em.addFunction(getState, b.BuildGetState()))

	ptrVoid := em.module.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	voidVoid := em.module.AddType(wasm.FuncType{})
	em.addExport(ExportStartUnwind, em.addFunction(ptrVoid, b.BuildStartUnwind()))
	em.addExport(ExportStopUnwind, em.addFunction(voidVoid, b.BuildStopUnwind()))
	em.addExport(ExportStartRewind, em.addFunction(ptrVoid, b.BuildStartRewind()))
	em.addExport(ExportStopRewind, em.addFunction(voidVoid, b.BuildStopRewind()))
}

func (em *ExportManager) addFunction(typeIdx uint32, code []byte) uint32 {
	em.module.Funcs = append(em.module.Funcs, typeIdx)
	em.module.Code = append(em.module.Code, wasm.FuncBody{Code: code})
	return uint32(em.module.NumImportedFuncs() + len(em.module.Code) - 1)
}

func (em *ExportManager) addExport(name string, funcIdx uint32) {
	em.module.Exports = append(em.module.Exports, wasm.Export{
		Name: name,
		Kind: wasm.KindFunc,
		Idx:  funcIdx,
	})
}
