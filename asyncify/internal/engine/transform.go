package engine

import (
	"fmt"
	"slices"

	"github.com/wippyai/bf-wasm/asyncify/internal/codegen"
	"github.com/wippyai/bf-wasm/asyncify/internal/handler"
	"github.com/wippyai/bf-wasm/asyncify/internal/ir"
	"github.com/wippyai/bf-wasm/wasm"
)

// Scratch locals appended after the original locals of every instrumented
// function, relative to the first free index.
const (
	scratchCallIndexSave = iota
	scratchCallIndexRewind
	scratchStackPtr
	numScratch
)

// frameHeader is the size of the call index stored before the saved locals.
const frameHeader = 4

// FunctionTransformer instruments single functions for unwinding and
// rewinding.
//
// The instrumented body looks like this:
//
//	if state == rewinding { pop frame; restore saved locals; load call index }
//	block (result i32)           ;; unwind target, carries the call index
//	  block                      ;; target of branches to the function label
//	    flattened body
//	  end
//	  return
//	end
//	save call index and locals into a new frame
//
// Every value the original code kept on the operand stack lives in a local
// instead, so an unwind only has to save locals. Non-control instructions
// run only in the normal state; on rewind control flow is walked straight
// down (no branch is taken) until the call that unwound is reached again.
type FunctionTransformer struct {
	registry *handler.Registry
	module   *wasm.Module
	globals  GlobalIndices
}

func NewFunctionTransformer(reg *handler.Registry, m *wasm.Module, globals GlobalIndices) *FunctionTransformer {
	return &FunctionTransformer{registry: reg, module: m, globals: globals}
}

// CallSite is an instrumented call to an async function.
type CallSite struct {
	Index  int32    // stored in the frame to find the call again on rewind
	Callee uint32   // function index
	Saved  []uint32 // locals that must survive the unwind
}

// funcState is the per-function state of one Transform call.
type funcState struct {
	t         *FunctionTransformer
	ctx       *handler.Context
	async     map[uint32]bool
	live      map[int][]uint32
	results   []wasm.ValType
	sites     []CallSite
	heights   []int // stack height at entry of each open construct
	scratch   uint32
	depth     uint32
	guardOpen bool
}

// Transform rewrites body in place. Functions without async call sites are
// left untouched.
func (t *FunctionTransformer) Transform(funcIdx uint32, body *wasm.FuncBody, asyncFuncs map[uint32]bool) error {
	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	analysis, err := ir.Analyze(ir.Parse(instrs), asyncFuncs)
	if err != nil {
		return err
	}
	if !analysis.NeedsTransform {
		return nil
	}

	ft := t.module.GetFuncType(funcIdx)
	if ft == nil {
		return fmt.Errorf("function %d has no type", funcIdx)
	}
	types := slices.Clone(ft.Params)
	for _, group := range body.Locals {
		for range group.Count {
			types = append(types, group.ValType)
		}
	}
	for i, vt := range types {
		if vt != wasm.ValI32 {
			return fmt.Errorf("local %d has type %s: only i32 locals can be saved", i, vt)
		}
	}
	for _, site := range analysis.CallSites {
		target, _ := instrs[site].GetCallTarget()
		callee := t.module.GetFuncType(target)
		if callee == nil {
			return fmt.Errorf("call to function %d without a type", target)
		}
		for _, vt := range slices.Concat(callee.Params, callee.Results) {
			if vt != wasm.ValI32 {
				return fmt.Errorf("call to function %d passes %s: only i32 values can be saved", target, vt)
			}
		}
	}

	numOrig := uint32(len(types))
	newBody := wasm.FuncBody{Locals: slices.Clone(body.Locals)}
	for range numScratch {
		handler.AppendLocal(&newBody, wasm.ValI32)
		types = append(types, wasm.ValI32)
	}

	emit := codegen.GetEmitter(len(body.Code) * 4)
	defer codegen.PutEmitter(emit)

	locals := handler.NewLocals(uint32(len(types)), &newBody, types)
	ctx := handler.NewContext(emit, handler.NewStack(numOrig+scratchCallIndexSave), locals, t.globals.StateGlobal, t.globals.DataGlobal)
	ctx.Module = t.module

	fs := &funcState{
		t:       t,
		ctx:     ctx,
		async:   asyncFuncs,
		live:    NewLiveness(int(numOrig)).AtCallSites(instrs, analysis.CallSites),
		results: ft.Results,
		scratch: numOrig,
	}
	// The last instruction is the end of the function body.
	for i, instr := range instrs[:len(instrs)-1] {
		if err := fs.emitInstr(i, instr); err != nil {
			return fmt.Errorf("instruction %d (%s): %w", i, instr, err)
		}
	}
	fs.closeGuard()

	newBody.Code = fs.assemble()
	*body = newBody
	return nil
}

// assemble wraps the flattened body with the prelude and the save path.
func (fs *funcState) assemble() []byte {
	saved := fs.savedLocals()
	frameSize := int32(frameHeader + 4*len(saved))
	data := fs.t.globals.DataGlobal

	em := codegen.NewEmitter()
	fs.emitPrelude(em, saved, frameSize)

	em.Block(codegen.BlockI32).Block(codegen.BlockVoid)
	em.EmitRaw(fs.ctx.Emit.Bytes())
	em.End()
	for _, e := range fs.topEntries(len(fs.results)) {
		em.LocalGet(e)
	}
	em.Return().End()

	// Only reached by an unwind branch, with the call index on the stack.
	callIndex := fs.scratch + scratchCallIndexSave
	sp := fs.scratch + scratchStackPtr
	em.LocalSet(callIndex)
	em.GlobalGet(data).I32Load(2, 0).LocalSet(sp)
	em.LocalGet(sp).I32Const(frameSize).I32Add().
		GlobalGet(data).I32Load(2, 4).
		I32GtU().
		If(codegen.BlockVoid).Unreachable().End()
	em.LocalGet(sp).LocalGet(callIndex).I32Store(2, 0)
	for i, idx := range saved {
		em.LocalGet(sp).LocalGet(idx).I32Store(2, uint32(frameHeader+4*i))
	}
	em.GlobalGet(data).LocalGet(sp).I32Const(frameSize).I32Add().I32Store(2, 0)
	for range fs.results {
		em.I32Const(0)
	}
	em.End()
	return em.Bytes()
}

// emitPrelude pops this function's frame when rewinding.
func (fs *funcState) emitPrelude(em *codegen.Emitter, saved []uint32, frameSize int32) {
	data := fs.t.globals.DataGlobal
	em.IfState(fs.t.globals.StateGlobal, StateRewinding, codegen.BlockVoid)
	em.GlobalGet(data).
		GlobalGet(data).I32Load(2, 0).I32Const(frameSize).I32Sub().
		I32Store(2, 0)
	em.GlobalGet(data).I32Load(2, 0).I32Load(2, 0).LocalSet(fs.scratch + scratchCallIndexRewind)
	for i, idx := range saved {
		em.GlobalGet(data).I32Load(2, 0).I32Load(2, uint32(frameHeader+4*i)).LocalSet(idx)
	}
	em.End()
}

// savedLocals is the union of what every call site needs, in index order.
func (fs *funcState) savedLocals() []uint32 {
	set := NewBitSet(0)
	for _, s := range fs.sites {
		for _, idx := range s.Saved {
			set.Set(idx)
		}
	}
	return set.ToSlice()
}

// topEntries returns the locals of the top n stack slots, bottom first.
func (fs *funcState) topEntries(n int) []uint32 {
	entries := fs.ctx.Stack.Entries()
	out := make([]uint32, n)
	for i := n - 1; i >= 0; i-- {
		if k := len(entries) - n + i; k >= 0 {
			out[i] = entries[k].LocalIdx
		} else {
			out[i] = fs.scratch + scratchCallIndexSave
		}
	}
	return out
}

func (fs *funcState) openGuard() {
	if !fs.guardOpen {
		fs.ctx.Emit.IfState(fs.t.globals.StateGlobal, StateNormal, codegen.BlockVoid)
		fs.guardOpen = true
	}
}

func (fs *funcState) closeGuard() {
	if fs.guardOpen {
		fs.ctx.Emit.End()
		fs.guardOpen = false
	}
}

// truncate drops stack slots above height; control flow merges restore the
// height recorded when the construct was entered.
func (fs *funcState) truncate(height int) {
	for fs.ctx.Stack.Len() > height {
		fs.ctx.Stack.Pop()
	}
}

// emitNotRewinding leaves cond, or 0 while rewinding, on the stack.
func (fs *funcState) emitNotRewinding(cond uint32) {
	fs.ctx.Emit.I32Const(0).LocalGet(cond).
		StateCheck(fs.t.globals.StateGlobal, StateRewinding).
		Select()
}

func (fs *funcState) emitInstr(idx int, instr wasm.Instruction) error {
	em := fs.ctx.Emit
	state := fs.t.globals.StateGlobal

	switch instr.Opcode {
	case wasm.OpBlock, wasm.OpLoop:
		fs.closeGuard()
		em.EmitInstr(instr)
		fs.heights = append(fs.heights, fs.ctx.Stack.Len())
		fs.depth++
		return nil

	case wasm.OpIf:
		cond := fs.ctx.Stack.Pop()
		fs.closeGuard()
		fs.emitNotRewinding(cond)
		em.EmitInstr(instr)
		fs.heights = append(fs.heights, fs.ctx.Stack.Len())
		fs.depth++
		return nil

	case wasm.OpElse:
		fs.closeGuard()
		em.Else()
		if n := len(fs.heights); n > 0 {
			fs.truncate(fs.heights[n-1])
		}
		return nil

	case wasm.OpEnd:
		fs.closeGuard()
		em.End()
		if n := len(fs.heights); n > 0 {
			fs.truncate(fs.heights[n-1])
			fs.heights = fs.heights[:n-1]
		}
		fs.depth--
		return nil

	case wasm.OpBr:
		label := instr.Imm.(wasm.BranchImm).LabelIdx
		if err := fs.checkLabel(label); err != nil {
			return err
		}
		fs.closeGuard()
		em.GlobalGet(state).I32Const(StateRewinding).I32Ne().BrIf(label)
		return nil

	case wasm.OpBrIf:
		label := instr.Imm.(wasm.BranchImm).LabelIdx
		if err := fs.checkLabel(label); err != nil {
			return err
		}
		cond := fs.ctx.Stack.Pop()
		fs.closeGuard()
		fs.emitNotRewinding(cond)
		em.BrIf(label)
		return nil

	case wasm.OpReturn:
		values := fs.topEntries(len(fs.results))
		fs.truncate(max(fs.ctx.Stack.Len()-len(fs.results), 0))
		fs.closeGuard()
		em.GlobalGet(state).I32Const(StateRewinding).I32Ne().If(codegen.BlockVoid)
		for _, v := range values {
			em.LocalGet(v)
		}
		em.Return().End()
		return nil

	case wasm.OpCall:
		target := instr.Imm.(wasm.CallImm).FuncIdx
		if fs.async[target] {
			return fs.emitAsyncCall(idx, target)
		}
		return fs.emitNonAsyncCall(target)
	}

	h := fs.t.registry.Get(instr.Opcode)
	if h == nil {
		return fmt.Errorf("no handler for %s", wasm.OpcodeName(instr.Opcode))
	}
	fs.openGuard()
	return h.Handle(fs.ctx, instr)
}

// checkLabel rejects branches that leave the function with values: the
// flattened body has no operand stack to carry them.
func (fs *funcState) checkLabel(label uint32) error {
	if label == fs.depth && len(fs.results) > 0 {
		return fmt.Errorf("%w: branch to the function label with results", ir.ErrShape)
	}
	return nil
}

// popArgs pops n call arguments and returns them bottom first.
func (fs *funcState) popArgs(n int) []uint32 {
	args := make([]uint32, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = fs.ctx.Stack.Pop()
	}
	return args
}

func (fs *funcState) emitNonAsyncCall(target uint32) error {
	ft := fs.t.module.GetFuncType(target)
	if ft == nil {
		return fmt.Errorf("call to function %d without a type", target)
	}
	args := fs.popArgs(len(ft.Params))
	results := make([]uint32, len(ft.Results))
	for i, vt := range ft.Results {
		results[i] = fs.ctx.AllocTemp(vt)
	}

	fs.openGuard()
	em := fs.ctx.Emit
	for _, a := range args {
		em.LocalGet(a)
	}
	em.Call(target)
	for i := len(results) - 1; i >= 0; i-- {
		em.LocalSet(results[i])
	}
	for i, r := range results {
		fs.ctx.Stack.Push(r, ft.Results[i])
	}
	return nil
}

// emitAsyncCall emits a call that may unwind. The call runs in the normal
// state, or while rewinding when it is the call recorded in the frame.
// If the callee started an unwind the call index is carried to the save
// path.
func (fs *funcState) emitAsyncCall(idx int, target uint32) error {
	ft := fs.t.module.GetFuncType(target)
	args := fs.popArgs(len(ft.Params))

	site := CallSite{Index: int32(len(fs.sites)), Callee: target}
	site.Saved = append(site.Saved, fs.live[idx]...)
	for _, e := range fs.ctx.Stack.Entries() {
		if e.Type != wasm.ValI32 {
			return fmt.Errorf("%s value on the stack across call %d", e.Type, target)
		}
		site.Saved = append(site.Saved, e.LocalIdx)
	}
	site.Saved = append(site.Saved, args...)
	fs.sites = append(fs.sites, site)

	results := make([]uint32, len(ft.Results))
	for i := range ft.Results {
		results[i] = fs.ctx.AllocTemp(wasm.ValI32)
	}

	fs.closeGuard()
	em := fs.ctx.Emit
	state := fs.t.globals.StateGlobal

	em.StateCheck(state, StateNormal)
	em.LocalGet(fs.scratch + scratchCallIndexRewind).I32Const(site.Index).I32Eq().
		StateCheck(state, StateRewinding).
		I32And()
	em.I32Or().If(codegen.BlockVoid)
	for _, a := range args {
		em.LocalGet(a)
	}
	em.Call(target)
	for i := len(results) - 1; i >= 0; i-- {
		em.LocalSet(results[i])
	}
	// Labels from here: unwind if, call if, the open original constructs,
	// the function-label block, then the unwind block.
	em.IfState(state, StateUnwinding, codegen.BlockVoid).
		I32Const(site.Index).Br(fs.depth + 3).
		End()
	em.End()

	for _, r := range results {
		fs.ctx.Stack.Push(r, wasm.ValI32)
	}
	return nil
}
