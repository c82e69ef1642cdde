package handler

import (
	"github.com/wippyai/bf-wasm/asyncify/internal/codegen"
	"github.com/wippyai/bf-wasm/wasm"
)

// Handler rewrites one instruction into flattened form: operands come from
// the locals tracked on the simulated stack and results go to fresh locals.
//
// Handlers are stateless; everything mutable lives in the Context.
type Handler interface {
	Handle(ctx *Context, instr wasm.Instruction) error
}

// Func adapts a plain function to Handler.
type Func func(ctx *Context, instr wasm.Instruction) error

func (f Func) Handle(ctx *Context, instr wasm.Instruction) error {
	return f(ctx, instr)
}

// Registry maps opcodes to handlers.
type Registry struct {
	handlers [256]Handler
	names    [256]string
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs h for opcode, replacing any earlier handler.
func (r *Registry) Register(opcode byte, h Handler, name string) {
	r.handlers[opcode] = h
	r.names[opcode] = name
}

// RegisterFunc is Register for a plain function.
func (r *Registry) RegisterFunc(opcode byte, fn func(*Context, wasm.Instruction) error, name string) {
	r.Register(opcode, Func(fn), name)
}

func (r *Registry) Get(opcode byte) Handler { return r.handlers[opcode] }
func (r *Registry) Has(opcode byte) bool    { return r.handlers[opcode] != nil }
func (r *Registry) Name(opcode byte) string { return r.names[opcode] }

// StackEntry is a simulated operand stack slot: the local holding the value.
type StackEntry struct {
	LocalIdx uint32
	Type     wasm.ValType
}

// Stack is the simulated operand stack.
type Stack struct {
	entries  []StackEntry
	fallback uint32
}

// NewStack returns an empty stack. Pops from an empty stack, which only
// happen in unreachable code, yield fallback.
func NewStack(fallback uint32) *Stack {
	return &Stack{fallback: fallback}
}

func (s *Stack) Push(localIdx uint32, valType wasm.ValType) {
	s.entries = append(s.entries, StackEntry{LocalIdx: localIdx, Type: valType})
}

func (s *Stack) Pop() uint32 {
	return s.PopTyped().LocalIdx
}

func (s *Stack) PopTyped() StackEntry {
	if len(s.entries) == 0 {
		return StackEntry{LocalIdx: s.fallback, Type: wasm.ValI32}
	}
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e
}

func (s *Stack) Len() int { return len(s.entries) }

// Entries returns the live slots, bottom first.
func (s *Stack) Entries() []StackEntry { return s.entries }

func (s *Stack) Clear() { s.entries = s.entries[:0] }

// AppendLocal declares one more local of type vt on body, extending the
// last declaration group when the type matches.
func AppendLocal(body *wasm.FuncBody, vt wasm.ValType) {
	if n := len(body.Locals); n > 0 && body.Locals[n-1].ValType == vt {
		body.Locals[n-1].Count++
		return
	}
	body.Locals = append(body.Locals, wasm.LocalEntry{Count: 1, ValType: vt})
}

// Locals hands out temporaries. Indices below the declared count are
// reused when their type matches; anything else is declared anew.
type Locals struct {
	body    *wasm.FuncBody
	types   []wasm.ValType
	nextIdx uint32
}

// NewLocals starts allocating at startIdx. types holds the type of every
// local already declared on body, parameters included.
func NewLocals(startIdx uint32, body *wasm.FuncBody, types []wasm.ValType) *Locals {
	return &Locals{
		body:    body,
		types:   append([]wasm.ValType(nil), types...),
		nextIdx: startIdx,
	}
}

// Alloc returns a local of type vt.
func (l *Locals) Alloc(vt wasm.ValType) uint32 {
	idx := l.nextIdx
	if int(idx) < len(l.types) && l.types[idx] == vt {
		l.nextIdx++
		return idx
	}
	idx = uint32(len(l.types))
	l.nextIdx = idx + 1
	AppendLocal(l.body, vt)
	l.types = append(l.types, vt)
	return idx
}

// TypeOf returns the type of a local, i32 when out of range.
func (l *Locals) TypeOf(idx uint32) wasm.ValType {
	if int(idx) < len(l.types) {
		return l.types[idx]
	}
	return wasm.ValI32
}

// Context is the per-function state shared by handlers.
type Context struct {
	Emit        *codegen.Emitter
	Stack       *Stack
	Locals      *Locals
	Module      *wasm.Module
	StateGlobal uint32
	DataGlobal  uint32
}

func NewContext(emit *codegen.Emitter, stack *Stack, locals *Locals, stateGlobal, dataGlobal uint32) *Context {
	return &Context{
		Emit:        emit,
		Stack:       stack,
		Locals:      locals,
		StateGlobal: stateGlobal,
		DataGlobal:  dataGlobal,
	}
}

func (c *Context) AllocTemp(vt wasm.ValType) uint32 { return c.Locals.Alloc(vt) }
func (c *Context) TypeOf(idx uint32) wasm.ValType   { return c.Locals.TypeOf(idx) }

// GlobalType returns the value type of a global, i32 when unknown.
func (c *Context) GlobalType(idx uint32) wasm.ValType {
	if c.Module == nil || int(idx) >= len(c.Module.Globals) {
		return wasm.ValI32
	}
	return c.Module.Globals[idx].Type.ValType
}
