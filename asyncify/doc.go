// Package asyncify instruments compiled modules so that a host import can
// suspend the running program and resume it later.
//
// Every function that can reach an async import is rewritten to save its
// locals and the position of the pending call into a stack in linear
// memory while unwinding, and to restore them while rewinding. The host
// drives the state machine through exported functions:
//
//	Normal (0) --[start_unwind]--> Unwinding (1) --[stop_unwind]--> Normal (0)
//	Normal (0) --[start_rewind]--> Rewinding (2) --[stop_rewind]--> Normal (0)
//
// For a compiled Brainfuck program the interesting import is env.in: a
// host can return from the guest while it waits for input and re-enter
// once a byte is available.
//
//	out, err := asyncify.Transform(res.Wasm, asyncify.Config{
//	    AsyncImports: []string{"env.in"},
//	})
//
// # Exported Functions
//
//	asyncify_get_state() -> i32
//	asyncify_start_unwind(data: i32)
//	asyncify_stop_unwind()
//	asyncify_start_rewind(data: i32)
//	asyncify_stop_rewind()
//
// # Data Layout
//
// The data pointer passed to start_unwind and start_rewind points to:
//
//	offset 0: stack_ptr (i32), the next free byte of the stack
//	offset 4: stack_end (i32), the end of the stack
//
// Each instrumented frame on the stack is the index of the pending call
// followed by the saved i32 locals. The host allocates the structure and
// the stack, and initialises both fields.
package asyncify
