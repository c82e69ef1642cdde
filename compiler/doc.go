// Package compiler translates Brainfuck programs into WebAssembly modules.
//
// Compilation is a single pass over the source with no syntax tree. Each of
// the operators + - > < . , is compiled once into its own function; the
// entry function "_start" is the sequence of calls to them in program order.
// Brackets are not calls: '[' opens a block and a loop that exits when the
// current cell is zero, and ']' branches back to the loop head and closes
// both. Any other character is ignored.
//
// # Module Layout
//
//	func 0   input import   env.in  or wasi_unstable.fd_read
//	func 1   output import  env.out or wasi_unstable.fd_write
//	func 2-7 "op +", "op -", "op >", "op <", "op .", "op ,"
//	func 8   "_start"
//
// The tape is memory 0 (one 64KiB page) and the data pointer is mutable
// global 0. Under the WASI ABI the bytes at 60000..60011 are scratch space
// for the iovec and the transferred byte count.
//
// # Usage
//
//	res, err := compiler.Compile(src, compiler.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("prog.wasm", res.Wasm, 0o644)
//
// Output is deterministic: the same source and options always produce the
// same bytes. Unbalanced brackets and conflicting options are reported as
// *errors.Error before anything is emitted.
package compiler
