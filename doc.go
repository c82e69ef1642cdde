// Package bfwasm compiles Brainfuck programs into WebAssembly modules.
//
// Every program becomes a self-contained core module: one page of linear
// memory as the tape, one mutable global as the cell pointer, a function
// per callable operator and an exported _start that calls them in program
// order. Loops are inlined as block/loop pairs.
//
// # Architecture Overview
//
//	bfwasm/              Root package with Compile and Run
//	├── compiler/        Operator templates, module assembly, name section
//	├── sourcemap/       Source Map v3 builder, VLQ codec, path helpers
//	├── wasm/            Core WASM binary encoder and parser
//	├── runtime/         wazero runner with both host ABIs
//	├── errors/          Structured error types
//	└── cmd/bf2wasm/     Command line compiler and runner
//
// # Quick Start
//
//	res, err := bfwasm.Compile(src, compiler.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("prog.wasm", res.Wasm, 0o644)
//
// Compile and run in one step:
//
//	report, err := bfwasm.Run(ctx, src, compiler.DefaultOptions(), runtime.Config{
//	    Stdin:  os.Stdin,
//	    Stdout: os.Stdout,
//	})
//
// # Host ABIs
//
// By default the module imports env.in () -> i32 and env.out (i32) -> ().
// With Options.UseWASI it imports fd_read and fd_write from wasi_unstable
// and moves one byte per call through an iovec at address 60000.
//
// # Source Maps
//
// With Options.SourceMap the result carries a Source Map v3 that maps every
// operator's code in the module back to its line and column. The map is
// either embedded as a data URL in a sourceMappingURL custom section or
// written next to the module and referenced from that section by path.
//
// # Errors
//
// All errors are *errors.Error values carrying a phase and a kind.
// Unbalanced brackets are rejected before anything is emitted and report
// the byte offset of the offending bracket.
package bfwasm
