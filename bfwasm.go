package bfwasm

import (
	"context"

	"github.com/wippyai/bf-wasm/compiler"
	"github.com/wippyai/bf-wasm/runtime"
)

// Compile translates a Brainfuck program into a WebAssembly module.
func Compile(src string, opts compiler.Options) (*compiler.Result, error) {
	return compiler.Compile(src, opts)
}

// Run compiles src and runs it to completion on a fresh runtime.
func Run(ctx context.Context, src string, opts compiler.Options, cfg runtime.Config) (*runtime.Report, error) {
	res, err := compiler.Compile(src, opts)
	if err != nil {
		return nil, err
	}

	rt, err := runtime.New(ctx)
	if err != nil {
		return nil, err
	}
	defer rt.Close(ctx)

	return rt.Run(ctx, res.Wasm, cfg)
}
