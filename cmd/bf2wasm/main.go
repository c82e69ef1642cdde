package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/bf-wasm/asyncify"
	"github.com/wippyai/bf-wasm/compiler"
	"github.com/wippyai/bf-wasm/errors"
	"github.com/wippyai/bf-wasm/runtime"
	"github.com/wippyai/bf-wasm/sourcemap"
)

type cliOptions struct {
	input       string
	output      string
	sourceMap   sourceMapFlag
	wasi        bool
	autoRun     bool
	noMemory    bool
	noNames     bool
	run         bool
	interactive bool
	hexOutput   bool
	memDump     uint
	inspect     bool
	asyncify    bool
	verbose     bool
}

func main() {
	var opts cliOptions
	flag.StringVar(&opts.output, "o", "", "File to write compiled Wasm to")
	flag.Var(&opts.sourceMap, "source-map", "Generate a source map: bare for <output>.map, =inline, or =<path>")
	flag.BoolVar(&opts.wasi, "wasi", false, "Use WASI for I/O")
	flag.BoolVar(&opts.autoRun, "auto-run", false, "Add a start section that runs the program on instantiation")
	flag.BoolVar(&opts.noMemory, "no-export-memory", false, "Do not export linear memory")
	flag.BoolVar(&opts.noNames, "no-names", false, "Omit the name section")
	flag.BoolVar(&opts.run, "run", false, "Run compiled Wasm")
	flag.BoolVar(&opts.interactive, "i", false, "Run compiled Wasm in the interactive TUI")
	flag.BoolVar(&opts.hexOutput, "hex-output", false, "Print output bytes as hex")
	flag.UintVar(&opts.memDump, "mem-dump", 0, "Dump the first N cells of memory after run")
	flag.BoolVar(&opts.inspect, "inspect", false, "Print a summary of the compiled module")
	flag.BoolVar(&opts.asyncify, "asyncify", false, "Instrument the module so the input import can suspend it")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: bf2wasm [flags] <file.bf>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	opts.input = flag.Arg(0)

	if err := run(opts); err != nil {
		if e, ok := err.(*errors.Error); ok && e.Kind == errors.KindInterrupted {
			os.Exit(runtime.InterruptExitCode)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts cliOptions) error {
	logger := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()
	compiler.SetLogger(logger.Named("compiler"))
	runtime.SetLogger(logger.Named("runtime"))

	copts, mapPath, err := compileOptions(opts)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(opts.input)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	res, err := compiler.Compile(string(source), copts)
	if err != nil {
		return err
	}

	module := res.Wasm
	if opts.asyncify {
		abi := copts.ABI()
		module, err = asyncify.Transform(module, asyncify.Config{
			AsyncImports: []string{abi.ImportModule() + "." + abi.InputName()},
		})
		if err != nil {
			return err
		}
	}

	if err := writeOutputs(opts.output, module, mapPath, res.SourceMap.Encode); err != nil {
		return err
	}

	if opts.inspect {
		if err := inspect(os.Stdout, module); err != nil {
			return err
		}
	}

	cfg := runtime.Config{
		HexOutput: opts.hexOutput,
		DumpCells: uint32(opts.memDump),
	}
	switch {
	case opts.interactive:
		return runInteractive(opts.input, module, cfg)
	case opts.run:
		return runTerminal(context.Background(), module, cfg)
	}
	return nil
}

// writeOutputs writes the module to output and, when mapPath is set, the
// source map beside it. The map is encoded before anything is written.
func writeOutputs(output string, module []byte, mapPath string, encodeMap func() ([]byte, error)) error {
	var mapData []byte
	if mapPath != "" {
		data, err := encodeMap()
		if err != nil {
			return fmt.Errorf("encode source map: %w", err)
		}
		mapData = data
	}
	if output != "" {
		if err := os.WriteFile(output, module, 0o644); err != nil {
			return fmt.Errorf("write module: %w", err)
		}
	}
	if mapPath != "" {
		if err := os.WriteFile(mapPath, mapData, 0o644); err != nil {
			return fmt.Errorf("write source map: %w", err)
		}
	}
	return nil
}

// compileOptions turns flags into compiler options. The returned path is
// where a sibling source map is written.
func compileOptions(opts cliOptions) (compiler.Options, string, error) {
	copts := compiler.DefaultOptions()
	copts.UseWASI = opts.wasi
	copts.AutoRun = opts.autoRun
	copts.ExportMemory = !opts.noMemory
	copts.NameSection = !opts.noNames

	if opts.interactive && opts.hexOutput {
		return copts, "", errors.Conflict("interactive mode cannot show hex output")
	}
	if opts.memDump > math.MaxUint32 {
		return copts, "", errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("mem-dump %d exceeds %d cells", opts.memDump, uint32(math.MaxUint32)))
	}
	// Instrumentation rewrites every function body the map points into.
	if opts.asyncify && opts.sourceMap.set {
		return copts, "", errors.Conflict("source maps cannot be generated for an asyncified module")
	}

	if !opts.sourceMap.set {
		return copts, "", nil
	}

	if opts.sourceMap.inline() {
		copts.SourceMap = compiler.SourceMapInline
		from := opts.output
		if from == "" {
			from = opts.input
		}
		copts.Source = sourcemap.Relative(from, opts.input)
		return copts, "", nil
	}

	if opts.output == "" {
		return copts, "", errors.Conflict("non-inline source maps cannot be generated without an output")
	}
	mapPath := opts.sourceMap.path
	if mapPath == "" {
		mapPath = opts.output + ".map"
	}
	copts.SourceMap = sourcemap.Relative(opts.output, mapPath)
	copts.Source = sourcemap.Relative(mapPath, opts.input)
	return copts, mapPath, nil
}

// printCells writes the memory dump footer shown after a run.
func printCells(w io.Writer, cells []byte) {
	fmt.Fprintln(w, dumpRule)
	fmt.Fprintln(w, "Memory dump:")
	fmt.Fprintln(w, formatCells(cells))
}
