package runtime

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/bf-wasm/compiler"
	"github.com/wippyai/bf-wasm/errors"
	"github.com/wippyai/bf-wasm/wasm"
)

// Options configures the underlying engine.
type Options struct {
	// MemoryLimitPages caps linear memory per instance in 64KiB pages.
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// Runtime executes compiled Brainfuck modules on wazero. Host modules are
// registered per instance under fixed names, so only one instance can be
// live at a time; Instantiate blocks until the previous instance is closed.
type Runtime struct {
	runtime wazero.Runtime
	live    sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// New creates a runtime with default options.
func New(ctx context.Context) (*Runtime, error) {
	return NewWithOptions(ctx, Options{})
}

// NewWithOptions creates a runtime with custom engine options.
func NewWithOptions(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if opts.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(opts.MemoryLimitPages)
	}
	return &Runtime{runtime: wazero.NewRuntimeWithConfig(ctx, cfg)}, nil
}

// Close releases all runtime resources.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.runtime.Close(ctx)
}

// Load compiles a module produced by the compiler package. The host ABI and
// whether the module starts itself are read from its imports and start
// section.
func (r *Runtime) Load(ctx context.Context, module []byte) (*Module, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, errors.NotInitialized(errors.PhaseLoad, "runtime")
	}

	parsed, err := wasm.ParseModule(module)
	if err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Cause(err).
			Detail("parse module").
			Build()
	}
	abi, err := detectABI(parsed)
	if err != nil {
		return nil, err
	}
	if parsed.ExportByName(compiler.EntryName) == nil && parsed.Start == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "export", compiler.EntryName)
	}

	compiled, err := r.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}

	Logger().Debug("module loaded",
		zap.Int("bytes", len(module)),
		zap.Stringer("abi", abi),
		zap.Bool("auto_start", parsed.Start != nil),
	)
	return &Module{
		runtime:   r,
		compiled:  compiled,
		abi:       abi,
		autoStart: parsed.Start != nil,
	}, nil
}

// Run loads module, runs it to completion and returns the cells requested
// by cfg.DumpCells.
func (r *Runtime) Run(ctx context.Context, module []byte, cfg Config) (*Report, error) {
	mod, err := r.Load(ctx, module)
	if err != nil {
		return nil, err
	}
	defer mod.Close(ctx)

	inst, err := mod.Instantiate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer inst.Close(ctx)

	if err := inst.Start(ctx); err != nil {
		return nil, err
	}

	report := &Report{Written: inst.Written()}
	if cfg.DumpCells > 0 {
		if report.Cells, err = inst.Cells(cfg.DumpCells); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// Report summarizes a finished run.
type Report struct {
	Cells   []byte
	Written int64
}

// detectABI reads the host ABI from the module's function imports.
func detectABI(m *wasm.Module) (compiler.ABI, error) {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		switch imp.Module {
		case compiler.ABISimple.ImportModule():
			return compiler.ABISimple, nil
		case compiler.ABIDescriptor.ImportModule():
			return compiler.ABIDescriptor, nil
		default:
			return 0, errors.Unsupported(errors.PhaseLoad, "import module "+imp.Module)
		}
	}
	return compiler.ABISimple, nil
}
