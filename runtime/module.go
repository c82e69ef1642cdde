package runtime

import (
	"context"
	"io"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/bf-wasm/compiler"
	"github.com/wippyai/bf-wasm/errors"
)

// Config controls a single instance's I/O.
type Config struct {
	// Stdin feeds the input operator. Nil behaves as an empty stream.
	Stdin io.Reader

	// Stdout receives the output operator's bytes. Nil discards them.
	Stdout io.Writer

	// HexOutput writes each output byte as two hex digits and a space.
	HexOutput bool

	// Interactive treats ETX (Ctrl-C in a raw terminal) on Stdin as a
	// request to stop the program.
	Interactive bool

	// DumpCells is the number of tape cells Run returns after the program
	// finishes.
	DumpCells uint32
}

// Module is a compiled module ready to be instantiated.
type Module struct {
	runtime   *Runtime
	compiled  wazero.CompiledModule
	abi       compiler.ABI
	autoStart bool
}

// ABI returns the host ABI the module imports.
func (m *Module) ABI() compiler.ABI {
	return m.abi
}

// AutoStart reports whether the module runs its entry function on
// instantiation.
func (m *Module) AutoStart() bool {
	return m.autoStart
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instantiate registers host functions for the module's ABI and creates an
// instance. A self-starting module runs to completion here. The runtime
// admits one live instance; Close it to admit the next.
func (m *Module) Instantiate(ctx context.Context, cfg Config) (*Instance, error) {
	r := m.runtime
	r.live.Lock()

	inst := &Instance{module: m, release: r.live.Unlock}
	inst.io = newStreams(cfg, inst.intr.fire)

	host, err := m.instantiateHost(ctx, inst.io)
	if err != nil {
		inst.release()
		return nil, err
	}
	inst.host = host

	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions()
	if m.abi == compiler.ABIDescriptor {
		modCfg = modCfg.WithStdin(inst.io.in).WithStdout(inst.io.out)
	}

	runCtx, done := inst.intr.bind(ctx)
	guest, err := r.runtime.InstantiateModule(runCtx, m.compiled, modCfg)
	done()
	if err == nil && inst.intr.fired.Load() {
		_ = guest.Close(ctx)
		err = errors.Interrupted(InterruptExitCode)
	}
	if err != nil {
		_ = host.Close(ctx)
		inst.release()
		if m.autoStart {
			return nil, inst.runError(ctx, err)
		}
		return nil, errors.Instantiation(err)
	}
	inst.guest = guest

	Logger().Debug("instance created",
		zap.Stringer("abi", m.abi),
		zap.Bool("started", m.autoStart),
	)
	return inst, nil
}

func (m *Module) instantiateHost(ctx context.Context, s *streams) (api.Module, error) {
	r := m.runtime.runtime
	name := m.abi.ImportModule()

	var builder wazero.HostModuleBuilder
	switch m.abi {
	case compiler.ABIDescriptor:
		builder = r.NewHostModuleBuilder(name)
		wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	default:
		builder = r.NewHostModuleBuilder(name).
			NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(s.input), nil, []api.ValueType{api.ValueTypeI32}).
			WithName(m.abi.InputName()).
			Export(m.abi.InputName()).
			NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(s.output), []api.ValueType{api.ValueTypeI32}, nil).
			WithName(m.abi.OutputName()).
			Export(m.abi.OutputName())
	}

	host, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Registration(name, err)
	}
	return host, nil
}
