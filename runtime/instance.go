package runtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/bf-wasm/compiler"
	"github.com/wippyai/bf-wasm/errors"
)

// InterruptExitCode is reported when a run is stopped from the keyboard.
const InterruptExitCode = 130

// Instance is a running module together with its host functions.
type Instance struct {
	module  *Module
	guest   api.Module
	host    api.Module
	io      *streams
	release func()
	intr    interrupter
	once    sync.Once
}

// Start runs the entry function. For a self-starting module it does
// nothing, the program already ran during instantiation.
func (i *Instance) Start(ctx context.Context) error {
	if i.guest == nil {
		return errors.NotInitialized(errors.PhaseRuntime, "instance")
	}
	if i.module.autoStart {
		return nil
	}
	fn := i.guest.ExportedFunction(compiler.EntryName)
	if fn == nil {
		return errors.NotFound(errors.PhaseRuntime, "export", compiler.EntryName)
	}

	runCtx, done := i.intr.bind(ctx)
	defer done()
	if _, err := fn.Call(runCtx); err != nil || i.intr.fired.Load() {
		return i.runError(ctx, err)
	}
	Logger().Debug("program finished", zap.Int64("written", i.Written()))
	return nil
}

// Cells returns a copy of the first n tape cells.
func (i *Instance) Cells(n uint32) ([]byte, error) {
	if i.guest == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "instance")
	}
	mem := i.guest.Memory()
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "memory", "0")
	}
	data, ok := mem.Read(0, n)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "cell count exceeds memory size")
	}
	return append([]byte(nil), data...), nil
}

// Written returns the number of bytes the program has output.
func (i *Instance) Written() int64 {
	return i.io.written.Load()
}

// Interrupt stops a running program as if ETX had been typed.
func (i *Instance) Interrupt() {
	i.intr.fire()
}

// Close releases the instance and its host module.
func (i *Instance) Close(ctx context.Context) error {
	var err error
	i.once.Do(func() {
		if i.guest != nil {
			err = i.guest.Close(ctx)
		}
		if i.host != nil {
			if herr := i.host.Close(ctx); err == nil {
				err = herr
			}
		}
		i.release()
	})
	return err
}

// runError classifies an error returned while the guest was running.
func (i *Instance) runError(ctx context.Context, err error) error {
	switch {
	case i.intr.fired.Load():
		return errors.Interrupted(InterruptExitCode)
	case ctx.Err() != nil:
		return errors.Wrap(errors.PhaseRuntime, errors.KindInterrupted, err, "context done")
	default:
		return errors.Trap(err)
	}
}

// interrupter cancels the context of the call in progress.
type interrupter struct {
	cancel context.CancelFunc
	mu     sync.Mutex
	fired  atomic.Bool
}

// bind derives a cancellable context for one guest call.
func (in *interrupter) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	in.mu.Lock()
	in.cancel = cancel
	fired := in.fired.Load()
	in.mu.Unlock()
	if fired {
		cancel()
	}
	return ctx, func() {
		in.mu.Lock()
		in.cancel = nil
		in.mu.Unlock()
		cancel()
	}
}

func (in *interrupter) fire() {
	in.fired.Store(true)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cancel != nil {
		in.cancel()
	}
}
