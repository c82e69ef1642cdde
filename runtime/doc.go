// Package runtime executes modules produced by the compiler package on
// wazero.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	report, err := rt.Run(ctx, result.Wasm, runtime.Config{
//	    Stdin:     os.Stdin,
//	    Stdout:    os.Stdout,
//	    DumpCells: 16,
//	})
//
// # Host ABIs
//
// The host side is chosen from the module's imports. A module importing
// env.in and env.out gets two Go functions reading and writing one byte.
// A module importing wasi_unstable gets the wazero WASI implementation
// with Config.Stdin and Config.Stdout as file descriptors 0 and 1.
// Either way end of input reads as 0 or leaves the cell untouched, the
// way the module's input template handles it.
//
// # Lifecycle
//
// Load compiles the binary once. Instantiate registers the host module
// and, for modules with a start section, runs the program. Start calls
// _start for the others. The host module name is fixed by the ABI, so a
// Runtime admits one live Instance at a time and Instantiate waits for
// the previous Instance to be closed.
//
// # Interrupts
//
// With Config.Interactive, an ETX byte on the input stream stops the
// program. Start then returns an error of kind interrupted carrying
// exit code 130. Cancelling the context passed to Start stops the
// program as well.
package runtime
