package compiler_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wippyai/bf-wasm/compiler"
)

const helloWorld = "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++."

type execResult struct {
	mod api.Module
	out *bytes.Buffer
}

func (er execResult) output() []byte {
	return er.out.Bytes()
}

// execute instantiates module against trivial host functions and runs its
// entry point unless the module starts itself.
func execute(t *testing.T, module []byte, input string, wasi bool) execResult {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })

	out := &bytes.Buffer{}
	in := strings.NewReader(input)
	config := wazero.NewModuleConfig().WithStartFunctions()

	if wasi {
		builder := r.NewHostModuleBuilder("wasi_unstable")
		wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
		if _, err := builder.Instantiate(ctx); err != nil {
			t.Fatalf("instantiate wasi_unstable: %v", err)
		}
		config = config.WithStdin(in).WithStdout(out)
	} else {
		_, err := r.NewHostModuleBuilder("env").
			NewFunctionBuilder().
			WithFunc(func() int32 {
				b, err := in.ReadByte()
				if err != nil {
					return 0
				}
				return int32(b)
			}).
			Export("in").
			NewFunctionBuilder().
			WithFunc(func(v int32) { out.WriteByte(byte(v)) }).
			Export("out").
			Instantiate(ctx)
		if err != nil {
			t.Fatalf("instantiate env: %v", err)
		}
	}

	mod, err := r.InstantiateWithConfig(ctx, module, config)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return execResult{mod: mod, out: out}
}

func run(t *testing.T, src, input string, opts compiler.Options) execResult {
	t.Helper()
	res := mustCompile(t, src, opts)
	er := execute(t, res.Wasm, input, opts.UseWASI)
	if !opts.AutoRun {
		start := er.mod.ExportedFunction("_start")
		if start == nil {
			t.Fatal("_start not exported")
		}
		if _, err := start.Call(context.Background()); err != nil {
			t.Fatalf("_start: %v", err)
		}
	}
	return er
}

func (er execResult) cells(t *testing.T, n uint32) []byte {
	t.Helper()
	mem := er.mod.Memory()
	if mem == nil {
		t.Fatal("module has no memory")
	}
	data, ok := mem.Read(0, n)
	if !ok {
		t.Fatalf("read %d cells", n)
	}
	return data
}

func TestExecuteIncrementOutput(t *testing.T) {
	for _, wasi := range []bool{false, true} {
		for _, n := range []int{0, 1, 65, 255, 256, 300} {
			opts := compiler.DefaultOptions()
			opts.UseWASI = wasi
			er := run(t, strings.Repeat("+", n)+".", "", opts)
			if got := er.output(); len(got) != 1 || int(got[0]) != n%256 {
				t.Errorf("wasi=%v n=%d: output %v", wasi, n, got)
			}
		}
	}
}

func TestExecuteClearLoop(t *testing.T) {
	er := run(t, "+++++[-]>+", "", compiler.DefaultOptions())
	cells := er.cells(t, 2)
	if cells[0] != 0 || cells[1] != 1 {
		t.Errorf("cells %v, want [0 1]", cells)
	}
}

func TestExecuteDecrementWraps(t *testing.T) {
	er := run(t, "-", "", compiler.DefaultOptions())
	if cells := er.cells(t, 1); cells[0] != 255 {
		t.Errorf("cell %d, want 255", cells[0])
	}
}

func TestExecuteHelloWorld(t *testing.T) {
	for _, wasi := range []bool{false, true} {
		opts := compiler.DefaultOptions()
		opts.UseWASI = wasi
		er := run(t, helloWorld, "", opts)
		if got := string(er.output()); got != "Hello World!\n" {
			t.Errorf("wasi=%v: output %q", wasi, got)
		}
	}
}

func TestExecuteEcho(t *testing.T) {
	er := run(t, ",[.,]", "hi there", compiler.DefaultOptions())
	if got := string(er.output()); got != "hi there" {
		t.Errorf("output %q", got)
	}

	opts := compiler.DefaultOptions()
	opts.UseWASI = true
	er = run(t, ",.,.", "ok", opts)
	if got := string(er.output()); got != "ok" {
		t.Errorf("wasi output %q", got)
	}
}

func TestExecuteAutoRun(t *testing.T) {
	opts := compiler.DefaultOptions()
	opts.AutoRun = true
	res := mustCompile(t, "++++++++[>++++++++<-]>+.", opts)
	er := execute(t, res.Wasm, "", false)
	if got := string(er.output()); got != "A" {
		t.Errorf("output on instantiation %q, want %q", got, "A")
	}
}

func TestExecuteWithoutMemoryExport(t *testing.T) {
	opts := compiler.DefaultOptions()
	opts.ExportMemory = false
	er := run(t, "+++.", "", opts)
	if er.mod.ExportedMemory("memory") != nil {
		t.Error("memory should not be exported")
	}
	if got := er.output(); !bytes.Equal(got, []byte{3}) {
		t.Errorf("output %v", got)
	}
}
