package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/bf-wasm/asyncify"
	"github.com/wippyai/bf-wasm/compiler"
	"github.com/wippyai/bf-wasm/errors"
	"github.com/wippyai/bf-wasm/runtime"
	"github.com/wippyai/bf-wasm/sourcemap"
	"github.com/wippyai/bf-wasm/wasm"
)

func TestSourceMapFlag(t *testing.T) {
	tests := []struct {
		args   []string
		path   string
		set    bool
		inline bool
	}{
		{args: nil},
		{args: []string{"-source-map"}, set: true},
		{args: []string{"-source-map=inline"}, set: true, path: "inline", inline: true},
		{args: []string{"-source-map=maps/prog.map"}, set: true, path: "maps/prog.map"},
	}
	for _, tt := range tests {
		var f sourceMapFlag
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.Var(&f, "source-map", "")
		if err := fs.Parse(tt.args); err != nil {
			t.Fatalf("%v: %v", tt.args, err)
		}
		if f.set != tt.set || f.path != tt.path || f.inline() != tt.inline {
			t.Errorf("%v: got %+v inline=%v", tt.args, f, f.inline())
		}
	}
}

func TestCompileOptionsSourceMapPaths(t *testing.T) {
	tests := []struct {
		name      string
		opts      cliOptions
		sourceMap string
		source    string
		mapPath   string
	}{
		{
			name:      "inline",
			opts:      cliOptions{input: "src/prog.bf", output: "out/prog.wasm", sourceMap: sourceMapFlag{set: true, path: "inline"}},
			sourceMap: compiler.SourceMapInline,
			source:    "../src/prog.bf",
		},
		{
			name:      "inline without output",
			opts:      cliOptions{input: "src/prog.bf", sourceMap: sourceMapFlag{set: true, path: "inline"}},
			sourceMap: compiler.SourceMapInline,
			source:    "prog.bf",
		},
		{
			name:      "bare",
			opts:      cliOptions{input: "src/prog.bf", output: "out/prog.wasm", sourceMap: sourceMapFlag{set: true}},
			sourceMap: "prog.wasm.map",
			source:    "../src/prog.bf",
			mapPath:   "out/prog.wasm.map",
		},
		{
			name:      "explicit path",
			opts:      cliOptions{input: "prog.bf", output: "out/prog.wasm", sourceMap: sourceMapFlag{set: true, path: "maps/prog.map"}},
			sourceMap: "../maps/prog.map",
			source:    "../prog.bf",
			mapPath:   "maps/prog.map",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			copts, mapPath, err := compileOptions(tt.opts)
			if err != nil {
				t.Fatalf("compileOptions: %v", err)
			}
			if copts.SourceMap != tt.sourceMap || copts.Source != tt.source || mapPath != tt.mapPath {
				t.Errorf("got SourceMap=%q Source=%q map=%q", copts.SourceMap, copts.Source, mapPath)
			}
		})
	}
}

func TestCompileOptionsConflicts(t *testing.T) {
	tests := []cliOptions{
		{input: "prog.bf", sourceMap: sourceMapFlag{set: true}},
		{input: "prog.bf", interactive: true, hexOutput: true},
		{input: "prog.bf", output: "prog.wasm", asyncify: true, sourceMap: sourceMapFlag{set: true}},
		{input: "prog.bf", asyncify: true, sourceMap: sourceMapFlag{set: true, path: "inline"}},
	}
	for _, opts := range tests {
		_, _, err := compileOptions(opts)
		e, ok := err.(*errors.Error)
		if !ok || e.Kind != errors.KindConflict {
			t.Errorf("%+v: expected conflict, got %v", opts, err)
		}
	}
}

func TestCompileOptionsFlags(t *testing.T) {
	copts, _, err := compileOptions(cliOptions{wasi: true, autoRun: true, noMemory: true, noNames: true})
	if err != nil {
		t.Fatal(err)
	}
	if !copts.UseWASI || !copts.AutoRun || copts.ExportMemory || copts.NameSection {
		t.Errorf("options %+v", copts)
	}
}

func TestCompileOptionsMemDumpRange(t *testing.T) {
	if _, _, err := compileOptions(cliOptions{memDump: math.MaxUint32}); err != nil {
		t.Fatalf("largest cell count rejected: %v", err)
	}
	if bits.UintSize < 64 {
		t.Skip("uint cannot exceed the cell limit")
	}
	tooMany := uint64(math.MaxUint32) + 1
	_, _, err := compileOptions(cliOptions{memDump: uint(tooMany)})
	e, ok := err.(*errors.Error)
	if !ok || e.Phase != errors.PhaseConfig || e.Kind != errors.KindInvalidInput {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestWriteOutputsEncodesMapFirst(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "prog.wasm")
	mapPath := output + ".map"
	failing := func() ([]byte, error) { return nil, fmt.Errorf("boom") }

	if err := writeOutputs(output, []byte("\x00asm"), mapPath, failing); err == nil {
		t.Fatal("expected error")
	}
	for _, path := range []string{output, mapPath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s written despite encode failure: %v", filepath.Base(path), err)
		}
	}
}

func TestRunAsyncify(t *testing.T) {
	for _, wasi := range []bool{false, true} {
		t.Run(fmt.Sprintf("wasi=%v", wasi), func(t *testing.T) {
			dir := t.TempDir()
			input := filepath.Join(dir, "prog.bf")
			output := filepath.Join(dir, "prog.wasm")
			if err := os.WriteFile(input, []byte(",[.,]"), 0o644); err != nil {
				t.Fatal(err)
			}
			if err := run(cliOptions{input: input, output: output, asyncify: true, wasi: wasi}); err != nil {
				t.Fatalf("run: %v", err)
			}
			module, err := os.ReadFile(output)
			if err != nil {
				t.Fatal(err)
			}
			if !asyncify.IsAsyncified(module) {
				t.Error("output is not asyncified")
			}
			if _, err := wasm.ParseModuleValidate(module); err != nil {
				t.Errorf("output invalid: %v", err)
			}
		})
	}
}

func TestRunAsyncifyRejectsSourceMap(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "prog.bf")
	output := filepath.Join(dir, "prog.wasm")
	if err := os.WriteFile(input, []byte(","), 0o644); err != nil {
		t.Fatal(err)
	}
	err := run(cliOptions{input: input, output: output, asyncify: true, sourceMap: sourceMapFlag{set: true}})
	e, ok := err.(*errors.Error)
	if !ok || e.Kind != errors.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("module written despite conflict: %v", err)
	}
}

func TestRunWritesModuleAndMap(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "prog.bf")
	output := filepath.Join(dir, "prog.wasm")
	if err := os.WriteFile(input, []byte("+[-]."), 0o644); err != nil {
		t.Fatal(err)
	}

	err := run(cliOptions{input: input, output: output, sourceMap: sourceMapFlag{set: true}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	module, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("module not written: %v", err)
	}
	if !bytes.HasPrefix(module, []byte("\x00asm")) {
		t.Errorf("module header % x", module[:4])
	}

	data, err := os.ReadFile(output + ".map")
	if err != nil {
		t.Fatalf("map not written: %v", err)
	}
	sm, err := sourcemap.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(sm.Sources) != 1 || sm.Sources[0] != "prog.bf" {
		t.Errorf("sources = %v", sm.Sources)
	}
}

func TestRunRejectsUnbalanced(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "prog.bf")
	output := filepath.Join(dir, "prog.wasm")
	if err := os.WriteFile(input, []byte("+[["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(cliOptions{input: input, output: output}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("module written despite error: %v", err)
	}
}

func TestInspect(t *testing.T) {
	opts := compiler.DefaultOptions()
	opts.SourceMap = compiler.SourceMapInline
	opts.Source = "prog.bf"
	res, err := compiler.Compile("+.", opts)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := inspect(&out, res.Wasm); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{
		"env.in () -> (i32)",
		"env.out (i32) -> ()",
		"_start func 8",
		"memory memory 0",
		"2 op +",
		"8 _start",
		"custom sourceMappingURL",
		"Source map: inline, sources [prog.bf], 2 mappings",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in:\n%s", want, out.String())
		}
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	if err := inspect(io.Discard, []byte("nope")); err == nil {
		t.Error("expected error")
	}
}

func TestRawReaderWriter(t *testing.T) {
	r := &rawReader{r: strings.NewReader("a\rb")}
	got, err := io.ReadAll(r)
	if err != nil || string(got) != "a\nb" {
		t.Errorf("rawReader = %q, %v", got, err)
	}

	var buf bytes.Buffer
	w := &rawWriter{w: &buf}
	if n, err := w.Write([]byte("hi\nyo\n")); err != nil || n != 6 {
		t.Errorf("Write = %d, %v", n, err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hi\r\nyo\r\nx" {
		t.Errorf("rawWriter = %q", buf.String())
	}
}

func TestFormatCells(t *testing.T) {
	if got := formatCells([]byte{0, 10, 255}); got != "00 0a ff" {
		t.Errorf("formatCells = %q", got)
	}
	var buf bytes.Buffer
	printCells(&buf, []byte{1})
	if want := dumpRule + "\nMemory dump:\n01\n"; buf.String() != want {
		t.Errorf("printCells = %q", buf.String())
	}
}

func TestKeyReader(t *testing.T) {
	k := newKeyReader(4)
	k.push('a')
	k.push('b')
	p := make([]byte, 8)
	n, err := k.Read(p)
	if err != nil || string(p[:n]) != "ab" {
		t.Errorf("Read = %q, %v", p[:n], err)
	}
	for i := 0; i < 10; i++ {
		k.push('x')
	}
	if len(k.ch) != 4 {
		t.Errorf("buffered %d keys, want 4", len(k.ch))
	}
	_ = k.Close()
	_ = k.Close()
	for len(k.ch) > 0 {
		<-k.ch
	}
	if _, err := k.Read(p); err != io.EOF {
		t.Errorf("Read after Close: %v", err)
	}
}

func TestKeyBytes(t *testing.T) {
	tests := []struct {
		msg  tea.KeyMsg
		want string
		ok   bool
	}{
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("é")}, "é", true},
		{tea.KeyMsg{Type: tea.KeyEnter}, "\n", true},
		{tea.KeyMsg{Type: tea.KeySpace}, " ", true},
		{tea.KeyMsg{Type: tea.KeyUp}, "", false},
	}
	for _, tt := range tests {
		got, ok := keyBytes(tt.msg)
		if ok != tt.ok || string(got) != tt.want {
			t.Errorf("keyBytes(%v) = %q, %v", tt.msg, got, ok)
		}
	}
}

// spinModule compiles a program that loops forever without reading input.
func spinModule(t *testing.T) []byte {
	t.Helper()
	res, err := compiler.Compile("+[]", compiler.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return res.Wasm
}

func expectInterrupted(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		e, ok := err.(*errors.Error)
		if !ok || e.Kind != errors.KindInterrupted {
			t.Errorf("expected interrupted, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("program still running after Ctrl-C")
	}
}

func TestInteractiveCtrlCStopsComputeLoop(t *testing.T) {
	m := newInteractiveModel("spin.bf", spinModule(t), runtime.Config{})
	defer m.cancel()

	done := make(chan error, 1)
	go func() {
		msg := m.runProgram().(finishedMsg)
		done <- msg.err
	}()

	time.Sleep(100 * time.Millisecond)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	expectInterrupted(t, done)
}

func TestPumpKeysCancelsOnETX(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	keys := newKeyReader(keyBuffer)
	pumpKeys(strings.NewReader("a\x03b"), keys, cancel)

	if ctx.Err() == nil {
		t.Error("ETX did not cancel the run")
	}
	got, err := io.ReadAll(keys)
	if err != nil || string(got) != "a\x03b" {
		t.Errorf("keys = %q, %v", got, err)
	}
}

func TestPumpKeysStopsComputeLoop(t *testing.T) {
	module := spinModule(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := runtime.New(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(context.Background())

	pr, pw := io.Pipe()
	defer pw.Close()
	keys := newKeyReader(keyBuffer)
	go pumpKeys(pr, keys, cancel)

	done := make(chan error, 1)
	go func() {
		_, err := rt.Run(ctx, module, runtime.Config{Stdin: keys, Interactive: true})
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	if _, err := pw.Write([]byte{runtime.ETX}); err != nil {
		t.Fatal(err)
	}
	expectInterrupted(t, done)
}
