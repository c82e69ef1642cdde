package engine

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/bf-wasm/wasm"
)

type nameMatcher string

func (n nameMatcher) Match(_, name string) bool { return name == string(n) }

type exportSet map[string]bool

func (s exportSet) MatchFunction(name string) bool { return s[name] }

// counterModule sums n values read from env.tick:
//
//	func run(n i32) (result i32) {
//	  loop { acc = acc + tick(); n = n - 1; br_if n }
//	  return acc
//	}
//
// func 2 is an unrelated export that never reaches tick.
func counterModule() []byte {
	i32 := []wasm.ValType{wasm.ValI32}
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Results: i32},
			{Params: i32, Results: i32},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "tick", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{1, 0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "run", Kind: wasm.KindFunc, Idx: 1},
			{Name: "seven", Kind: wasm.KindFunc, Idx: 2},
		},
		Code: []wasm.FuncBody{
			{
				Locals: []wasm.LocalEntry{{Count: 1, ValType: wasm.ValI32}},
				Code: wasm.EncodeInstructions([]wasm.Instruction{
					loop,
					get(1),
					call0,
					{Opcode: wasm.OpI32Add},
					set(1),
					get(0),
					c1,
					{Opcode: wasm.OpI32Sub},
					tee(0),
					{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 0}},
					end,
					get(1),
					end,
				}),
			},
			{Code: wasm.EncodeInstructions([]wasm.Instruction{
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 7}},
				end,
			})},
		},
	}
	return m.Encode()
}

func TestEngine_Transform(t *testing.T) {
	src := counterModule()
	out, err := New(Config{Matcher: nameMatcher("tick")}).Transform(src)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	before, _ := wasm.ParseModule(src)
	after, err := wasm.ParseModuleValidate(out)
	if err != nil {
		t.Fatalf("invalid output: %v", err)
	}
	if string(after.Code[1].Code) != string(before.Code[1].Code) {
		t.Error("function without calls was rewritten")
	}
	if string(after.Code[0].Code) == string(before.Code[0].Code) {
		t.Error("run was not instrumented")
	}
	if len(after.Globals) != 2 {
		t.Errorf("Globals = %d, want 2", len(after.Globals))
	}
	for _, name := range []string{ExportGetState, ExportStartUnwind, ExportStopUnwind, ExportStartRewind, ExportStopRewind} {
		if after.ExportByName(name) == nil {
			t.Errorf("missing export %s", name)
		}
	}
	if after.ExportByName("asyncify_state") != nil {
		t.Error("globals exported without ExportGlobals")
	}

	if _, err := New(Config{Matcher: nameMatcher("tick")}).Transform(out); err == nil {
		t.Error("second transform accepted")
	}
}

func TestEngine_ParseError(t *testing.T) {
	_, err := New(Config{}).Transform([]byte{0, 'a', 's', 'm', 9, 0, 0, 0})
	if !IsParseError(err) {
		t.Errorf("IsParseError(%v) = false", err)
	}

	m := &wasm.Module{
		Types:   []wasm.FuncType{{}},
		Imports: []wasm.Import{{Module: "env", Name: "tick", Desc: wasm.ImportDesc{Kind: wasm.KindFunc}}},
		Funcs:   []uint32{0},
		Code: []wasm.FuncBody{{
			Locals: []wasm.LocalEntry{{Count: 1, ValType: wasm.ValF64}},
			Code:   wasm.EncodeInstructions([]wasm.Instruction{call0, end}),
		}},
	}
	_, err = New(Config{Matcher: nameMatcher("tick")}).Transform(m.Encode())
	if err == nil || IsParseError(err) {
		t.Errorf("f64 local: got %v, want a transform error", err)
	}
}

func TestEngine_FindAsyncFuncs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want map[uint32]bool
	}{
		{
			name: "matcher",
			cfg:  Config{Matcher: nameMatcher("tick")},
			want: map[uint32]bool{0: true, 1: true},
		},
		{
			name: "ignore imports",
			cfg:  Config{Matcher: nameMatcher("tick"), IgnoreImports: true},
			want: map[uint32]bool{},
		},
		{
			name: "add list",
			cfg:  Config{AddList: exportSet{"seven": true}},
			want: map[uint32]bool{2: true},
		},
		{
			name: "remove list wins",
			cfg: Config{
				Matcher:    nameMatcher("tick"),
				AddList:    exportSet{"seven": true},
				RemoveList: exportSet{"run": true, "seven": true},
			},
			want: map[uint32]bool{0: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := wasm.ParseModule(counterModule())
			got, err := New(tt.cfg).findAsyncFuncs(m)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for idx := range tt.want {
				if !got[idx] {
					t.Errorf("func %d missing from %v", idx, got)
				}
			}
		})
	}
}

func TestEngine_Asserts(t *testing.T) {
	out, err := New(Config{Matcher: nameMatcher("tick"), Asserts: true}).Transform(counterModule())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	_, err = r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(func() int32 { return 1 }).Export("tick").
		Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mod, err := r.Instantiate(ctx, out)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("seven").Call(ctx)
	if err != nil || res[0] != 7 {
		t.Fatalf("seven() = %v, %v", res, err)
	}
	mod.Memory().WriteUint32Le(4, 1024)
	if _, err := mod.ExportedFunction(ExportStartRewind).Call(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := mod.ExportedFunction("seven").Call(ctx); err == nil {
		t.Error("seven() ran while rewinding")
	}
}

// TestEngine_UnwindRewindLoop suspends at every tick and checks that the
// loop counter, the accumulator and the operand stack survive each resume.
func TestEngine_UnwindRewindLoop(t *testing.T) {
	const (
		dataAddr = 1000
		stackEnd = 2048
	)
	out, err := New(Config{Matcher: nameMatcher("tick")}).Transform(counterModule())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	var next uint64
	suspends := 0
	tick := api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		state, err := mod.ExportedFunction(ExportGetState).Call(ctx)
		if err != nil {
			panic(err)
		}
		if int32(state[0]) == StateRewinding {
			if _, err := mod.ExportedFunction(ExportStopRewind).Call(ctx); err != nil {
				panic(err)
			}
			next++
			stack[0] = next
			return
		}
		suspends++
		if _, err := mod.ExportedFunction(ExportStartUnwind).Call(ctx, dataAddr); err != nil {
			panic(err)
		}
		stack[0] = 0
	})
	_, err = r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithGoModuleFunction(tick, nil, []api.ValueType{api.ValueTypeI32}).
		Export("tick").
		Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mod, err := r.Instantiate(ctx, out)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	mem := mod.Memory()
	mem.WriteUint32Le(dataAddr, dataAddr+8)
	mem.WriteUint32Le(dataAddr+4, stackEnd)

	call := func(name string, params ...uint64) []uint64 {
		t.Helper()
		res, err := mod.ExportedFunction(name).Call(ctx, params...)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return res
	}

	res := call("run", 3)
	for rounds := 0; call(ExportGetState)[0] == uint64(StateUnwinding); rounds++ {
		if rounds > 10 {
			t.Fatal("run never finished")
		}
		call(ExportStopUnwind)
		call(ExportStartRewind, dataAddr)
		res = call("run", 3)
	}

	if suspends != 3 {
		t.Errorf("suspended %d times, want 3", suspends)
	}
	if res[0] != 1+2+3 {
		t.Errorf("run(3) = %d, want 6", res[0])
	}
	if sp, _ := mem.ReadUint32Le(dataAddr); sp != dataAddr+8 {
		t.Errorf("stack_ptr = %d, want %d", sp, dataAddr+8)
	}
}
