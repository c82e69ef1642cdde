package compiler

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/wippyai/bf-wasm/errors"
	"github.com/wippyai/bf-wasm/sourcemap"
	"github.com/wippyai/bf-wasm/wasm"
)

// Result is the output of Compile.
type Result struct {
	// SourceMap is nil unless Options.SourceMap was set. For a sibling map
	// the caller writes it next to the module.
	SourceMap *sourcemap.Map
	Wasm      []byte
	Stats     Stats
}

// Stats counts the characters Compile translated.
type Stats struct {
	Ops      [OpLoopClose + 1]int
	MaxDepth int
}

// Count returns how many times o occurred in the program.
func (s Stats) Count(o Op) int {
	return s.Ops[o]
}

// mark records where a significant character's code starts in the entry body.
type mark struct {
	pos    sourcemap.Position
	offset int
}

// Compile translates src into a WebAssembly module. It fails before emitting
// anything when the options conflict or the brackets are unbalanced.
func Compile(src string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := checkBrackets(src); err != nil {
		return nil, err
	}

	abi := opts.ABI()
	m := newModule(opts, abi)

	for _, o := range callableOps {
		body := append(Template(o, abi), wasm.Instruction{Opcode: wasm.OpEnd})
		m.Code = append(m.Code, wasm.FuncBody{Code: wasm.EncodeInstructions(body)})
	}
	entry, marks, stats := emitEntry(src, abi, opts.wantsSourceMap())
	m.Code = append(m.Code, wasm.FuncBody{Code: entry})

	if opts.NameSection {
		m.CustomSections = append(m.CustomSections, wasm.CustomSection{
			Name: wasm.CustomSectionName,
			Data: wasm.EncodeNameSection(functionNames(abi)),
		})
	}

	res := &Result{Stats: stats}
	if opts.wantsSourceMap() {
		if err := attachSourceMap(m, opts, marks, res); err != nil {
			return nil, err
		}
	}
	res.Wasm = m.Encode()

	Logger().Debug("compiled module",
		zap.Stringer("abi", abi),
		zap.Int("bytes", len(res.Wasm)),
		zap.Int("entry_bytes", len(entry)),
		zap.Int("loops", stats.Count(OpLoopOpen)),
		zap.Int("max_depth", stats.MaxDepth),
		zap.Bool("auto_run", opts.AutoRun),
		zap.String("source_map", opts.SourceMap),
	)
	return res, nil
}

// newModule declares every section except code and custom sections.
func newModule(opts Options, abi ABI) *wasm.Module {
	m := &wasm.Module{}
	void := m.AddType(wasm.FuncType{})
	inType, outType := abi.importTypes()
	inIdx := m.AddType(inType)
	outIdx := m.AddType(outType)

	module := abi.ImportModule()
	m.Imports = []wasm.Import{
		{Module: module, Name: abi.InputName(), Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: inIdx}},
		{Module: module, Name: abi.OutputName(), Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: outIdx}},
	}

	// One function per callable operator plus the entry, all () -> ().
	for range FuncEntry - numImports + 1 {
		m.Funcs = append(m.Funcs, void)
	}

	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.Globals = []wasm.Global{{
		Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
		Init: wasm.EncodeInstructions([]wasm.Instruction{i32Const(0), op(wasm.OpEnd)}),
	}}

	if opts.ExportMemory {
		m.Exports = append(m.Exports, wasm.Export{Name: MemoryExportName, Kind: wasm.KindMemory, Idx: 0})
	}
	m.Exports = append(m.Exports, wasm.Export{Name: EntryName, Kind: wasm.KindFunc, Idx: FuncEntry})

	if opts.AutoRun {
		start := FuncEntry
		m.Start = &start
	}
	return m
}

// emitEntry builds the entry function body: a call per callable operator
// and the inlined block/loop fragments for brackets.
func emitEntry(src string, abi ABI, track bool) ([]byte, []mark, Stats) {
	var fragments [OpLoopClose + 1][]byte
	for _, o := range callableOps {
		idx, _ := FuncIndex(o)
		fragments[o] = wasm.EncodeInstructions([]wasm.Instruction{call(idx)})
	}
	fragments[OpLoopOpen] = wasm.EncodeInstructions(Template(OpLoopOpen, abi))
	fragments[OpLoopClose] = wasm.EncodeInstructions(Template(OpLoopClose, abi))

	var (
		buf   bytes.Buffer
		marks []mark
		stats Stats
		pos   sourcemap.Position
		depth int
	)
	for _, r := range src {
		o := Classify(r)
		if o != OpIgnore {
			if track {
				marks = append(marks, mark{offset: buf.Len(), pos: pos})
			}
			stats.Ops[o]++
			switch o {
			case OpLoopOpen:
				depth++
				stats.MaxDepth = max(stats.MaxDepth, depth)
			case OpLoopClose:
				depth--
			}
			buf.Write(fragments[o])
		}
		pos.Advance(r)
	}
	buf.WriteByte(wasm.OpEnd)
	return buf.Bytes(), marks, stats
}

// attachSourceMap maps every significant character to the absolute offset of
// its code and records the map's URL in a sourceMappingURL section. Custom
// sections follow the code section, so adding it does not move any code.
func attachSourceMap(m *wasm.Module, opts Options, marks []mark, res *Result) error {
	_, layout := m.EncodeWithLayout()
	base := layout.CodeStarts[len(layout.CodeStarts)-1]

	b := sourcemap.NewBuilder(opts.Source)
	for _, mk := range marks {
		b.Add(base+mk.offset, mk.pos.Line, mk.pos.Column)
	}
	res.SourceMap = b.Map()

	url := opts.SourceMap
	if url == SourceMapInline {
		var err error
		if url, err = res.SourceMap.DataURL(); err != nil {
			return errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "encode source map")
		}
	}
	m.CustomSections = append(m.CustomSections, wasm.CustomSection{
		Name: wasm.CustomSectionSourceMappingURL,
		Data: wasm.EncodeName(url),
	})
	return nil
}
