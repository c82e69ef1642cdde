package asyncify

import (
	"bytes"

	"github.com/wippyai/bf-wasm/asyncify/internal/engine"
	"github.com/wippyai/bf-wasm/errors"
)

// asyncifyExports are the functions the transformation adds.
var asyncifyExports = [][]byte{
	[]byte(engine.ExportStartUnwind),
	[]byte(engine.ExportStopUnwind),
	[]byte(engine.ExportStartRewind),
	[]byte(engine.ExportStopRewind),
}

// IsAsyncified reports whether a module carries the asyncify control
// exports.
func IsAsyncified(wasmBytes []byte) bool {
	for _, exp := range asyncifyExports {
		if bytes.Contains(wasmBytes, exp) {
			return true
		}
	}
	return false
}

// ImportMatcher decides whether an import may suspend.
type ImportMatcher = engine.ImportMatcher

// Config configures the transformation.
type Config struct {
	Matcher    ImportMatcher
	AddList    FunctionMatcher
	RemoveList FunctionMatcher

	// AsyncImports lists imports as "module.name", "module#name" or a bare
	// name. They are matched before Matcher.
	AsyncImports  []string
	IgnoreImports bool

	// Asserts makes functions that were not instrumented trap when they are
	// entered while unwinding or rewinding.
	Asserts bool

	// ExportGlobals also exports the state and data globals as
	// asyncify_state and asyncify_data.
	ExportGlobals bool
}

// Transform instruments every function that can reach an async import so
// that its call stack can be saved to linear memory and later resumed.
//
// The transformation:
//   - adds the state and data pointer globals
//   - finds the functions to instrument through the call graph
//   - rewrites each of them to save and restore its locals
//   - exports the asyncify_* control functions
//
// Instrumented functions may only use i32 locals and must not call an
// async function from inside an if arm.
func Transform(wasmData []byte, cfg Config) ([]byte, error) {
	matcher := cfg.Matcher
	if len(cfg.AsyncImports) > 0 {
		matcher = &asyncImportMatcher{
			patterns: cfg.AsyncImports,
			fallback: cfg.Matcher,
		}
	}

	eng := engine.New(engine.Config{
		Matcher:       matcher,
		AddList:       cfg.AddList,
		RemoveList:    cfg.RemoveList,
		IgnoreImports: cfg.IgnoreImports,
		Asserts:       cfg.Asserts,
		ExportGlobals: cfg.ExportGlobals,
	})
	out, err := eng.Transform(wasmData)
	if err != nil {
		if engine.IsParseError(err) {
			return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "asyncify")
		}
		return nil, errors.Wrap(errors.PhaseTransform, errors.KindUnsupported, err, "asyncify")
	}
	return out, nil
}

// asyncImportMatcher matches imports from a list of patterns.
type asyncImportMatcher struct {
	fallback ImportMatcher
	patterns []string
}

func (m *asyncImportMatcher) Match(module, name string) bool {
	fullDot := module + "." + name
	fullHash := module + "#" + name
	for _, p := range m.patterns {
		if p == fullDot || p == fullHash || p == name {
			return true
		}
	}
	if m.fallback != nil {
		return m.fallback.Match(module, name)
	}
	return false
}
