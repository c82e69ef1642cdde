package asyncify

import (
	"strings"

	"github.com/wippyai/bf-wasm/asyncify/internal/engine"
)

// ExactMatcher matches "module.name" or bare "name" patterns.
type ExactMatcher struct {
	patterns map[string]bool
}

func NewExactMatcher(patterns []string) *ExactMatcher {
	m := &ExactMatcher{patterns: make(map[string]bool, len(patterns))}
	for _, p := range patterns {
		m.patterns[p] = true
	}
	return m
}

func (m *ExactMatcher) Match(module, name string) bool {
	return m.patterns[module+"."+name] || m.patterns[name]
}

// WildcardMatcher matches import patterns with wildcards:
//   - "module.name" - exact match
//   - "name" - this name in any module
//   - "module.*" - everything imported from module
//   - "*" - everything
type WildcardMatcher struct {
	exact       map[string]bool
	names       map[string]bool
	moduleWilds map[string]bool
	matchAll    bool
}

func NewWildcardMatcher(patterns []string) *WildcardMatcher {
	m := &WildcardMatcher{
		exact:       make(map[string]bool),
		names:       make(map[string]bool),
		moduleWilds: make(map[string]bool),
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			m.matchAll = true
		case strings.HasSuffix(p, ".*"):
			m.moduleWilds[strings.TrimSuffix(p, ".*")] = true
		case strings.Contains(p, "."):
			m.exact[p] = true
		default:
			m.names[p] = true
		}
	}
	return m
}

func (m *WildcardMatcher) Match(module, name string) bool {
	return m.matchAll || m.moduleWilds[module] || m.exact[module+"."+name] || m.names[name]
}

// FunctionMatcher selects functions by export name.
type FunctionMatcher = engine.FunctionMatcher

// FunctionNameMatcher matches functions by exact export name.
type FunctionNameMatcher struct {
	names map[string]bool
}

func NewFunctionNameMatcher(names []string) *FunctionNameMatcher {
	m := &FunctionNameMatcher{names: make(map[string]bool, len(names))}
	for _, n := range names {
		m.names[n] = true
	}
	return m
}

func (m *FunctionNameMatcher) MatchFunction(name string) bool {
	return m.names[name]
}
