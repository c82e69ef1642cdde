package compiler

import "github.com/wippyai/bf-wasm/errors"

// SourceMapInline requests a source map embedded in the module.
const SourceMapInline = "inline"

// Options controls module emission.
type Options struct {
	// SourceMap is "" for no source map, SourceMapInline to embed it, or the
	// path of the map file relative to the module.
	SourceMap string

	// Source is the path of the program as referenced from the map (or from
	// the module when the map is inline). Required with SourceMap.
	Source string

	// ExportMemory exports linear memory as "memory".
	ExportMemory bool

	// AutoRun adds a start section that runs the entry function on
	// instantiation.
	AutoRun bool

	// UseWASI selects the descriptor ABI instead of env.in/env.out.
	UseWASI bool

	// NameSection emits function names for debuggers.
	NameSection bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		ExportMemory: true,
		NameSection:  true,
	}
}

// ABI returns the host ABI the options select.
func (o Options) ABI() ABI {
	if o.UseWASI {
		return ABIDescriptor
	}
	return ABISimple
}

// Validate reports conflicting options.
func (o Options) Validate() error {
	switch {
	case o.SourceMap != "" && o.Source == "":
		return errors.Conflict("source map %q requested without a source path", o.SourceMap)
	case o.SourceMap == "" && o.Source != "":
		return errors.Conflict("source path %q given without a source map", o.Source)
	}
	return nil
}

// wantsSourceMap reports whether a map is generated.
func (o Options) wantsSourceMap() bool {
	return o.SourceMap != ""
}
