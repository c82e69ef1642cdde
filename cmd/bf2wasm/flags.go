package main

import (
	"strings"

	"github.com/wippyai/bf-wasm/compiler"
)

// sourceMapFlag is -source-map. Given bare it asks for <output>.map,
// otherwise it takes "inline" or a path.
type sourceMapFlag struct {
	path string
	set  bool
}

func (f *sourceMapFlag) String() string {
	if f == nil || !f.set {
		return ""
	}
	if f.path == "" {
		return "true"
	}
	return f.path
}

func (f *sourceMapFlag) Set(v string) error {
	f.set = true
	switch v {
	case "true", "":
		f.path = ""
	case "false":
		f.set = false
		f.path = ""
	default:
		f.path = v
	}
	return nil
}

// IsBoolFlag lets the flag appear without a value.
func (f *sourceMapFlag) IsBoolFlag() bool { return true }

func (f *sourceMapFlag) inline() bool {
	return strings.EqualFold(f.path, compiler.SourceMapInline)
}
