package compiler

import "github.com/wippyai/bf-wasm/wasm"

// ABI selects how the module talks to its host.
type ABI uint8

const (
	// ABISimple imports env.in () -> i32 and env.out (i32) -> ().
	ABISimple ABI = iota
	// ABIDescriptor imports fd_read and fd_write from wasi_unstable and
	// passes a one-element iovec through a scratch area in linear memory.
	ABIDescriptor
)

// Function index space.
const (
	FuncInput  uint32 = 0
	FuncOutput uint32 = 1
	numImports        = 2
)

// FuncEntry is the index of the exported entry function.
const FuncEntry = numImports + uint32(len(callableOps))

// EntryName is the export and debug name of the entry function.
const EntryName = "_start"

// MemoryExportName is the export name of linear memory.
const MemoryExportName = "memory"

// Descriptor ABI scratch layout. The iovec occupies 60000..60007 and the
// byte count written by the host lands at 60008.
const (
	IovecAddr    int32 = 60000
	IovecLenAddr int32 = 60004
	NWrittenAddr int32 = 60008
	StdinFD      int32 = 0
	StdoutFD     int32 = 1
)

const (
	simpleModule     = "env"
	descriptorModule = "wasi_unstable"
)

// ImportModule returns the module name both I/O imports live in.
func (a ABI) ImportModule() string {
	if a == ABIDescriptor {
		return descriptorModule
	}
	return simpleModule
}

// InputName returns the field name of the input import.
func (a ABI) InputName() string {
	if a == ABIDescriptor {
		return "fd_read"
	}
	return "in"
}

// OutputName returns the field name of the output import.
func (a ABI) OutputName() string {
	if a == ABIDescriptor {
		return "fd_write"
	}
	return "out"
}

func (a ABI) String() string {
	if a == ABIDescriptor {
		return "wasi"
	}
	return "simple"
}

// importTypes returns the signatures of the input and output imports.
func (a ABI) importTypes() (in, out wasm.FuncType) {
	if a == ABIDescriptor {
		fd := wasm.FuncType{
			Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32},
			Results: []wasm.ValType{wasm.ValI32},
		}
		return fd, fd
	}
	return wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}},
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
}

// FuncIndex returns the function index of a callable operator.
func FuncIndex(op Op) (uint32, bool) {
	for i, c := range callableOps {
		if c == op {
			return numImports + uint32(i), true
		}
	}
	return 0, false
}
