// Package wasm provides encoding and parsing of the WebAssembly 1.0 binary
// format, restricted to the constructs a Brainfuck compiler needs.
//
// # Module Structure
//
// A Module holds every section the compiler emits:
//
//	module.Types          []FuncType      // Function signatures
//	module.Imports        []Import        // Host functions and memories
//	module.Funcs          []uint32        // Type indices for defined functions
//	module.Memories       []MemoryType    // Linear memory
//	module.Globals        []Global        // Mutable i32 data pointer
//	module.Exports        []Export        // "memory", "_start"
//	module.Start          *uint32         // Optional start function
//	module.Code           []FuncBody      // Function bodies
//	module.CustomSections []CustomSection // "name", "sourceMappingURL"
//
// Function types are added with AddType, which reuses an existing index
// when an identical signature is already present.
//
// # Encoding
//
//	data := module.Encode()
//
// EncodeWithLayout additionally reports the absolute offset of each function
// body, which source map generation relies on:
//
//	data, layout := module.EncodeWithLayout()
//	first := layout.CodeStarts[0]
//
// # Parsing
//
//	module, err := wasm.ParseModule(data)
//	module, err := wasm.ParseModuleValidate(data)
//
// ParseModuleSections also returns where each section appeared, which the
// bf2wasm inspector prints.
//
// # Instructions
//
//	instrs, err := wasm.DecodeInstructions(code)
//	code := wasm.EncodeInstructions(instrs)
//
// Only the instructions listed in constants.go are understood; anything else
// is reported as unsupported.
//
// # LEB128 Encoding
//
// LEB128u yields the unsigned encoding of a value lazily:
//
//	for b := range wasm.LEB128u(624485) {
//	    buf = append(buf, b)
//	}
//
// EncodeLEB128u and EncodeLEB128s return whole encodings, and ReadLEB128u and
// ReadLEB128s decode from an io.ByteReader.
package wasm
