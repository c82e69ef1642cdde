// Package sourcemap builds revision 3 source maps for WebAssembly binaries.
//
// A WebAssembly module has no lines, so the whole binary is generated line
// zero and each mapping's generated column is an absolute byte offset into
// the module. Mappings are written with base64 VLQ encoding:
//
//	b := sourcemap.NewBuilder("hello.bf")
//	b.Add(offset, line, column)
//	m := b.Map()
//
// A map is delivered either embedded in the module as a data URL
// (Map.DataURL) or as a sibling file whose location is recorded in the
// module's sourceMappingURL section. Paths inside a sibling map are
// relative to the map itself; Relative computes them.
package sourcemap
