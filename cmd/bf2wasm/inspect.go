package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/wippyai/bf-wasm/compiler"
	"github.com/wippyai/bf-wasm/errors"
	"github.com/wippyai/bf-wasm/sourcemap"
	"github.com/wippyai/bf-wasm/wasm"
)

// inspect prints the sections, imports, exports and function names of a
// module.
func inspect(w io.Writer, module []byte) error {
	m, sections, err := wasm.ParseModuleSections(module)
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse module")
	}

	fmt.Fprintf(w, "Module: %d bytes\n", len(module))
	fmt.Fprintf(w, "\nSections:\n")
	for _, s := range sections {
		name := wasm.SectionName(s.ID)
		if s.Name != "" {
			name += " " + s.Name
		}
		fmt.Fprintf(w, "  %-24s offset %6d  size %6d\n", name, s.Offset, s.Size)
	}

	fmt.Fprintf(w, "\nImports:\n")
	for _, imp := range m.Imports {
		fmt.Fprintf(w, "  %s.%s %s\n", imp.Module, imp.Name, funcSig(m.Types[imp.Desc.TypeIdx]))
	}

	fmt.Fprintf(w, "\nExports:\n")
	for _, exp := range m.Exports {
		kind := "func"
		if exp.Kind == wasm.KindMemory {
			kind = "memory"
		}
		fmt.Fprintf(w, "  %s %s %d\n", exp.Name, kind, exp.Idx)
	}
	if m.Start != nil {
		fmt.Fprintf(w, "\nStart: %d\n", *m.Start)
	}

	names, err := m.FunctionNames()
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "name section")
	}
	if len(names) > 0 {
		fmt.Fprintf(w, "\nFunctions:\n")
		for _, n := range names {
			fmt.Fprintf(w, "  %d %s\n", n.Index, n.Name)
		}
	}

	if cs := m.CustomSection(wasm.CustomSectionSourceMappingURL); cs != nil {
		url, err := wasm.DecodeName(cs.Data)
		if err != nil {
			return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "sourceMappingURL")
		}
		if strings.HasPrefix(url, sourcemap.DataURLPrefix) {
			sm, err := sourcemap.ParseDataURL(url)
			if err != nil {
				return err
			}
			mappings, err := sm.Decode()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\nSource map: inline, sources %v, %d mappings\n", sm.Sources, len(mappings))
		} else {
			fmt.Fprintf(w, "\nSource map: %s\n", url)
		}
	}

	if int(compiler.FuncEntry) < m.NumFuncs() {
		body := m.Code[int(compiler.FuncEntry)-m.NumImportedFuncs()]
		instrs, err := wasm.DecodeInstructions(body.Code)
		if err != nil {
			return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "entry body")
		}
		fmt.Fprintf(w, "\nEntry: %d instructions, %d bytes\n", len(instrs), len(body.Code))
	}
	return nil
}

func funcSig(ft wasm.FuncType) string {
	join := func(ts []wasm.ValType) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = t.String()
		}
		return strings.Join(parts, " ")
	}
	return "(" + join(ft.Params) + ") -> (" + join(ft.Results) + ")"
}
