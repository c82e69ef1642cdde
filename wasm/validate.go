package wasm

import "fmt"

// Validate checks the module for structural validity: every index refers to
// something that exists and every function body has balanced control
// constructs. It does not type-check operand stacks.
func (m *Module) Validate() error {
	if err := m.validateTypeIndices(); err != nil {
		return err
	}
	if err := m.validateCodeCount(); err != nil {
		return err
	}
	if err := m.validateMemoryCount(); err != nil {
		return err
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	for i, body := range m.Code {
		if err := m.validateBody(body.Code); err != nil {
			return fmt.Errorf("function %d: %w", m.NumImportedFuncs()+i, err)
		}
	}
	return nil
}

// ParseModuleValidate parses a WebAssembly binary and validates it.
// This is a convenience function combining ParseModule and Validate.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return fmt.Errorf("import %s.%s: type index %d out of range (have %d types)",
				imp.Module, imp.Name, imp.Desc.TypeIdx, numTypes)
		}
	}
	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("function %d: type index %d out of range (have %d types)",
				m.NumImportedFuncs()+i, typeIdx, numTypes)
		}
	}
	return nil
}

func (m *Module) validateCodeCount() error {
	if len(m.Funcs) != len(m.Code) {
		return fmt.Errorf("function and code section have inconsistent lengths: %d != %d",
			len(m.Funcs), len(m.Code))
	}
	return nil
}

func (m *Module) validateMemoryCount() error {
	if total := m.NumImportedMemories() + len(m.Memories); total > 1 {
		return fmt.Errorf("multiple memories: %d", total)
	}
	for i, mem := range m.Memories {
		if mem.Limits.Max != nil && *mem.Limits.Max < mem.Limits.Min {
			return fmt.Errorf("memory %d: min %d > max %d", i, mem.Limits.Min, *mem.Limits.Max)
		}
		if mem.Limits.Min > 65536 {
			return fmt.Errorf("memory %d: min %d pages exceeds 4GiB", i, mem.Limits.Min)
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]bool, len(m.Exports))
	for _, exp := range m.Exports {
		if seen[exp.Name] {
			return fmt.Errorf("duplicate export name %q", exp.Name)
		}
		seen[exp.Name] = true

		var limit int
		switch exp.Kind {
		case KindFunc:
			limit = m.NumFuncs()
		case KindMemory:
			limit = m.NumImportedMemories() + len(m.Memories)
		case KindGlobal:
			limit = len(m.Globals)
		default:
			return fmt.Errorf("export %q: unsupported kind %d", exp.Name, exp.Kind)
		}
		if int(exp.Idx) >= limit {
			return fmt.Errorf("export %q: index %d out of range", exp.Name, exp.Idx)
		}
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return fmt.Errorf("start function index %d out of range", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function %d must have type [] -> []", *m.Start)
	}
	return nil
}

func (m *Module) validateBody(code []byte) error {
	instrs, err := DecodeInstructions(code)
	if err != nil {
		return err
	}
	numFuncs := uint32(m.NumFuncs())
	numGlobals := uint32(len(m.Globals))
	hasMemory := m.NumImportedMemories()+len(m.Memories) > 0

	// depth counts open labels, including the implicit function block.
	depth := uint32(1)
	for i, instr := range instrs {
		if depth == 0 {
			return fmt.Errorf("instruction %d (%s) after final end", i, instr)
		}
		switch imm := instr.Imm.(type) {
		case BlockImm:
			depth++
		case BranchImm:
			if imm.LabelIdx >= depth {
				return fmt.Errorf("instruction %d (%s): label out of range (depth %d)", i, instr, depth)
			}
		case CallImm:
			if imm.FuncIdx >= numFuncs {
				return fmt.Errorf("instruction %d (%s): function index out of range (have %d)", i, instr, numFuncs)
			}
		case GlobalImm:
			if imm.GlobalIdx >= numGlobals {
				return fmt.Errorf("instruction %d (%s): global index out of range", i, instr)
			}
			if instr.Opcode == OpGlobalSet && !m.Globals[imm.GlobalIdx].Type.Mutable {
				return fmt.Errorf("instruction %d (%s): global is immutable", i, instr)
			}
		case MemoryImm, MemoryIdxImm:
			if !hasMemory {
				return fmt.Errorf("instruction %d (%s): module has no memory", i, instr)
			}
		}
		if instr.Opcode == OpEnd {
			depth--
		}
	}
	if depth != 0 {
		return fmt.Errorf("unterminated body: %d open blocks", depth)
	}
	return nil
}
