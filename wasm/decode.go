package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/bf-wasm/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// SectionInfo describes one section as it appeared in a parsed binary.
type SectionInfo struct {
	Name   string // custom section name, empty for known sections
	Offset int    // absolute offset of the section id byte
	Size   uint32 // payload size
	ID     byte
}

// ParseModule parses a WebAssembly binary module
func ParseModule(data []byte) (*Module, error) {
	m, _, err := ParseModuleSections(data)
	return m, err
}

// ParseModuleSections parses a WebAssembly binary module and also returns
// the sections in the order they were encountered.
func ParseModuleSections(data []byte) (*Module, []SectionInfo, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, nil, ErrInvalidMagic
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, nil, ErrInvalidVersion
	}

	m := &Module{}
	var sections []SectionInfo
	var lastID byte

	for {
		offset := r.Position()
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, r.WrapError("section header", err)
		}

		// Custom sections can appear anywhere
		if sectionID != SectionCustom {
			if sectionID <= lastID {
				return nil, nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastID = sectionID
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, nil, r.WrapError("section size", err)
		}

		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, nil, r.WrapError("section data", err)
		}

		info := SectionInfo{ID: sectionID, Offset: offset, Size: sectionSize}
		sr := binary.NewReader(sectionData)

		switch sectionID {
		case SectionCustom:
			err = parseCustomSection(sr, m)
			if err == nil {
				info.Name = m.CustomSections[len(m.CustomSections)-1].Name
			}
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionCode:
			err = parseCodeSection(sr, m)
		default:
			return nil, nil, fmt.Errorf("unsupported section ID: 0x%02x", sectionID)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s section: %w", SectionName(sectionID), err)
		}
		if sr.Len() != 0 {
			return nil, nil, fmt.Errorf("%s section: %d trailing bytes", SectionName(sectionID), sr.Len())
		}
		sections = append(sections, info)
	}

	return m, sections, nil
}

// SectionName returns a lower-case name for a section id.
func SectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	default:
		return fmt.Sprintf("section(%d)", id)
	}
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	data, err := r.ReadRemaining()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: data})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("type %d: unsupported form 0x%02x", i, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	types := make([]ValType, count)
	for i := range types {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		types[i] = ValType(b)
	}
	return types, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Name, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Desc.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		switch imp.Desc.Kind {
		case KindFunc:
			if imp.Desc.TypeIdx, err = r.ReadU32(); err != nil {
				return err
			}
		case KindMemory:
			limits, err := readLimits(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &MemoryType{Limits: limits}
		default:
			return fmt.Errorf("import %s.%s: unsupported kind %d", imp.Module, imp.Name, imp.Desc.Kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, typeIdx)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		limits, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, MemoryType{Limits: limits})
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags&^LimitsHasMax != 0 {
		return Limits{}, fmt.Errorf("unsupported limits flags 0x%02x", flags)
	}
	var l Limits
	if l.Min, err = r.ReadU32(); err != nil {
		return Limits{}, err
	}
	if flags&LimitsHasMax != 0 {
		maxPages, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		l.Max = &maxPages
	}
	return l, nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		vt, err := r.ReadByte()
		if err != nil {
			return err
		}
		mut, err := r.ReadByte()
		if err != nil {
			return err
		}
		if mut > 1 {
			return fmt.Errorf("global %d: invalid mutability %d", i, mut)
		}
		init, err := readInitExpr(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{
			Type: GlobalType{ValType: ValType(vt), Mutable: mut == 1},
			Init: init,
		})
	}
	return nil
}

// readInitExpr reads a constant expression up to and including its end
// opcode. Only i32.const and global.get are accepted.
func readInitExpr(r *binary.Reader) ([]byte, error) {
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	w := binary.NewWriter()
	w.Byte(op)
	switch op {
	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return nil, err
		}
		w.WriteS32(v)
	case OpGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		w.WriteU32(idx)
	default:
		return nil, fmt.Errorf("unsupported init opcode 0x%02x", op)
	}
	end, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if end != OpEnd {
		return nil, fmt.Errorf("init expression not terminated by end: 0x%02x", end)
	}
	w.Byte(end)
	return w.Bytes(), nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var exp Export
		if exp.Name, err = r.ReadName(); err != nil {
			return err
		}
		if exp.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if exp.Idx, err = r.ReadU32(); err != nil {
			return err
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		data, err := r.ReadBytes(int(size))
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		br := binary.NewReader(data)
		localGroups, err := br.ReadU32()
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		var body FuncBody
		for j := uint32(0); j < localGroups; j++ {
			n, err := br.ReadU32()
			if err != nil {
				return fmt.Errorf("body %d: %w", i, err)
			}
			vt, err := br.ReadByte()
			if err != nil {
				return fmt.Errorf("body %d: %w", i, err)
			}
			body.Locals = append(body.Locals, LocalEntry{Count: n, ValType: ValType(vt)})
		}
		if body.Code, err = br.ReadRemaining(); err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		m.Code = append(m.Code, body)
	}
	return nil
}
