package wasm

import (
	"fmt"

	"github.com/wippyai/bf-wasm/wasm/internal/binary"
)

// NameAssoc associates an index with a debug name.
type NameAssoc struct {
	Name  string
	Index uint32
}

// EncodeNameSection returns the payload of a "name" custom section holding a
// single function-names subsection. Entries must be sorted by index.
func EncodeNameSection(funcs []NameAssoc) []byte {
	sub := binary.NewWriter()
	sub.WriteU32(uint32(len(funcs)))
	for _, f := range funcs {
		sub.WriteU32(f.Index)
		sub.WriteName(f.Name)
	}

	w := binary.NewWriter()
	w.Byte(NameSubsectionFunctions)
	w.WriteU32(uint32(sub.Len()))
	w.WriteBytes(sub.Bytes())
	return w.Bytes()
}

// ParseFunctionNames decodes the function-names subsection of a "name"
// custom section payload. Other subsections are skipped.
func ParseFunctionNames(data []byte) ([]NameAssoc, error) {
	r := binary.NewReader(data)
	var names []NameAssoc
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		if id != NameSubsectionFunctions {
			continue
		}

		sr := binary.NewReader(payload)
		count, err := sr.ReadU32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			idx, err := sr.ReadU32()
			if err != nil {
				return nil, err
			}
			name, err := sr.ReadName()
			if err != nil {
				return nil, err
			}
			if len(names) > 0 && idx <= names[len(names)-1].Index {
				return nil, fmt.Errorf("function name %q: index %d out of order", name, idx)
			}
			names = append(names, NameAssoc{Index: idx, Name: name})
		}
	}
	return names, nil
}

// FunctionNames returns the function names recorded in the module's "name"
// section, or nil when it has none.
func (m *Module) FunctionNames() ([]NameAssoc, error) {
	cs := m.CustomSection(CustomSectionName)
	if cs == nil {
		return nil, nil
	}
	return ParseFunctionNames(cs.Data)
}
