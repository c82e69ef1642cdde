package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the source map revision produced and accepted by this package.
const Version = 3

// DataURLPrefix starts an embedded source map URL.
const DataURLPrefix = "data:application/json;base64,"

// Map is a revision 3 source map.
type Map struct {
	Version  int      `json:"version"`
	File     string   `json:"file,omitempty"`
	Sources  []string `json:"sources"`
	Names    []string `json:"names"`
	Mappings string   `json:"mappings"`
}

// Mapping associates a generated column with a source position. Lines and
// columns are zero-based.
type Mapping struct {
	Generated int
	Source    int
	Line      int
	Column    int
}

// Builder accumulates mappings for a single generated line. The WebAssembly
// convention is to treat the whole binary as line zero, with the byte offset
// as the column.
type Builder struct {
	mappings []Mapping
	sources  []string
}

// NewBuilder creates a builder whose map lists the given sources.
func NewBuilder(sources ...string) *Builder {
	return &Builder{sources: sources}
}

// Add records that generated offset gen came from line and column of the
// first source. Offsets must be added in non-decreasing order.
func (b *Builder) Add(gen, line, column int) {
	b.AddSource(gen, 0, line, column)
}

// AddSource is Add for an arbitrary source index.
func (b *Builder) AddSource(gen, source, line, column int) {
	b.mappings = append(b.mappings, Mapping{Generated: gen, Source: source, Line: line, Column: column})
}

// Len reports the number of recorded mappings.
func (b *Builder) Len() int {
	return len(b.mappings)
}

// Map returns the encoded source map.
func (b *Builder) Map() *Map {
	sources := b.sources
	if sources == nil {
		sources = []string{}
	}
	return &Map{
		Version:  Version,
		Sources:  sources,
		Names:    []string{},
		Mappings: EncodeMappings(b.mappings),
	}
}

// EncodeMappings renders mappings as a single-line "mappings" string. Every
// field is delta-encoded against the previous segment.
func EncodeMappings(mappings []Mapping) string {
	var b strings.Builder
	var prev Mapping
	for i, m := range mappings {
		if i > 0 {
			b.WriteByte(',')
		}
		encodeSegment(&b,
			m.Generated-prev.Generated,
			m.Source-prev.Source,
			m.Line-prev.Line,
			m.Column-prev.Column,
		)
		prev = m
	}
	return b.String()
}

// DecodeMappings parses a "mappings" string. Only the first generated line
// is decoded; segments without a source position are skipped.
func DecodeMappings(s string) ([]Mapping, error) {
	line, _, _ := strings.Cut(s, ";")
	if line == "" {
		return nil, nil
	}
	var out []Mapping
	var cur Mapping
	for i, seg := range strings.Split(line, ",") {
		fields, err := decodeSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		switch len(fields) {
		case 1:
			cur.Generated += fields[0]
			continue
		case 4, 5:
		default:
			return nil, fmt.Errorf("segment %d: %d fields", i, len(fields))
		}
		cur.Generated += fields[0]
		cur.Source += fields[1]
		cur.Line += fields[2]
		cur.Column += fields[3]
		out = append(out, cur)
	}
	return out, nil
}

// Decode returns the map's mappings.
func (m *Map) Decode() ([]Mapping, error) {
	return DecodeMappings(m.Mappings)
}

// MarshalJSON is implemented on the value so a Map always serializes with its
// version, sources and names present.
func (m Map) MarshalJSON() ([]byte, error) {
	type plain Map
	p := plain(m)
	if p.Version == 0 {
		p.Version = Version
	}
	if p.Sources == nil {
		p.Sources = []string{}
	}
	if p.Names == nil {
		p.Names = []string{}
	}
	return json.Marshal(p)
}

// Encode serializes the map as JSON.
func (m *Map) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DataURL returns the map embedded in a data URL.
func (m *Map) DataURL() (string, error) {
	data, err := m.Encode()
	if err != nil {
		return "", err
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// Parse decodes a JSON source map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Version != Version {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	return &m, nil
}

// ParseDataURL decodes a map embedded with DataURL.
func ParseDataURL(url string) (*Map, error) {
	payload, ok := strings.CutPrefix(url, DataURLPrefix)
	if !ok {
		return nil, fmt.Errorf("not a base64 JSON data URL")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
