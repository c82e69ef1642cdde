package sourcemap_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/bf-wasm/sourcemap"
)

func TestEncodeVLQ(t *testing.T) {
	tests := []struct {
		want string
		in   int
	}{
		{"A", 0},
		{"C", 1},
		{"D", -1},
		{"e", 15},
		{"f", -15},
		{"gB", 16},
		{"hB", -16},
		{"2H", 123},
		{"+/B", 1023},
	}
	for _, tt := range tests {
		if got := sourcemap.EncodeVLQ(tt.in); got != tt.want {
			t.Errorf("EncodeVLQ(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeVLQ(t *testing.T) {
	for _, v := range []int{0, 1, -1, 16, -16, 123, 1 << 20, -(1 << 30)} {
		enc := sourcemap.EncodeVLQ(v) + "AC"
		got, rest, err := sourcemap.DecodeVLQ(enc)
		if err != nil {
			t.Fatalf("DecodeVLQ(%q): %v", enc, err)
		}
		if got != v || rest != "AC" {
			t.Errorf("DecodeVLQ(%q) = %d, %q", enc, got, rest)
		}
	}

	if _, _, err := sourcemap.DecodeVLQ("g"); err == nil {
		t.Error("expected error for truncated value")
	}
	if _, _, err := sourcemap.DecodeVLQ("*"); err == nil {
		t.Error("expected error for invalid digit")
	}
}

func TestEncodeMappings(t *testing.T) {
	mappings := []sourcemap.Mapping{
		{Generated: 0},
		{Generated: 5, Column: 1},
		{Generated: 9, Line: 1},
	}
	got := sourcemap.EncodeMappings(mappings)
	if want := "AAAA,KAAC,IACD"; got != want {
		t.Fatalf("EncodeMappings = %q, want %q", got, want)
	}

	decoded, err := sourcemap.DecodeMappings(got)
	if err != nil {
		t.Fatalf("DecodeMappings: %v", err)
	}
	if len(decoded) != len(mappings) {
		t.Fatalf("decoded %d mappings, want %d", len(decoded), len(mappings))
	}
	for i := range mappings {
		if decoded[i] != mappings[i] {
			t.Errorf("mapping %d: got %+v, want %+v", i, decoded[i], mappings[i])
		}
	}
}

func TestDecodeMappingsErrors(t *testing.T) {
	if m, err := sourcemap.DecodeMappings(""); err != nil || m != nil {
		t.Errorf("empty mappings = %v, %v", m, err)
	}
	if _, err := sourcemap.DecodeMappings("AA"); err == nil {
		t.Error("expected error for two-field segment")
	}
	if _, err := sourcemap.DecodeMappings("AAAA,!"); err == nil {
		t.Error("expected error for invalid digit")
	}
}

func TestBuilderMapJSON(t *testing.T) {
	b := sourcemap.NewBuilder("hello.bf")
	b.Add(100, 0, 0)
	b.Add(102, 0, 1)
	if b.Len() != 2 {
		t.Fatalf("Len = %d", b.Len())
	}

	data, err := b.Map().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"version":3,"sources":["hello.bf"],"names":[],"mappings":"oGAAA,EAAC"}`
	if string(data) != want {
		t.Errorf("got %s\nwant %s", data, want)
	}

	parsed, err := sourcemap.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	mappings, err := parsed.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(mappings) != 2 || mappings[0].Generated != 100 || mappings[1].Generated != 102 || mappings[1].Column != 1 {
		t.Errorf("mappings: %+v", mappings)
	}
}

func TestEmptyMap(t *testing.T) {
	data, err := sourcemap.NewBuilder().Map().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := `{"version":3,"sources":[],"names":[],"mappings":""}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	var zero sourcemap.Map
	data, err = zero.Encode()
	if err != nil {
		t.Fatalf("Encode zero: %v", err)
	}
	if !strings.Contains(string(data), `"version":3`) {
		t.Errorf("zero map: %s", data)
	}
}

func TestDataURL(t *testing.T) {
	b := sourcemap.NewBuilder("prog.bf")
	b.Add(42, 3, 7)
	url, err := b.Map().DataURL()
	if err != nil {
		t.Fatalf("DataURL: %v", err)
	}
	if !strings.HasPrefix(url, sourcemap.DataURLPrefix) {
		t.Fatalf("url %q lacks prefix", url)
	}

	m, err := sourcemap.ParseDataURL(url)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	if len(m.Sources) != 1 || m.Sources[0] != "prog.bf" {
		t.Errorf("sources: %v", m.Sources)
	}
	mappings, err := m.Decode()
	if err != nil || len(mappings) != 1 || mappings[0] != (sourcemap.Mapping{Generated: 42, Line: 3, Column: 7}) {
		t.Errorf("mappings: %+v, %v", mappings, err)
	}

	if _, err := sourcemap.ParseDataURL("prog.wasm.map"); err == nil {
		t.Error("expected error for plain path")
	}
}

func TestParseRejectsVersion(t *testing.T) {
	if _, err := sourcemap.Parse([]byte(`{"version":2,"sources":[],"names":[],"mappings":""}`)); err == nil {
		t.Error("expected error for version 2")
	}
	if _, err := sourcemap.Parse([]byte(`{`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestRelative(t *testing.T) {
	tests := []struct {
		from, to, want string
	}{
		{"prog.wasm", "prog.wasm.map", "prog.wasm.map"},
		{"out/prog.wasm", "out/prog.wasm.map", "prog.wasm.map"},
		{"out/prog.wasm", "out/maps/prog.map", "maps/prog.map"},
		{"out/maps/prog.map", "src/prog.bf", "../../src/prog.bf"},
		{"prog.wasm.map", "examples/prog.bf", "examples/prog.bf"},
	}
	for _, tt := range tests {
		if got := sourcemap.Relative(tt.from, tt.to); got != tt.want {
			t.Errorf("Relative(%q, %q) = %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}

	dir := t.TempDir()
	from := filepath.Join(dir, "a", "b.wasm")
	to := filepath.Join(dir, "c", "d.bf")
	if got := sourcemap.Relative(from, to); got != "../c/d.bf" {
		t.Errorf("absolute paths: got %q", got)
	}
}

func TestPositionAt(t *testing.T) {
	src := "+\n+é+\n\U0001F600+"
	tests := []struct {
		off  int
		want sourcemap.Position
	}{
		{0, sourcemap.Position{}},
		{2, sourcemap.Position{Line: 1}},
		{5, sourcemap.Position{Line: 1, Column: 2}},
		{11, sourcemap.Position{Line: 2, Column: 2}},
	}
	for _, tt := range tests {
		if got := sourcemap.PositionAt(src, tt.off); got != tt.want {
			t.Errorf("PositionAt(%d) = %+v, want %+v", tt.off, got, tt.want)
		}
	}
}
