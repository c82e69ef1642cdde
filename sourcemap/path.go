package sourcemap

import (
	"path/filepath"
	"unicode/utf16"
)

// Relative returns the path of to relative to the directory containing from,
// with forward slashes. Both paths are resolved against the working directory
// first. If no relative path exists (different volumes), to is returned with
// forward slashes.
func Relative(from, to string) string {
	fromAbs, err := filepath.Abs(from)
	if err != nil {
		return filepath.ToSlash(to)
	}
	toAbs, err := filepath.Abs(to)
	if err != nil {
		return filepath.ToSlash(to)
	}
	rel, err := filepath.Rel(filepath.Dir(fromAbs), toAbs)
	if err != nil {
		return filepath.ToSlash(to)
	}
	return filepath.ToSlash(rel)
}

// Position tracks zero-based line and column while walking source text.
// Columns count UTF-16 code units, as source map consumers expect.
type Position struct {
	Line   int
	Column int
}

// Advance moves past r.
func (p *Position) Advance(r rune) {
	if r == '\n' {
		p.Line++
		p.Column = 0
		return
	}
	if n := utf16.RuneLen(r); n > 0 {
		p.Column += n
	} else {
		p.Column++
	}
}

// PositionAt returns the position of byte offset off in src.
func PositionAt(src string, off int) Position {
	var p Position
	for i, r := range src {
		if i >= off {
			break
		}
		p.Advance(r)
	}
	return p
}
