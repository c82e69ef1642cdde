package engine

import "math/bits"

// BitSet is a dense set of small unsigned integers.
type BitSet struct {
	words []uint64
}

// NewBitSet returns a set sized for values below n; it grows on demand.
func NewBitSet(n int) *BitSet {
	return &BitSet{words: make([]uint64, (n+63)/64)}
}

func (b *BitSet) Set(v uint32) {
	w := int(v / 64)
	if w >= len(b.words) {
		b.words = append(b.words, make([]uint64, w+1-len(b.words))...)
	}
	b.words[w] |= 1 << (v % 64)
}

func (b *BitSet) Clear(v uint32) {
	if w := int(v / 64); w < len(b.words) {
		b.words[w] &^= 1 << (v % 64)
	}
}

func (b *BitSet) Has(v uint32) bool {
	w := int(v / 64)
	return w < len(b.words) && b.words[w]&(1<<(v%64)) != 0
}

// Union adds every member of o.
func (b *BitSet) Union(o *BitSet) {
	if len(o.words) > len(b.words) {
		b.words = append(b.words, make([]uint64, len(o.words)-len(b.words))...)
	}
	for i, w := range o.words {
		b.words[i] |= w
	}
}

func (b *BitSet) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// ToSlice returns the members in ascending order.
func (b *BitSet) ToSlice() []uint32 {
	var out []uint32
	for i, w := range b.words {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			out = append(out, uint32(i*64+bit))
			w &= w - 1
		}
	}
	return out
}
