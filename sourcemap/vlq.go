package sourcemap

import (
	"fmt"
	"strings"
)

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	vlqShift        = 5
	vlqContinuation = 1 << vlqShift // 32
	vlqMask         = vlqContinuation - 1
)

var base64Index = func() [128]int8 {
	var idx [128]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base64Alphabet); i++ {
		idx[base64Alphabet[i]] = int8(i)
	}
	return idx
}()

// EncodeVLQ returns the base64 VLQ encoding of v. The sign is folded into the
// lowest bit, then five bits are emitted per digit, least significant first.
func EncodeVLQ(v int) string {
	return string(AppendVLQ(nil, v))
}

// AppendVLQ appends the base64 VLQ encoding of v to dst.
func AppendVLQ(dst []byte, v int) []byte {
	var u uint64
	if v < 0 {
		u = uint64(-v)<<1 | 1
	} else {
		u = uint64(v) << 1
	}
	for {
		digit := u & vlqMask
		u >>= vlqShift
		if u != 0 {
			digit |= vlqContinuation
		}
		dst = append(dst, base64Alphabet[digit])
		if u == 0 {
			return dst
		}
	}
}

// DecodeVLQ decodes one value from the front of s and returns it along with
// the unread remainder.
func DecodeVLQ(s string) (int, string, error) {
	var u uint64
	var shift uint
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 128 || base64Index[c] < 0 {
			return 0, s, fmt.Errorf("invalid base64 VLQ digit %q", c)
		}
		if shift > 60 {
			return 0, s, fmt.Errorf("base64 VLQ value too long")
		}
		digit := uint64(base64Index[c])
		u |= (digit & vlqMask) << shift
		shift += vlqShift
		if digit&vlqContinuation == 0 {
			v := int(u >> 1)
			if u&1 != 0 {
				v = -v
			}
			return v, s[i+1:], nil
		}
	}
	return 0, s, fmt.Errorf("truncated base64 VLQ value %q", s)
}

// decodeSegment decodes a comma-free run of VLQ values.
func decodeSegment(seg string) ([]int, error) {
	var fields []int
	for rest := seg; rest != ""; {
		v, tail, err := DecodeVLQ(rest)
		if err != nil {
			return nil, err
		}
		fields = append(fields, v)
		rest = tail
	}
	return fields, nil
}

func encodeSegment(b *strings.Builder, fields ...int) {
	var buf [32]byte
	out := buf[:0]
	for _, f := range fields {
		out = AppendVLQ(out, f)
	}
	b.Write(out)
}
