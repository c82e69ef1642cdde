package runtime

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// ETX is the byte a raw terminal delivers for Ctrl-C.
const ETX = 0x03

// streams holds the guest's byte streams. The simple ABI reaches them
// through the input and output host functions, the descriptor ABI through
// the WASI stdin and stdout of the module config.
type streams struct {
	in      io.Reader
	out     io.Writer
	one     [1]byte
	written atomic.Int64
}

func newStreams(cfg Config, interrupt func()) *streams {
	s := &streams{}

	in := cfg.Stdin
	if in == nil {
		in = eofReader{}
	}
	if cfg.Interactive {
		in = &etxReader{r: in, fire: interrupt}
	}
	s.in = in

	out := cfg.Stdout
	if out == nil {
		out = io.Discard
	}
	if cfg.HexOutput {
		out = &hexWriter{w: out}
	}
	s.out = &countingWriter{w: out, n: &s.written}
	return s
}

// input implements env.in: () -> i32. End of input yields 0.
func (s *streams) input(_ context.Context, _ api.Module, stack []uint64) {
	n, err := io.ReadFull(s.in, s.one[:])
	if n == 0 {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			Logger().Debug("input read failed", zap.Error(err))
		}
		stack[0] = 0
		return
	}
	stack[0] = api.EncodeI32(int32(s.one[0]))
}

// output implements env.out: (i32) -> (). Only the low byte is written.
func (s *streams) output(_ context.Context, _ api.Module, stack []uint64) {
	b := [1]byte{byte(api.DecodeI32(stack[0]))}
	if _, err := s.out.Write(b[:]); err != nil {
		Logger().Debug("output write failed", zap.Error(err))
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// etxReader ends the stream at the first ETX byte and reports it.
type etxReader struct {
	r    io.Reader
	fire func()
	done bool
}

func (e *etxReader) Read(p []byte) (int, error) {
	if e.done {
		return 0, io.EOF
	}
	n, err := e.r.Read(p)
	if i := bytes.IndexByte(p[:n], ETX); i >= 0 {
		e.done = true
		e.fire()
		if i == 0 {
			return 0, io.EOF
		}
		return i, nil
	}
	return n, err
}

// hexWriter renders each byte as two lower-case hex digits and a space.
type hexWriter struct {
	w   io.Writer
	buf []byte
}

func (h *hexWriter) Write(p []byte) (int, error) {
	h.buf = h.buf[:0]
	for _, b := range p {
		h.buf = hex.AppendEncode(h.buf, []byte{b})
		h.buf = append(h.buf, ' ')
	}
	if _, err := h.w.Write(h.buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}
