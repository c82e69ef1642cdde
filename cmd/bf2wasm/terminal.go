package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/bf-wasm/runtime"
)

const dumpRule = "============================"

// runTerminal runs the module on the process's stdin and stdout. A terminal
// stdin is switched to raw mode so the program sees single key presses.
// Raw mode turns Ctrl-C into an ETX byte instead of SIGINT; it is passed to
// the program and also cancels the run.
func runTerminal(ctx context.Context, module []byte, cfg runtime.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg.Stdin = os.Stdin
	cfg.Stdout = os.Stdout

	fd := int(os.Stdin.Fd())
	restore := func() {}
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		restore = func() { _ = term.Restore(fd, state) }
		keys := newKeyReader(keyBuffer)
		go pumpKeys(&rawReader{r: os.Stdin}, keys, cancel)
		cfg.Interactive = true
		cfg.Stdin = keys
		cfg.Stdout = &rawWriter{w: os.Stdout}
	}

	rt, err := runtime.New(context.Background())
	if err != nil {
		restore()
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(context.Background())

	report, err := rt.Run(ctx, module, cfg)
	restore()
	fmt.Fprintln(os.Stdout)
	if err != nil {
		return err
	}
	if cfg.DumpCells > 0 {
		printCells(os.Stdout, report.Cells)
	}
	return nil
}

// pumpKeys copies r into keys until r fails, cancelling the run at every
// ETX. Reads of keys see EOF once r is exhausted.
func pumpKeys(r io.Reader, keys *keyReader, cancel context.CancelFunc) {
	defer keys.Close()
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			keys.push(b)
			if b == runtime.ETX {
				cancel()
			}
		}
		if err != nil {
			return
		}
	}
}

// rawReader maps the carriage return a raw terminal sends for Enter to a
// newline.
type rawReader struct {
	r io.Reader
}

func (r *rawReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	for i := range p[:n] {
		if p[i] == '\r' {
			p[i] = '\n'
		}
	}
	return n, err
}

// rawWriter restores the carriage return a raw terminal no longer adds
// after a newline.
type rawWriter struct {
	w   io.Writer
	buf []byte
}

func (w *rawWriter) Write(p []byte) (int, error) {
	if bytes.IndexByte(p, '\n') < 0 {
		return w.w.Write(p)
	}
	w.buf = w.buf[:0]
	for _, b := range p {
		if b == '\n' {
			w.buf = append(w.buf, '\r')
		}
		w.buf = append(w.buf, b)
	}
	if _, err := w.w.Write(w.buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// formatCells renders cells as space separated hex pairs.
func formatCells(cells []byte) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = hex.EncodeToString([]byte{c})
	}
	return strings.Join(parts, " ")
}
