package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/bf-wasm/errors"
	"github.com/wippyai/bf-wasm/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	dumpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const keyBuffer = 256

type interactiveModel struct {
	err      error
	ctx      context.Context
	cancel   context.CancelFunc
	program  *tea.Program
	keys     *keyReader
	filename string
	module   []byte
	cfg      runtime.Config
	out      strings.Builder
	cells    []byte
	viewport viewport.Model
	ready    bool
	running  bool
}

type outputMsg []byte

type finishedMsg struct {
	err    error
	report *runtime.Report
}

func newInteractiveModel(filename string, module []byte, cfg runtime.Config) *interactiveModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &interactiveModel{
		ctx:      ctx,
		cancel:   cancel,
		filename: filename,
		module:   module,
		cfg:      cfg,
		keys:     newKeyReader(keyBuffer),
		running:  true,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.runProgram
}

// runProgram executes the module with keys from the TUI as input and sends
// its output back as messages.
func (m *interactiveModel) runProgram() tea.Msg {
	rt, err := runtime.New(context.Background())
	if err != nil {
		return finishedMsg{err: err}
	}
	defer rt.Close(context.Background())

	cfg := m.cfg
	cfg.Stdin = m.keys
	cfg.Stdout = &msgWriter{send: m.program.Send}
	cfg.Interactive = true

	report, err := rt.Run(m.ctx, m.module, cfg)
	return finishedMsg{report: report, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-6, 3)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.viewport.SetContent(m.out.String())
		return m, nil

	case tea.KeyMsg:
		if !m.running {
			switch msg.String() {
			case "ctrl+c", "q", "esc", "enter":
				return m, tea.Quit
			}
			break
		}
		if msg.Type == tea.KeyCtrlC {
			// ETX wakes a program blocked on input; cancelling stops one
			// that never reads.
			m.keys.push(runtime.ETX)
			m.cancel()
			return m, nil
		}
		if b, ok := keyBytes(msg); ok {
			for _, c := range b {
				m.keys.push(c)
			}
			return m, nil
		}

	case outputMsg:
		m.out.Write(msg)
		if m.ready {
			m.viewport.SetContent(m.out.String())
			m.viewport.GotoBottom()
		}
		return m, nil

	case finishedMsg:
		m.running = false
		m.keys.Close()
		m.err = msg.err
		if msg.report != nil {
			m.cells = msg.report.Cells
		}
		return m, nil
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) View() string {
	if !m.ready {
		return "Starting..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("bf2wasm"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n\n")

	switch {
	case m.running:
		b.WriteString(statusStyle.Render("running"))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("type to send input • ctrl+c interrupt"))
	case m.err != nil:
		if e, ok := m.err.(*errors.Error); ok && e.Kind == errors.KindInterrupted {
			b.WriteString(errorStyle.Render("interrupted"))
		} else {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("q quit"))
	default:
		b.WriteString(statusStyle.Render("finished"))
		if len(m.cells) > 0 {
			b.WriteString("  ")
			b.WriteString(dumpStyle.Render(formatCells(m.cells)))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • q quit"))
	}
	return b.String()
}

// keyBytes returns the bytes a key press delivers to the program.
func keyBytes(msg tea.KeyMsg) ([]byte, bool) {
	switch msg.Type {
	case tea.KeyRunes:
		var b []byte
		for _, r := range msg.Runes {
			b = utf8.AppendRune(b, r)
		}
		return b, true
	case tea.KeySpace:
		return []byte{' '}, true
	case tea.KeyEnter:
		return []byte{'\n'}, true
	case tea.KeyTab:
		return []byte{'\t'}, true
	case tea.KeyBackspace:
		return []byte{0x7f}, true
	}
	return nil, false
}

// keyReader is an io.Reader fed from key presses.
type keyReader struct {
	ch   chan byte
	done chan struct{}
}

func newKeyReader(size int) *keyReader {
	return &keyReader{ch: make(chan byte, size), done: make(chan struct{})}
}

// push queues b, dropping it when the buffer is full or the reader closed.
func (k *keyReader) push(b byte) {
	select {
	case <-k.done:
	case k.ch <- b:
	default:
	}
}

func (k *keyReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	select {
	case b := <-k.ch:
		p[0] = b
		n := 1
		for n < len(p) {
			select {
			case b := <-k.ch:
				p[n] = b
				n++
			default:
				return n, nil
			}
		}
		return n, nil
	case <-k.done:
		select {
		case b := <-k.ch:
			p[0] = b
			return 1, nil
		default:
			return 0, io.EOF
		}
	}
}

// Close unblocks pending reads.
func (k *keyReader) Close() error {
	select {
	case <-k.done:
	default:
		close(k.done)
	}
	return nil
}

// msgWriter forwards program output to the TUI.
type msgWriter struct {
	send func(tea.Msg)
}

func (w *msgWriter) Write(p []byte) (int, error) {
	w.send(outputMsg(append([]byte(nil), p...)))
	return len(p), nil
}

func runInteractive(filename string, module []byte, cfg runtime.Config) error {
	m := newInteractiveModel(filename, module, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.program = p

	final, err := p.Run()
	m.cancel()
	m.keys.Close()
	if err != nil {
		return err
	}
	if fm, ok := final.(*interactiveModel); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
