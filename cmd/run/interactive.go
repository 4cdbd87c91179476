package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	lua "github.com/yuin/gopher-lua"

	luabridge "github.com/wippyai/lua-bridge"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// historyWindow caps how many past entries the view repaints.
const historyWindow = 12

type replEntry struct {
	src string
	out string
	err error
}

type evalDoneMsg struct {
	entry replEntry
}

type replModel struct {
	rt      *luabridge.Runtime
	input   textinput.Model
	history []replEntry

	// recall indexes history while browsing with the arrow keys;
	// len(history) means the live input line.
	recall int
}

func newReplModel(rt *luabridge.Runtime) *replModel {
	ti := textinput.New()
	ti.Placeholder = "c = new_counter(); c:add(2)"
	ti.Prompt = promptStyle.Render("lua> ")
	ti.Width = 72
	ti.Focus()
	return &replModel{rt: rt, input: ti}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" {
				return m, nil
			}
			if src == "exit" || src == "quit" {
				return m, tea.Quit
			}
			m.input.SetValue("")
			return m, m.eval(src)

		case "up":
			if m.recall > 0 {
				m.recall--
				m.input.SetValue(m.history[m.recall].src)
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.recall < len(m.history) {
				m.recall++
				if m.recall == len(m.history) {
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.history[m.recall].src)
					m.input.CursorEnd()
				}
			}
			return m, nil
		}

	case evalDoneMsg:
		m.history = append(m.history, msg.entry)
		m.recall = len(m.history)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) eval(src string) tea.Cmd {
	return func() tea.Msg {
		out, err := evalChunk(m.rt, src)
		return evalDoneMsg{entry: replEntry{src: src, out: out, err: err}}
	}
}

// evalChunk compiles src as an expression first so `1 + 2` prints its
// value, then falls back to a statement chunk.
func evalChunk(rt *luabridge.Runtime, src string) (string, error) {
	L := rt.State()

	fn, err := L.LoadString("return " + src)
	if err != nil {
		fn, err = L.LoadString(src)
	}
	if err != nil {
		return "", err
	}

	base := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(base)
		return "", err
	}

	var parts []string
	for i := base + 1; i <= L.GetTop(); i++ {
		parts = append(parts, renderValue(rt, L.Get(i)))
	}
	L.SetTop(base)
	return strings.Join(parts, "\t"), nil
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("lua-bridge"))
	b.WriteString("\n\n")

	start := 0
	if len(m.history) > historyWindow {
		start = len(m.history) - historyWindow
	}
	for _, e := range m.history[start:] {
		b.WriteString(promptStyle.Render("lua> "))
		b.WriteString(e.src)
		b.WriteString("\n")
		if e.err != nil {
			b.WriteString(errorStyle.Render(firstLine(e.err.Error())))
			b.WriteString("\n")
		} else if e.out != "" {
			b.WriteString(resultStyle.Render(e.out))
			b.WriteString("\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("↑/↓ history • enter eval • ctrl+c quit • try new_counter()"))
	b.WriteString("\n")
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func runInteractive(rt *luabridge.Runtime) error {
	p := tea.NewProgram(newReplModel(rt), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
