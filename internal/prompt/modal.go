package prompt

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
)

type ModalState int

const (
	ModalClosed ModalState = iota
	ModalOpen
)

const modalFieldCount = 3 // Response, Continue, Stop

// DecisionModal is the full-screen form for one dialog request: a free-text
// response field plus Continue and Stop buttons. It is a plain component
// driven by key messages; the surrounding program owns the event loop.
type DecisionModal struct {
	state         ModalState
	focusIndex    int
	req           dialog.Request
	responseField string
}

func NewDecisionModal() DecisionModal {
	return DecisionModal{state: ModalClosed}
}

func (m *DecisionModal) Open(req dialog.Request) {
	m.state = ModalOpen
	m.focusIndex = 0
	m.req = req
	m.responseField = ""
}

func (m *DecisionModal) Close()               { m.state = ModalClosed }
func (m DecisionModal) IsOpen() bool          { return m.state == ModalOpen }
func (m DecisionModal) FocusIndex() int       { return m.focusIndex }
func (m DecisionModal) ResponseField() string { return m.responseField }

// DecisionMadeMsg carries the completed resolution out of the modal.
type DecisionMadeMsg struct {
	Resolution dialog.Resolution
}

// ModalDismissedMsg is emitted when the human backs out without deciding.
type ModalDismissedMsg struct{}

func (m *DecisionModal) Update(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.Close()
		return func() tea.Msg { return ModalDismissedMsg{} }
	case "tab", "down":
		m.focusIndex = (m.focusIndex + 1) % modalFieldCount
		return nil
	case "shift+tab", "up":
		m.focusIndex = (m.focusIndex + modalFieldCount - 1) % modalFieldCount
		return nil
	case "enter":
		switch m.focusIndex {
		case 1:
			return m.decide(true)
		case 2:
			return m.decide(false)
		default:
			m.focusIndex = (m.focusIndex + 1) % modalFieldCount
			return nil
		}
	case "backspace":
		if m.focusIndex == 0 && len(m.responseField) > 0 {
			m.responseField = m.responseField[:len(m.responseField)-1]
		}
		return nil
	default:
		if m.focusIndex == 0 && msg.Type == tea.KeyRunes {
			m.responseField += string(msg.Runes)
		} else if m.focusIndex == 0 && msg.Type == tea.KeySpace {
			m.responseField += " "
		}
	}
	return nil
}

func (m *DecisionModal) decide(shouldContinue bool) tea.Cmd {
	res := dialog.Resolution{
		ShouldContinue: shouldContinue,
		UserInput:      strings.TrimSpace(m.responseField),
	}
	m.Close()
	return func() tea.Msg {
		return DecisionMadeMsg{Resolution: res}
	}
}

func (m DecisionModal) View() string {
	if !m.IsOpen() {
		return ""
	}

	border := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).Padding(1, 2).Width(58)
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	focus := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	mk := func(idx int) string {
		if m.focusIndex == idx {
			return focus.Render("▸ ")
		}
		return "  "
	}

	var b strings.Builder
	b.WriteString(title.Render("Agent awaiting decision") + "\n")
	meta := fmt.Sprintf("#%d", m.req.SequenceNumber)
	if m.req.Workspace != "" {
		meta += "  " + m.req.Workspace
	}
	b.WriteString(dim.Render(meta) + "\n\n")
	b.WriteString(m.req.Reason + "\n\n")
	preview := m.responseField
	if len(preview) > 38 {
		preview = preview[:38] + "..."
	}
	b.WriteString(mk(0) + "Response: [ " + preview + " ]\n\n")
	cont := "[ Continue ]"
	if m.focusIndex == 1 {
		cont = focus.Render("[ Continue ]")
	}
	stop := "[ Stop ]"
	if m.focusIndex == 2 {
		stop = focus.Render("[ Stop ]")
	}
	b.WriteString("  " + cont + "  " + stop + dim.Render("  (Esc to dismiss)") + "\n")
	return border.Render(b.String())
}

// modalShell adapts the component to a standalone bubbletea program that
// exits once a decision or dismissal arrives.
type modalShell struct {
	modal    DecisionModal
	res      dialog.Resolution
	answered bool
}

func (s modalShell) Init() tea.Cmd { return nil }

func (s modalShell) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return s, tea.Quit
		}
		cmd := s.modal.Update(msg)
		return s, cmd
	case DecisionMadeMsg:
		s.res = msg.Resolution
		s.answered = true
		return s, tea.Quit
	case ModalDismissedMsg:
		return s, tea.Quit
	}
	return s, nil
}

func (s modalShell) View() string {
	if !s.modal.IsOpen() {
		return ""
	}
	return s.modal.View() + "\n"
}

func runModal(ctx context.Context, in io.Reader, out io.Writer, req dialog.Request) (dialog.Resolution, error) {
	shell := modalShell{modal: NewDecisionModal()}
	shell.modal.Open(req)

	prog := tea.NewProgram(shell, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := prog.Run()
	if err != nil {
		return dialog.Resolution{}, fmt.Errorf("decision form: %w", err)
	}
	done, ok := final.(modalShell)
	if !ok || !done.answered {
		return dialog.Resolution{}, ErrDismissed
	}
	return done.res, nil
}
