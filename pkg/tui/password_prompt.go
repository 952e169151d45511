package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PasswordPromptModel is a reusable password input component
type PasswordPromptModel struct {
	input       textinput.Model
	title       string
	description string
}

// PasswordSubmittedMsg is sent when password is submitted
type PasswordSubmittedMsg struct {
	Password  string
	Cancelled bool
}

// NewPasswordPromptModel creates a new password prompt
func NewPasswordPromptModel(title, description string) *PasswordPromptModel {
	input := textinput.New()
	input.Placeholder = "Enter password"
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	input.CharLimit = 256
	input.Width = 50
	input.Prompt = "> "
	input.Focus()

	return &PasswordPromptModel{
		input:       input,
		title:       title,
		description: description,
	}
}

func (m *PasswordPromptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *PasswordPromptModel) Update(msg tea.Msg) (*PasswordPromptModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			password := m.input.Value()
			return m, func() tea.Msg { return PasswordSubmittedMsg{Password: password} }
		case "esc":
			return m, func() tea.Msg { return PasswordSubmittedMsg{Cancelled: true} }
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *PasswordPromptModel) View() string {
	var b strings.Builder

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))
	b.WriteString(title.Render(m.title))
	b.WriteString("\n\n")

	if m.description != "" {
		desc := lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
		b.WriteString(desc.Render(m.description))
		b.WriteString("\n\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Italic(true).Render("enter: submit • esc: cancel"))

	return popupStyle.Render(b.String())
}
