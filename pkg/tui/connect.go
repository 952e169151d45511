package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/quocson95/nedok/pkg/ssh"
	"github.com/quocson95/nedok/pkg/workspace"
)

const (
	inputHost = iota
	inputPort
	inputUsername
	inputPassword
	inputRootDir
	inputCount
)

// ConnectModel is the connect form.
type ConnectModel struct {
	inputs  []textinput.Model
	focused int
	save    bool
	err     error
}

// NewConnectModel creates the form with port and user defaults.
func NewConnectModel(defaultPort int, defaultUser string) *ConnectModel {
	inputs := make([]textinput.Model, inputCount)

	inputs[inputHost] = textinput.New()
	inputs[inputHost].Placeholder = "192.168.1.1"
	inputs[inputHost].Focus()
	inputs[inputHost].CharLimit = 253
	inputs[inputHost].Width = 40
	inputs[inputHost].Prompt = "Host: "

	inputs[inputPort] = textinput.New()
	inputs[inputPort].Placeholder = strconv.Itoa(defaultPort)
	inputs[inputPort].CharLimit = 5
	inputs[inputPort].Width = 40
	inputs[inputPort].Prompt = "Port: "

	inputs[inputUsername] = textinput.New()
	inputs[inputUsername].Placeholder = defaultUser
	inputs[inputUsername].CharLimit = 32
	inputs[inputUsername].Width = 40
	inputs[inputUsername].Prompt = "Username: "

	inputs[inputPassword] = textinput.New()
	inputs[inputPassword].Placeholder = "(optional if using agent or key)"
	inputs[inputPassword].CharLimit = 128
	inputs[inputPassword].Width = 40
	inputs[inputPassword].Prompt = "Password: "
	inputs[inputPassword].EchoMode = textinput.EchoPassword
	inputs[inputPassword].EchoCharacter = '•'

	inputs[inputRootDir] = textinput.New()
	inputs[inputRootDir].Placeholder = "(optional) /srv/app"
	inputs[inputRootDir].CharLimit = 256
	inputs[inputRootDir].Width = 40
	inputs[inputRootDir].Prompt = "Root dir: "

	return &ConnectModel{inputs: inputs}
}

// connectSubmitMsg carries a filled form to the app.
type connectSubmitMsg struct {
	req workspace.ConnectRequest
}

// connectCancelMsg closes the form.
type connectCancelMsg struct{}

func (m *ConnectModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *ConnectModel) Update(msg tea.Msg) (*ConnectModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "tab", "shift+tab", "up", "down":
			if msg.String() == "up" || msg.String() == "shift+tab" {
				m.focused--
			} else {
				m.focused++
			}
			if m.focused > len(m.inputs)-1 {
				m.focused = 0
			} else if m.focused < 0 {
				m.focused = len(m.inputs) - 1
			}
			for i := range m.inputs {
				if i == m.focused {
					m.inputs[i].Focus()
				} else {
					m.inputs[i].Blur()
				}
			}
			return m, nil

		case "ctrl+s":
			m.save = !m.save
			return m, nil

		case "esc":
			return m, func() tea.Msg { return connectCancelMsg{} }

		case "enter":
			req, err := m.request()
			if err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			return m, func() tea.Msg { return connectSubmitMsg{req: req} }
		}
	}

	cmds := make([]tea.Cmd, len(m.inputs))
	for i := range m.inputs {
		m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m *ConnectModel) request() (workspace.ConnectRequest, error) {
	host := strings.TrimSpace(m.inputs[inputHost].Value())
	if host == "" {
		return workspace.ConnectRequest{}, fmt.Errorf("host is required")
	}
	var port int
	if s := strings.TrimSpace(m.inputs[inputPort].Value()); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil || p <= 0 || p > 65535 {
			return workspace.ConnectRequest{}, fmt.Errorf("invalid port: %s", s)
		}
		port = p
	}
	return workspace.ConnectRequest{
		Host:         host,
		Port:         port,
		Username:     strings.TrimSpace(m.inputs[inputUsername].Value()),
		Password:     m.inputs[inputPassword].Value(),
		RootDir:      strings.TrimSpace(m.inputs[inputRootDir].Value()),
		SavePassword: m.save,
	}, nil
}

func (m *ConnectModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Connect to SSH Server"))
	b.WriteString("\n\n")
	for i := range m.inputs {
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
	}
	check := "[ ]"
	if m.save {
		check = "[x]"
	}
	b.WriteString(fmt.Sprintf("\n%s save password\n\n", check))
	b.WriteString(helpStyle.Render("tab: next • ctrl+s: toggle save • enter: connect • esc: cancel"))
	if m.err != nil {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return popupStyle.Render(b.String())
}

// The connect runs in a command goroutine. Host key approval and password
// prompts cross back to the UI as bridge requests and block the dial until
// the user answers.

type bridgeKind int

const (
	bridgeHostKey bridgeKind = iota
	bridgePassword
)

type bridgeRequest struct {
	kind        bridgeKind
	host        string
	user        string
	fingerprint string
	reply       chan bridgeReply
}

type bridgeReply struct {
	ok       bool
	password string
}

// bridgeMsg delivers a pending question to the UI.
type bridgeMsg struct{ req bridgeRequest }

// connectDoneMsg ends a connect attempt.
type connectDoneMsg struct {
	session *ssh.Session
	err     error
}

// dialer is one in-flight connect.
type dialer struct {
	requests chan bridgeRequest
	done     chan struct{}
}

func newDialer() *dialer {
	return &dialer{requests: make(chan bridgeRequest), done: make(chan struct{})}
}

func (d *dialer) ask(req bridgeRequest) bridgeReply {
	req.reply = make(chan bridgeReply, 1)
	select {
	case d.requests <- req:
	case <-d.done:
		return bridgeReply{}
	}
	return <-req.reply
}

func (d *dialer) approver() ssh.HostKeyApprover {
	return func(host, fingerprint string) bool {
		return d.ask(bridgeRequest{kind: bridgeHostKey, host: host, fingerprint: fingerprint}).ok
	}
}

func (d *dialer) prompt() ssh.PasswordPrompt {
	return func(user, host string) (string, error) {
		r := d.ask(bridgeRequest{kind: bridgePassword, host: host, user: user})
		if !r.ok {
			return "", fmt.Errorf("password entry cancelled")
		}
		return r.password, nil
	}
}

// dial runs the connect in a command goroutine.
func (d *dialer) dial(ctx context.Context, ws *workspace.Workspace, req workspace.ConnectRequest) tea.Cmd {
	req.Approver = d.approver()
	req.Prompt = d.prompt()
	return func() tea.Msg {
		defer close(d.done)
		s, err := ws.Dial(ctx, req)
		return connectDoneMsg{session: s, err: err}
	}
}

// wait returns the next bridge request, or nothing once the dial ended.
func (d *dialer) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case req := <-d.requests:
			return bridgeMsg{req: req}
		case <-d.done:
			return nil
		}
	}
}
