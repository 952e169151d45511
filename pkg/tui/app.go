// Package tui is the terminal frontend: two panes over a workspace.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quocson95/nedok/pkg/ops"
	"github.com/quocson95/nedok/pkg/pane"
	"github.com/quocson95/nedok/pkg/ssh"
	"github.com/quocson95/nedok/pkg/vfs"
	"github.com/quocson95/nedok/pkg/workspace"
)

// AppState represents what the keyboard currently drives
type AppState int

const (
	StateBrowse AppState = iota
	StateConfirmDelete
	StateInput
	StateConnect
	StateHostKey
	StatePassword
)

type inputKind int

const (
	inputRename inputKind = iota
	inputNewFile
	inputNewDir
)

type keyMap struct {
	Up, Down, Open, Parent, Switch              key.Binding
	Copy, Move, Delete, Rename, NewFile, NewDir key.Binding
	Edit, Connect, Disconnect, Refresh, Quit    key.Binding
}

var keys = keyMap{
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Parent:     key.NewBinding(key.WithKeys("backspace", "left", "h"), key.WithHelp("⌫", "parent")),
	Switch:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch")),
	Copy:       key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy")),
	Move:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "move")),
	Delete:     key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
	Rename:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
	NewFile:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new file")),
	NewDir:     key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "new dir")),
	Edit:       key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
	Connect:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "connect")),
	Disconnect: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "disconnect")),
	Refresh:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// sessionEventMsg forwards a session lifecycle event to the UI.
type sessionEventMsg struct{ ev ssh.Event }

// Model is the root bubbletea model.
type Model struct {
	ctx context.Context
	ws  *workspace.Workspace

	state     AppState
	input     textinput.Model
	inputKind inputKind
	connect   *ConnectModel
	prompt    *PasswordPromptModel
	dialer    *dialer
	pending   *bridgeRequest
	events    chan ssh.Event

	status    string
	err       error
	quitArmed bool
	width     int
	height    int
}

// New builds the UI over ws. It subscribes to session events, so call it
// before restoring remote panes.
func New(ctx context.Context, ws *workspace.Workspace) *Model {
	ti := textinput.New()
	ti.CharLimit = 255
	ti.Width = 40

	m := &Model{
		ctx:    ctx,
		ws:     ws,
		input:  ti,
		events: make(chan ssh.Event, 16),
		width:  100,
		height: 30,
	}
	ws.Manager.OnEvent(func(ev ssh.Event) {
		// user disconnects carry no error and are already handled
		if ev.Kind != ssh.EventDisconnected || ev.Err == nil {
			return
		}
		select {
		case m.events <- ev:
		default:
		}
	})
	return m
}

// Warn shows startup problems on the status line.
func (m *Model) Warn(errs ...error) {
	if err := errors.Join(errs...); err != nil {
		m.fail(err)
	}
}

// Run starts the program on the terminal and blocks until it quits.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return sessionEventMsg{ev: ev}
	}
}

func (m *Model) fail(err error) {
	m.err = err
	m.status = ""
}

func (m *Model) ok(format string, args ...any) {
	m.err = nil
	m.status = fmt.Sprintf(format, args...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case sessionEventMsg:
		if err := m.ws.Refresh(m.ctx); err != nil {
			m.fail(err)
		} else {
			m.fail(fmt.Errorf("%w: %s lost: %w", vfs.ErrConnection, msg.ev.Session.ConnectionID(), msg.ev.Err))
		}
		return m, m.waitForEvent()

	case connectSubmitMsg:
		m.dialer = newDialer()
		m.connect = nil
		m.state = StateBrowse
		m.ok("connecting to %s...", msg.req.Host)
		return m, tea.Batch(m.dialer.dial(m.ctx, m.ws, msg.req), m.dialer.wait())

	case connectCancelMsg:
		m.connect = nil
		m.state = StateBrowse
		return m, nil

	case bridgeMsg:
		req := msg.req
		m.pending = &req
		if req.kind == bridgeHostKey {
			m.state = StateHostKey
			return m, nil
		}
		m.state = StatePassword
		m.prompt = NewPasswordPromptModel("Password required", fmt.Sprintf("%s@%s", req.user, req.host))
		return m, m.prompt.Init()

	case PasswordSubmittedMsg:
		m.answer(bridgeReply{ok: !msg.Cancelled, password: msg.Password})
		m.prompt = nil
		return m, m.waitDialer()

	case connectDoneMsg:
		m.dialer, m.pending = nil, nil
		if m.state == StateHostKey || m.state == StatePassword {
			m.state = StateBrowse
		}
		if msg.err != nil {
			m.fail(msg.err)
			return m, nil
		}
		if err := m.ws.AttachActive(m.ctx, msg.session); err != nil {
			m.fail(err)
			return m, nil
		}
		m.ok("connected to %s (%s)", msg.session.ConnectionID(), msg.session.AuthMethod())
		return m, nil

	case editDoneMsg:
		switch {
		case msg.err != nil:
			m.fail(msg.err)
		case msg.changed:
			m.ok("saved %s", msg.name)
		default:
			m.ok("%s unchanged", msg.name)
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)
	}

	switch m.state {
	case StateConnect:
		var cmd tea.Cmd
		m.connect, cmd = m.connect.Update(msg)
		return m, cmd
	case StatePassword:
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	case StateInput:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) waitDialer() tea.Cmd {
	if m.dialer == nil {
		return nil
	}
	return m.dialer.wait()
}

func (m *Model) answer(r bridgeReply) {
	if m.pending != nil {
		m.pending.reply <- r
		m.pending = nil
	}
	m.state = StateBrowse
}

func (m *Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case StateConnect:
		var cmd tea.Cmd
		m.connect, cmd = m.connect.Update(msg)
		return m, cmd

	case StatePassword:
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd

	case StateHostKey:
		switch msg.String() {
		case "y", "Y":
			m.answer(bridgeReply{ok: true})
			return m, m.waitDialer()
		case "n", "N", "esc":
			m.answer(bridgeReply{ok: false})
			return m, m.waitDialer()
		}
		return m, nil

	case StateConfirmDelete:
		m.state = StateBrowse
		if msg.String() == "y" || msg.String() == "Y" {
			totals, err := m.ws.Delete(m.ctx)
			if err != nil {
				m.fail(err)
			} else {
				m.ok("deleted %d files, %d directories", totals.Files, totals.Dirs)
			}
		}
		return m, nil

	case StateInput:
		switch msg.String() {
		case "enter":
			m.state = StateBrowse
			m.input.Blur()
			m.submitInput(strings.TrimSpace(m.input.Value()))
			return m, nil
		case "esc":
			m.state = StateBrowse
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m.updateBrowse(msg)
}

func (m *Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, keys.Quit) {
		m.quitArmed = false
	}
	p := m.ws.Active()

	switch {
	case key.Matches(msg, keys.Quit):
		if m.quitArmed {
			return m, tea.Quit
		}
		if err := m.ws.Save(); err != nil {
			m.quitArmed = true
			m.fail(fmt.Errorf("failed to save session (press q again to quit): %w", err))
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		p.MoveCursor(-1)
	case key.Matches(msg, keys.Down):
		p.MoveCursor(1)
	case key.Matches(msg, keys.Switch):
		m.ws.Switch()

	case key.Matches(msg, keys.Open):
		e, ok := p.Selected()
		if !ok {
			return m, nil
		}
		if !e.IsDir {
			return m, m.edit()
		}
		if err := p.NavigateInto(m.ctx, e); err != nil {
			m.fail(err)
		}

	case key.Matches(msg, keys.Parent):
		if err := p.NavigateToParent(m.ctx); err != nil {
			m.fail(err)
		}

	case key.Matches(msg, keys.Copy):
		m.transfer("copied", m.ws.Copy)
	case key.Matches(msg, keys.Move):
		m.transfer("moved", m.ws.Move)

	case key.Matches(msg, keys.Delete):
		if _, ok := p.Selected(); ok {
			m.state = StateConfirmDelete
		}

	case key.Matches(msg, keys.Rename):
		e, ok := p.Selected()
		if !ok {
			return m, nil
		}
		return m, m.ask(inputRename, e.Name)
	case key.Matches(msg, keys.NewFile):
		return m, m.ask(inputNewFile, "")
	case key.Matches(msg, keys.NewDir):
		return m, m.ask(inputNewDir, "")

	case key.Matches(msg, keys.Edit):
		return m, m.edit()

	case key.Matches(msg, keys.Connect):
		if m.dialer != nil {
			return m, nil
		}
		settings := m.ws.Settings.Get()
		m.connect = NewConnectModel(settings.DefaultPort, settings.DefaultUsername)
		m.state = StateConnect
		return m, m.connect.Init()

	case key.Matches(msg, keys.Disconnect):
		if !p.IsRemote() {
			return m, nil
		}
		id := p.Session.ConnectionID()
		if err := m.ws.Disconnect(m.ctx); err != nil {
			m.fail(err)
		} else {
			m.ok("disconnected from %s", id)
		}

	case key.Matches(msg, keys.Refresh):
		if err := m.ws.Refresh(m.ctx); err != nil {
			m.fail(err)
		} else {
			m.ok("refreshed")
		}
	}
	return m, nil
}

func (m *Model) transfer(verb string, run func(context.Context) (ops.Totals, error)) {
	totals, err := run(m.ctx)
	if err != nil {
		m.fail(err)
		return
	}
	m.ok("%s %d files, %d directories (%s)", verb, totals.Files, totals.Dirs, formatSize(totals.Bytes))
}

func (m *Model) ask(kind inputKind, initial string) tea.Cmd {
	m.state = StateInput
	m.inputKind = kind
	m.input.Reset()
	m.input.SetValue(initial)
	m.input.Focus()
	switch kind {
	case inputRename:
		m.input.Prompt = "Rename to: "
	case inputNewFile:
		m.input.Prompt = "New file: "
	case inputNewDir:
		m.input.Prompt = "New directory: "
	}
	return textinput.Blink
}

func (m *Model) submitInput(name string) {
	if name == "" {
		return
	}
	var err error
	switch m.inputKind {
	case inputRename:
		err = m.ws.Rename(m.ctx, name)
	case inputNewFile:
		err = m.ws.CreateFile(m.ctx, name)
	case inputNewDir:
		err = m.ws.CreateDir(m.ctx, name)
	}
	if err != nil {
		m.fail(err)
		return
	}
	m.ok("%s", name)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("nedok"))
	b.WriteString("\n")

	const chrome = 7 // title, borders, pane header, status and help
	listHeight := max(m.height-chrome, 3)
	paneWidth := max((m.width-6)/2, 30)

	panes := make([]string, len(m.ws.Panes))
	for i, p := range m.ws.Panes {
		style := inactiveBorderStyle
		if i == m.ws.ActiveIndex() {
			style = activeBorderStyle
		}
		panes[i] = style.Width(paneWidth).Render(renderPane(p, paneWidth-2, listHeight))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panes[0], " ", panes[1]))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("[%s] %v", vfs.KindOf(m.err), m.err)))
	case m.status != "":
		b.WriteString(successStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("c copy • m move • d delete • r rename • n/N new • e edit • s connect • x disconnect • tab switch • q quit"))

	switch m.state {
	case StateConnect:
		return lipgloss.JoinVertical(lipgloss.Left, b.String(), m.connect.View())
	case StatePassword:
		return lipgloss.JoinVertical(lipgloss.Left, b.String(), m.prompt.View())
	case StateHostKey:
		msg := fmt.Sprintf("Unknown host key for %s\n\n%s\n\nTrust this host? (y/n)", m.pending.host, m.pending.fingerprint)
		return lipgloss.JoinVertical(lipgloss.Left, b.String(), warnPopupStyle.Render(msg))
	case StateConfirmDelete:
		target := "the selection"
		if e, ok := m.ws.Active().Selected(); ok {
			target = vfs.Display(e.Path)
		}
		msg := fmt.Sprintf("Permanently delete\n\n%s\n\n(y/n)", target)
		return lipgloss.JoinVertical(lipgloss.Left, b.String(), dangerPopupStyle.Render(msg))
	case StateInput:
		return lipgloss.JoinVertical(lipgloss.Left, b.String(), popupStyle.Render(m.input.View()))
	}
	return b.String()
}

func renderPane(p *pane.State, width, height int) string {
	var b strings.Builder
	title := p.Title()
	if len(title) > width {
		title = "..." + title[len(title)-(width-3):]
	}
	b.WriteString(pathStyle.Render(title))
	b.WriteString("\n")

	p.EnsureVisible(height)
	end := min(p.Offset+height, len(p.Entries))
	for i := p.Offset; i < end; i++ {
		e := p.Entries[i]
		name := e.Name
		if e.IsDir {
			name += "/"
		} else if e.IsSymlink {
			name += "@"
		}
		size := ""
		if !e.IsDir {
			size = formatSize(e.Size)
		}
		room := max(width-len(size)-3, 1)
		if len(name) > room {
			name = name[:max(room-1, 0)] + "~"
		}
		line := fmt.Sprintf("%-*s %s", room, name, size)

		style := itemStyle
		switch {
		case i == p.Cursor:
			style = selectedItemStyle
			line = "> " + line
		case e.IsDir:
			style = dirStyle
			line = "  " + line
		default:
			line = "  " + line
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func formatSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
