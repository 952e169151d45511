package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kballard/go-shellquote"

	"github.com/quocson95/nedok/pkg/workspace"
)

// editorArgs splits the configured editor command, falling back to
// $VISUAL, $EDITOR and vi.
func editorArgs(configured string) ([]string, error) {
	for _, cmd := range []string{configured, os.Getenv("VISUAL"), os.Getenv("EDITOR")} {
		if cmd == "" {
			continue
		}
		args, err := shellquote.Split(cmd)
		if err != nil {
			return nil, fmt.Errorf("invalid editor command %q: %w", cmd, err)
		}
		if len(args) > 0 {
			return args, nil
		}
	}
	return []string{"vi"}, nil
}

// editDoneMsg reports the end of an edit.
type editDoneMsg struct {
	name    string
	changed bool
	err     error
}

// editCommand is a tea.ExecCommand that stages the selection, runs the
// editor on the terminal and uploads the result.
type editCommand struct {
	ctx  context.Context
	ws   *workspace.Workspace
	args []string

	stdin          io.Reader
	stdout, stderr io.Writer
	changed        bool
}

func (c *editCommand) SetStdin(r io.Reader)  { c.stdin = r }
func (c *editCommand) SetStdout(w io.Writer) { c.stdout = w }
func (c *editCommand) SetStderr(w io.Writer) { c.stderr = w }

func (c *editCommand) Run() error {
	changed, err := c.ws.Edit(c.ctx, func(localPath string) error {
		args := append(append([]string{}, c.args[1:]...), localPath)
		cmd := exec.CommandContext(c.ctx, c.args[0], args...)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = c.stdin, c.stdout, c.stderr
		return cmd.Run()
	})
	c.changed = changed
	return err
}

func (m *Model) edit() tea.Cmd {
	e, ok := m.ws.Active().Selected()
	if !ok {
		m.fail(workspace.ErrNoSelection)
		return nil
	}
	if e.IsDir {
		m.fail(errors.New("cannot edit a directory"))
		return nil
	}
	args, err := editorArgs(m.ws.Settings.Get().Editor)
	if err != nil {
		m.fail(err)
		return nil
	}
	c := &editCommand{ctx: m.ctx, ws: m.ws, args: args}
	return tea.Exec(c, func(err error) tea.Msg {
		return editDoneMsg{name: e.Name, changed: c.changed, err: err}
	})
}
