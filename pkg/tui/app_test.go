package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocson95/nedok/pkg/vfs"
	"github.com/quocson95/nedok/pkg/workspace"
)

func newModel(t *testing.T) (*Model, string) {
	t.Helper()
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "readme.md"), []byte("hello"), 0o644))
	ws, warnings, err := workspace.Open(workspace.Options{DataDir: t.TempDir(), Home: home})
	require.NoError(t, err)
	require.Empty(t, warnings)
	t.Cleanup(func() { ws.Manager.DisconnectAll() })

	m := New(context.Background(), ws)
	require.Empty(t, ws.Restore(context.Background()))
	return m, home
}

func press(m *Model, k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "backspace":
		msg = tea.KeyMsg{Type: tea.KeyBackspace}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func TestTabSwitchesPanes(t *testing.T) {
	m, _ := newModel(t)
	require.Equal(t, 0, m.ws.ActiveIndex())
	press(m, "tab")
	assert.Equal(t, 1, m.ws.ActiveIndex())
	press(m, "tab")
	assert.Equal(t, 0, m.ws.ActiveIndex())
}

func TestCreateDirectoryFromInput(t *testing.T) {
	m, home := newModel(t)

	press(m, "N")
	require.Equal(t, StateInput, m.state)
	m.input.SetValue("photos")
	press(m, "enter")

	assert.Equal(t, StateBrowse, m.state)
	assert.NoError(t, m.err)
	info, err := os.Stat(filepath.Join(home, "photos"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	e, ok := m.ws.Active().Selected()
	require.True(t, ok)
	assert.Equal(t, "photos", e.Name)
}

func TestInputEscapeCancels(t *testing.T) {
	m, home := newModel(t)

	press(m, "n")
	m.input.SetValue("never.txt")
	press(m, "esc")

	assert.Equal(t, StateBrowse, m.state)
	_, err := os.Stat(filepath.Join(home, "never.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	m, home := newModel(t)
	m.ws.Active().Select("readme.md")

	press(m, "d")
	require.Equal(t, StateConfirmDelete, m.state)
	press(m, "n")
	assert.FileExists(t, filepath.Join(home, "readme.md"))

	press(m, "d")
	press(m, "y")
	assert.Equal(t, StateBrowse, m.state)
	assert.NoFileExists(t, filepath.Join(home, "readme.md"))
	assert.Contains(t, m.status, "deleted 1 files")
}

func TestCopyToOtherPane(t *testing.T) {
	m, home := newModel(t)
	require.NoError(t, os.Mkdir(filepath.Join(home, "out"), 0o755))
	require.NoError(t, m.ws.Refresh(context.Background()))

	// right pane into out/, left pane on readme.md
	press(m, "tab")
	m.ws.Active().Select("out")
	press(m, "enter")
	require.Equal(t, filepath.Join(home, "out"), m.ws.Active().Dir.String())
	press(m, "tab")
	m.ws.Active().Select("readme.md")

	press(m, "c")
	assert.NoError(t, m.err)
	data, err := os.ReadFile(filepath.Join(home, "out", "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestNavigationErrorIsShown(t *testing.T) {
	m, home := newModel(t)
	require.NoError(t, os.Mkdir(filepath.Join(home, "gone"), 0o755))
	require.NoError(t, m.ws.Refresh(context.Background()))
	m.ws.Active().Select("gone")
	require.NoError(t, os.Remove(filepath.Join(home, "gone")))

	press(m, "enter")
	require.Error(t, m.err)
	assert.Equal(t, "not-found", vfs.KindOf(m.err))
	assert.Equal(t, home, m.ws.Active().Dir.String())
	assert.Contains(t, m.View(), "not-found")
}

func TestQuitSavesSession(t *testing.T) {
	m, _ := newModel(t)
	press(m, "tab")

	cmd := press(m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	last, ok, err := m.ws.Sessions.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, last.Active)
}

func TestHostKeyPromptAnswers(t *testing.T) {
	m, _ := newModel(t)
	reply := make(chan bridgeReply, 1)

	m.Update(bridgeMsg{req: bridgeRequest{kind: bridgeHostKey, host: "example.com:22", fingerprint: "SHA256:abc", reply: reply}})
	require.Equal(t, StateHostKey, m.state)
	assert.Contains(t, m.View(), "SHA256:abc")

	press(m, "n")
	assert.Equal(t, StateBrowse, m.state)
	assert.False(t, (<-reply).ok)
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.n))
	}
}

func TestEditorArgs(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "nano -w")

	args, err := editorArgs("")
	require.NoError(t, err)
	assert.Equal(t, []string{"nano", "-w"}, args)

	args, err = editorArgs(`code --wait "--user-data-dir=/tmp/a b"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "--wait", "--user-data-dir=/tmp/a b"}, args)

	t.Setenv("EDITOR", "")
	args, err = editorArgs("")
	require.NoError(t, err)
	assert.Equal(t, []string{"vi"}, args)

	_, err = editorArgs(`vim "unterminated`)
	assert.Error(t, err)
}
