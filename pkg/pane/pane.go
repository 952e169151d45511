// Package pane holds the state of one browser pane.
package pane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quocson95/nedok/pkg/ssh"
	"github.com/quocson95/nedok/pkg/storage"
	"github.com/quocson95/nedok/pkg/vfs"
)

// ErrAtRoot is returned when navigating above a session's root directory.
var ErrAtRoot = errors.New("already at the session root")

// State is one pane: a directory on one backend and its listing. Session is
// nil exactly when Dir is local.
type State struct {
	Dir     vfs.Path
	Session *ssh.Session
	Entries []vfs.Entry
	Cursor  int
	Offset  int

	home  string
	local vfs.Transport
}

// New returns a local pane showing dir. home is where the pane falls back
// to when its session drops.
func New(dir, home string) *State {
	return &State{
		Dir:   vfs.Local(dir),
		home:  home,
		local: vfs.NewLocal(),
	}
}

// Transport returns the transport backing Dir.
func (p *State) Transport() vfs.Transport {
	if p.Session != nil {
		return p.Session.Transport()
	}
	return p.local
}

// IsRemote reports whether the pane shows a remote session.
func (p *State) IsRemote() bool { return p.Session != nil }

// Home returns the pane's local fallback directory.
func (p *State) Home() string { return p.home }

// Refresh relists Dir. On failure the previous entries stay. A pane whose
// session dropped falls back to its local home first and reports the loss.
func (p *State) Refresh(ctx context.Context) error {
	if p.Session != nil && !p.Session.IsConnected() {
		id := p.Session.ConnectionID()
		slog.Warn("pane session dropped, falling back to local", "id", id, "home", p.home)
		p.Detach(p.home)
		if err := p.list(ctx); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s disconnected, showing %s", vfs.ErrConnection, id, p.home)
	}
	return p.list(ctx)
}

func (p *State) list(ctx context.Context) error {
	entries, err := p.Transport().List(ctx, p.Dir)
	if err != nil {
		return err
	}
	vfs.SortEntries(entries, !p.IsRemote())
	p.Entries = entries
	p.clampCursor()
	return nil
}

// NavigateInto enters a directory entry. On failure the pane keeps its
// previous directory and listing.
func (p *State) NavigateInto(ctx context.Context, e vfs.Entry) error {
	if !e.IsDir {
		return &vfs.OpError{Op: "open", Path: e.Path, Err: vfs.ErrNotADirectory}
	}
	return p.moveTo(ctx, e.Path)
}

// NavigateToParent goes one level up. Remote panes stop at the session
// root; the local root is its own parent.
func (p *State) NavigateToParent(ctx context.Context) error {
	parent := p.Dir.Parent()
	if p.Session != nil {
		if root, ok := p.Session.Root(); ok && !parent.IsWithin(root) {
			return ErrAtRoot
		}
	}
	if parent.Equal(p.Dir) {
		return p.Refresh(ctx)
	}
	child := p.Dir.Base()
	if err := p.moveTo(ctx, parent); err != nil {
		return err
	}
	// Keep the cursor on the directory we came from.
	for i, e := range p.Entries {
		if e.Name == child {
			p.Cursor = i
			break
		}
	}
	return nil
}

func (p *State) moveTo(ctx context.Context, dir vfs.Path) error {
	prevDir, prevCursor, prevOffset := p.Dir, p.Cursor, p.Offset
	p.Dir, p.Cursor, p.Offset = dir, 0, 0
	if err := p.list(ctx); err != nil {
		p.Dir, p.Cursor, p.Offset = prevDir, prevCursor, prevOffset
		return err
	}
	return nil
}

// Attach switches the pane to session, showing dir, and lists it.
func (p *State) Attach(ctx context.Context, session *ssh.Session, dir vfs.RemotePath) error {
	prev := *p
	p.Session = session
	p.Dir = dir
	p.Cursor, p.Offset = 0, 0
	if err := p.list(ctx); err != nil {
		*p = prev
		return err
	}
	return nil
}

// Detach makes the pane local again at dir. Entries are not relisted.
func (p *State) Detach(dir string) {
	p.Session = nil
	p.Dir = vfs.Local(dir)
	p.Entries = nil
	p.Cursor, p.Offset = 0, 0
}

// MoveCursor shifts the cursor by delta within the listing.
func (p *State) MoveCursor(delta int) {
	p.Cursor += delta
	p.clampCursor()
}

// EnsureVisible scrolls so the cursor fits in a window of height rows.
func (p *State) EnsureVisible(height int) {
	if height <= 0 {
		return
	}
	if p.Cursor < p.Offset {
		p.Offset = p.Cursor
	}
	if p.Cursor >= p.Offset+height {
		p.Offset = p.Cursor - height + 1
	}
	if maxOffset := len(p.Entries) - height; p.Offset > maxOffset {
		p.Offset = max(maxOffset, 0)
	}
}

// Selected returns the entry under the cursor.
func (p *State) Selected() (vfs.Entry, bool) {
	if p.Cursor < 0 || p.Cursor >= len(p.Entries) {
		return vfs.Entry{}, false
	}
	return p.Entries[p.Cursor], true
}

// Select puts the cursor on the entry called name, if listed.
func (p *State) Select(name string) {
	for i, e := range p.Entries {
		if e.Name == name {
			p.Cursor = i
			return
		}
	}
}

func (p *State) clampCursor() {
	if p.Cursor >= len(p.Entries) {
		p.Cursor = len(p.Entries) - 1
	}
	if p.Cursor < 0 {
		p.Cursor = 0
	}
}

// Title is the header line for the pane.
func (p *State) Title() string {
	if p.Session != nil {
		return vfs.Display(p.Dir)
	}
	return p.Dir.String()
}

// Record produces the persisted form of the pane.
func (p *State) Record() storage.PaneRecord {
	if p.Session == nil {
		return storage.PaneRecord{Local: p.Dir.String()}
	}
	cfg := p.Session.Config()
	return storage.PaneRecord{
		Local: p.home,
		Remote: &storage.RemoteRecord{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Username:   cfg.Username,
			RemotePath: p.Dir.String(),
		},
	}
}
