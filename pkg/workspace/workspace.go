// Package workspace ties two panes to the session manager, the operation
// router and the persisted state.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/quocson95/nedok/pkg/ops"
	"github.com/quocson95/nedok/pkg/pane"
	"github.com/quocson95/nedok/pkg/ssh"
	"github.com/quocson95/nedok/pkg/storage"
	"github.com/quocson95/nedok/pkg/vfs"
)

// ErrNoSelection is returned when a verb needs an entry and the cursor is
// on nothing.
var ErrNoSelection = errors.New("nothing selected")

// ErrWrongMasterPassword is returned by Open when the master password does
// not match the stored hash.
var ErrWrongMasterPassword = errors.New("wrong master password")

// Options configures Open.
type Options struct {
	DataDir        string
	Home           string // local fallback directory for both panes
	MasterPassword string
	AgentSocket    string
}

// Workspace is the state behind the frontend: two panes, one active.
type Workspace struct {
	Panes  [2]*pane.State
	active int

	Manager     *ssh.Manager
	Router      *ops.Router
	Settings    *storage.SettingsStore
	Sessions    *storage.SessionStore
	Credentials *storage.CredentialStore

	master      string
	agentSocket string
}

// Open loads the stores under opts.DataDir. Corrupt files do not stop it;
// they are returned as warnings and the affected store starts from defaults.
func Open(opts Options) (ws *Workspace, warnings []error, err error) {
	settings, err := storage.NewSettingsStore(opts.DataDir)
	if err != nil && !errors.Is(err, storage.ErrCorrupted) {
		return nil, nil, err
	}
	if err != nil {
		warnings = append(warnings, err)
	}

	if opts.MasterPassword != "" {
		if settings.HasMasterPassword() {
			if !settings.VerifyMasterPassword(opts.MasterPassword) {
				return nil, warnings, ErrWrongMasterPassword
			}
		} else if err := settings.SetMasterPassword(opts.MasterPassword); err != nil {
			return nil, warnings, err
		}
	}

	creds, err := storage.NewCredentialStore(opts.DataDir)
	if err != nil && !errors.Is(err, storage.ErrCorrupted) {
		return nil, warnings, err
	}
	if err != nil {
		warnings = append(warnings, err)
	}
	sessions, err := storage.NewSessionStore(opts.DataDir)
	if err != nil {
		return nil, warnings, err
	}
	trust, err := ssh.NewTrustStore(filepath.Join(opts.DataDir, "known_hosts"))
	if err != nil {
		return nil, warnings, err
	}

	ws = &Workspace{
		Panes:       [2]*pane.State{pane.New(opts.Home, opts.Home), pane.New(opts.Home, opts.Home)},
		Manager:     ssh.NewManager(trust),
		Router:      ops.NewRouter(),
		Settings:    settings,
		Sessions:    sessions,
		Credentials: creds,
		master:      opts.MasterPassword,
		agentSocket: opts.AgentSocket,
	}
	return ws, warnings, nil
}

// Active returns the focused pane.
func (w *Workspace) Active() *pane.State { return w.Panes[w.active] }

// Other returns the pane without focus, the target of copy and move.
func (w *Workspace) Other() *pane.State { return w.Panes[1-w.active] }

// ActiveIndex is 0 for the left pane, 1 for the right.
func (w *Workspace) ActiveIndex() int { return w.active }

// Switch moves focus to the other pane.
func (w *Workspace) Switch() { w.active = 1 - w.active }

// Restore reopens the last session. Remote panes reconnect without
// prompting; any pane that cannot be restored stays local and its error is
// returned. dirs, when non-empty, override the saved local directories.
func (w *Workspace) Restore(ctx context.Context, dirs ...string) []error {
	var errs []error
	last, ok, err := w.Sessions.Load()
	if err != nil {
		errs = append(errs, err)
	}
	if ok {
		w.active = last.Active & 1
		for i, rec := range []storage.PaneRecord{last.Left, last.Right} {
			if rec.Local != "" {
				w.Panes[i].Detach(rec.Local)
			}
			if rec.Remote != nil {
				if err := w.restoreRemote(ctx, w.Panes[i], rec.Remote); err != nil {
					slog.Warn("failed to restore remote pane", "pane", i, "err", err)
					errs = append(errs, err)
				}
			}
		}
	}
	for i, dir := range dirs {
		if i < len(w.Panes) && dir != "" {
			w.Panes[i].Detach(dir)
		}
	}
	for _, p := range w.Panes {
		if err := p.Refresh(ctx); err != nil {
			errs = append(errs, err)
			if !p.IsRemote() && p.Dir.String() != p.Home() {
				p.Detach(p.Home())
				if err := p.Refresh(ctx); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errs
}

func (w *Workspace) restoreRemote(ctx context.Context, p *pane.State, rec *storage.RemoteRecord) error {
	settings := w.Settings.Get()
	password, _, err := w.Credentials.Password(rec.Host, rec.Port, rec.Username, w.master)
	if err != nil {
		// A locked or unreadable credential still leaves agent and keys.
		slog.Warn("saved credential unavailable", "host", rec.Host, "err", err)
		password = ""
	}
	s, err := w.Manager.Restore(ctx, ssh.RestoreRequest{
		Host:        rec.Host,
		Port:        rec.Port,
		Username:    rec.Username,
		Password:    password,
		AgentSocket: w.agentSocket,
		KeyDir:      settings.KeyDir,
	})
	if err != nil {
		return fmt.Errorf("failed to restore %s@%s: %w", rec.Username, rec.Host, err)
	}
	dir := s.StartDir()
	if rec.RemotePath != "" {
		dir = s.Path(rec.RemotePath)
	}
	if err := p.Attach(ctx, s, dir); err != nil {
		if dir.Equal(s.StartDir()) {
			return err
		}
		// The saved directory may be gone; land on the start directory.
		if err := p.Attach(ctx, s, s.StartDir()); err != nil {
			return err
		}
	}
	return nil
}

// ConnectRequest is what the connect form collects.
type ConnectRequest struct {
	Host         string
	Port         int
	Username     string
	Password     string
	RootDir      string
	SavePassword bool
	Prompt       ssh.PasswordPrompt
	Approver     ssh.HostKeyApprover
}

// Connect opens a session and attaches the active pane to it.
func (w *Workspace) Connect(ctx context.Context, req ConnectRequest) (*ssh.Session, error) {
	s, err := w.Dial(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, w.AttachActive(ctx, s)
}

// Dial opens or reuses a session without touching the panes, so it may run
// off the control thread. Missing port, user and key directory come from
// the settings; a saved credential is used when no password is given.
func (w *Workspace) Dial(ctx context.Context, req ConnectRequest) (*ssh.Session, error) {
	settings := w.Settings.Get()
	if req.Port == 0 {
		req.Port = settings.DefaultPort
	}
	if req.Username == "" {
		req.Username = settings.DefaultUsername
	}
	password := req.Password
	if password == "" {
		saved, _, err := w.Credentials.Password(req.Host, req.Port, req.Username, w.master)
		if err != nil {
			slog.Warn("saved credential unavailable", "host", req.Host, "err", err)
		}
		password = saved
	}

	var typed string
	s, err := w.Manager.Connect(ctx, &ssh.SessionConfig{
		Host:        req.Host,
		Port:        req.Port,
		Username:    req.Username,
		RootDir:     req.RootDir,
		AgentSocket: w.agentSocket,
		KeyDir:      settings.KeyDir,
		Password:    password,
		Prompt:      rememberPrompt(req.Prompt, &typed),
		Approver:    req.Approver,
		Timeout:     settings.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	accepted := req.Password
	if typed != "" {
		accepted = typed
	}
	if req.SavePassword && accepted != "" && s.AuthMethod() == ssh.AuthPassword {
		if err := w.Credentials.Put(req.Host, req.Port, req.Username, accepted, w.master); err != nil {
			return s, fmt.Errorf("connected, but failed to save credential: %w", err)
		}
	}
	return s, nil
}

// AttachActive shows s in the active pane at its start directory.
func (w *Workspace) AttachActive(ctx context.Context, s *ssh.Session) error {
	return w.Active().Attach(ctx, s, s.StartDir())
}

// rememberPrompt wraps the prompt so Dial can save what was typed once the
// server accepted it.
func rememberPrompt(prompt ssh.PasswordPrompt, typed *string) ssh.PasswordPrompt {
	if prompt == nil {
		return nil
	}
	return func(user, host string) (string, error) {
		pw, err := prompt(user, host)
		if err == nil {
			*typed = pw
		}
		return pw, err
	}
}

// Disconnect returns the active pane to local. The session is closed
// unless the other pane still uses it.
func (w *Workspace) Disconnect(ctx context.Context) error {
	p := w.Active()
	if !p.IsRemote() {
		return nil
	}
	s := p.Session
	p.Detach(p.Home())
	if other := w.Other(); other.Session != s {
		if err := w.Manager.Disconnect(s.ConnectionID()); err != nil {
			slog.Warn("disconnect failed", "id", s.ConnectionID(), "err", err)
		}
	}
	return p.Refresh(ctx)
}

// Copy copies the active selection into the other pane's directory.
func (w *Workspace) Copy(ctx context.Context) (ops.Totals, error) {
	return w.transfer(ctx, w.Router.Copy)
}

// Move moves the active selection into the other pane's directory.
func (w *Workspace) Move(ctx context.Context) (ops.Totals, error) {
	return w.transfer(ctx, w.Router.Move)
}

type transferFunc func(ctx context.Context, src vfs.Entry, from, to vfs.Transport, dstDir vfs.Path) (ops.Totals, error)

func (w *Workspace) transfer(ctx context.Context, run transferFunc) (ops.Totals, error) {
	src, dst := w.Active(), w.Other()
	e, ok := src.Selected()
	if !ok {
		return ops.Totals{}, ErrNoSelection
	}
	totals, err := run(ctx, e, src.Transport(), dst.Transport(), dst.Dir)
	return totals, errors.Join(err, w.refresh(ctx))
}

// Delete removes the active selection.
func (w *Workspace) Delete(ctx context.Context) (ops.Totals, error) {
	p := w.Active()
	e, ok := p.Selected()
	if !ok {
		return ops.Totals{}, ErrNoSelection
	}
	totals, err := w.Router.Delete(ctx, p.Transport(), e)
	return totals, errors.Join(err, w.refresh(ctx))
}

// Rename renames the active selection in place.
func (w *Workspace) Rename(ctx context.Context, newName string) error {
	p := w.Active()
	e, ok := p.Selected()
	if !ok {
		return ErrNoSelection
	}
	to, err := w.Router.Rename(ctx, p.Transport(), e, newName)
	if err != nil {
		return err
	}
	err = w.refresh(ctx)
	p.Select(to.Base())
	return err
}

// CreateFile makes an empty file in the active pane's directory.
func (w *Workspace) CreateFile(ctx context.Context, name string) error {
	p := w.Active()
	if _, err := w.Router.CreateFile(ctx, p.Transport(), p.Dir, name); err != nil {
		return err
	}
	err := w.refresh(ctx)
	p.Select(name)
	return err
}

// CreateDir makes a directory in the active pane's directory.
func (w *Workspace) CreateDir(ctx context.Context, name string) error {
	p := w.Active()
	if _, err := w.Router.CreateDir(ctx, p.Transport(), p.Dir, name); err != nil {
		return err
	}
	err := w.refresh(ctx)
	p.Select(name)
	return err
}

// Edit runs edit on a local copy of the active selection.
func (w *Workspace) Edit(ctx context.Context, edit func(localPath string) error) (bool, error) {
	p := w.Active()
	e, ok := p.Selected()
	if !ok {
		return false, ErrNoSelection
	}
	changed, err := w.Router.EditStaged(ctx, p.Transport(), e, edit)
	if err != nil || !changed {
		return changed, err
	}
	return true, w.refresh(ctx)
}

// Refresh relists both panes.
func (w *Workspace) Refresh(ctx context.Context) error { return w.refresh(ctx) }

func (w *Workspace) refresh(ctx context.Context) error {
	var errs []error
	for _, p := range w.Panes {
		if err := p.Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Save records both panes as the last session.
func (w *Workspace) Save() error {
	return w.Sessions.Save(storage.LastSession{
		Left:   w.Panes[0].Record(),
		Right:  w.Panes[1].Record(),
		Active: w.active,
	})
}

// Close saves the last session and disconnects every session.
func (w *Workspace) Close() error {
	err := w.Save()
	w.Manager.DisconnectAll()
	return err
}
