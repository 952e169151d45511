package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/quocson95/nedok/pkg/vfs"
)

// ErrInvalidName rejects names that are empty or contain a separator.
var ErrInvalidName = errors.New("invalid name")

// Delete removes e, recursively for directories: children before parents.
func (r *Router) Delete(ctx context.Context, t vfs.Transport, e vfs.Entry) (Totals, error) {
	jobs, err := scan(ctx, t, e, e.Path)
	if err != nil {
		return Totals{}, err
	}
	var totals Totals
	for i := len(jobs) - 1; i >= 0; i-- {
		s := jobs[i].Source
		if s.IsDir && !s.IsSymlink {
			err = t.Rmdir(ctx, s.Path)
			totals.Dirs++
		} else {
			err = t.Remove(ctx, s.Path)
			totals.Files++
		}
		if err != nil {
			return totals, &vfs.OpError{Op: "delete", Path: s.Path, Err: cause(err)}
		}
	}
	slog.Info("deleted", "path", vfs.Display(e.Path), "files", totals.Files, "dirs", totals.Dirs)
	return totals, nil
}

// Rename gives e a new name in the same directory.
func (r *Router) Rename(ctx context.Context, t vfs.Transport, e vfs.Entry, newName string) (vfs.Path, error) {
	if err := validateName(newName); err != nil {
		return nil, &vfs.OpError{Op: "rename", Path: e.Path, Err: err}
	}
	to := e.Path.Parent().Join(newName)
	if err := r.RenamePath(ctx, t, e.Path, to); err != nil {
		return nil, err
	}
	return to, nil
}

// RenamePath renames within one backend and session. Existing targets are
// refused.
func (r *Router) RenamePath(ctx context.Context, t vfs.Transport, from, to vfs.Path) error {
	if !vfs.SameBackend(from, to) || from.IsRemote() != t.IsRemote() {
		return &vfs.OpError{Op: "rename", Path: from, Dest: to, Err: vfs.ErrUnsupportedCrossBackend}
	}
	if _, err := t.Stat(ctx, from); err != nil {
		return &vfs.OpError{Op: "rename", Path: from, Dest: to, Err: cause(err)}
	}
	if from.Equal(to) {
		return nil
	}
	if err := refuseExisting(ctx, t, "rename", to); err != nil {
		return err
	}
	if err := t.Rename(ctx, from, to); err != nil {
		return &vfs.OpError{Op: "rename", Path: from, Dest: to, Err: cause(err)}
	}
	return nil
}

// CreateFile makes an empty file called name in dir.
func (r *Router) CreateFile(ctx context.Context, t vfs.Transport, dir vfs.Path, name string) (vfs.Path, error) {
	if err := validateName(name); err != nil {
		return nil, &vfs.OpError{Op: "create", Path: dir, Err: err}
	}
	p := dir.Join(name)
	if err := refuseExisting(ctx, t, "create", p); err != nil {
		return nil, err
	}
	if err := vfs.WithWriter(ctx, t, p, 0o644, func(io.Writer) error { return nil }); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateDir makes a directory called name in dir.
func (r *Router) CreateDir(ctx context.Context, t vfs.Transport, dir vfs.Path, name string) (vfs.Path, error) {
	if err := validateName(name); err != nil {
		return nil, &vfs.OpError{Op: "mkdir", Path: dir, Err: err}
	}
	p := dir.Join(name)
	if err := refuseExisting(ctx, t, "mkdir", p); err != nil {
		return nil, err
	}
	if err := t.Mkdir(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EditStaged runs edit on a local copy of e. Local files are edited in
// place. Remote files are downloaded to a temp file and uploaded back only
// when the editor changed it; the temp file is always removed.
func (r *Router) EditStaged(ctx context.Context, t vfs.Transport, e vfs.Entry, edit func(localPath string) error) (changed bool, err error) {
	if e.IsDir {
		return false, &vfs.OpError{Op: "edit", Path: e.Path, Err: errors.New("cannot edit a directory")}
	}
	if lp, ok := e.Path.(vfs.LocalPath); ok && !t.IsRemote() {
		before, err := os.Stat(lp.Native())
		if err != nil {
			return false, &vfs.OpError{Op: "edit", Path: e.Path, Err: vfs.Classify(err)}
		}
		if err := edit(lp.Native()); err != nil {
			return false, fmt.Errorf("editor failed: %w", err)
		}
		after, err := os.Stat(lp.Native())
		if err != nil {
			return false, &vfs.OpError{Op: "edit", Path: e.Path, Err: vfs.Classify(err)}
		}
		return modified(before, after), nil
	}

	tmpDir, err := os.MkdirTemp(r.StagingDir, "nedok-edit-")
	if err != nil {
		return false, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			slog.Warn("failed to remove edit temp directory", "dir", tmpDir, "err", err)
		}
	}()

	local := vfs.NewLocal()
	staged := vfs.Local(tmpDir).Join(e.Name)
	job := FileJob{Source: e, Dest: staged, target: staged}
	if err := r.copyFile(ctx, t, local, job); err != nil {
		return false, job.fail("download", err)
	}
	// Pin the temp file to the remote mtime so any save by the editor is
	// visible even on filesystems with coarse timestamps.
	pinned := e.ModTime
	if pinned.IsZero() || pinned.After(time.Now().Add(-time.Second)) {
		pinned = time.Now().Add(-time.Minute)
	}
	if err := os.Chtimes(staged.String(), pinned, pinned); err != nil {
		return false, &vfs.OpError{Op: "edit", Path: staged, Err: vfs.Classify(err)}
	}
	before, err := os.Stat(staged.String())
	if err != nil {
		return false, &vfs.OpError{Op: "edit", Path: staged, Err: vfs.Classify(err)}
	}
	if err := edit(staged.String()); err != nil {
		return false, fmt.Errorf("editor failed: %w", err)
	}
	after, err := os.Stat(staged.String())
	if err != nil {
		return false, &vfs.OpError{Op: "edit", Path: staged, Err: vfs.Classify(err)}
	}
	if !modified(before, after) {
		return false, nil
	}

	stagedEntry := vfs.NewEntry(staged, after)
	stagedEntry.Mode = e.Mode
	upload := FileJob{Source: stagedEntry, Dest: e.Path, origin: staged}
	if err := r.copyFile(ctx, local, t, upload); err != nil {
		return true, upload.fail("upload", err)
	}
	slog.Info("edited", "path", vfs.Display(e.Path))
	return true, nil
}

func modified(before, after os.FileInfo) bool {
	return !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size()
}

func refuseExisting(ctx context.Context, t vfs.Transport, op string, p vfs.Path) error {
	_, err := t.Stat(ctx, p)
	switch {
	case err == nil:
		return &vfs.OpError{Op: op, Path: p, Err: vfs.ErrExists}
	case errors.Is(err, vfs.ErrNotFound):
		return nil
	default:
		return err
	}
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/"+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
