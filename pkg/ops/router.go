// Package ops routes file operations between local and remote transports.
package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/quocson95/nedok/pkg/vfs"
)

// Router runs copy, move and the other file verbs over any pair of
// transports. Transfers are synchronous.
type Router struct {
	// StagingDir holds remote to remote staging copies and edit temp
	// files. Empty means os.TempDir.
	StagingDir string
	Progress   ProgressFunc
}

// NewRouter returns a router using the system temp directory.
func NewRouter() *Router {
	return &Router{}
}

// transfer is one routed copy request.
type transfer struct {
	src  vfs.Entry
	from vfs.Transport
	to   vfs.Transport
	dest vfs.Path
}

type route struct {
	srcRemote, dstRemote bool
}

type strategy func(r *Router, ctx context.Context, t transfer) (Totals, error)

var strategies = map[route]strategy{
	{srcRemote: false, dstRemote: false}: (*Router).copyLocal,
	{srcRemote: false, dstRemote: true}:  (*Router).copyStream,
	{srcRemote: true, dstRemote: false}:  (*Router).copyStream,
	{srcRemote: true, dstRemote: true}:   (*Router).copyViaStaging,
}

// Copy copies src, recursively for directories, into dstDir on to. An
// existing destination directory is reused and existing files are
// overwritten. The first failing item stops the copy.
func (r *Router) Copy(ctx context.Context, src vfs.Entry, from, to vfs.Transport, dstDir vfs.Path) (Totals, error) {
	t, err := r.plan("copy", src, from, to, dstDir)
	if err != nil {
		return Totals{}, err
	}
	slog.Info("copy", "src", vfs.Display(src.Path), "dest", vfs.Display(t.dest))
	return strategies[route{srcRemote: src.IsRemote, dstRemote: to.IsRemote()}](r, ctx, t)
}

// Move copies src and then deletes it, only after the copy succeeded. A
// local move onto a free name is a plain rename.
func (r *Router) Move(ctx context.Context, src vfs.Entry, from, to vfs.Transport, dstDir vfs.Path) (Totals, error) {
	t, err := r.plan("move", src, from, to, dstDir)
	if err != nil {
		return Totals{}, err
	}
	slog.Info("move", "src", vfs.Display(src.Path), "dest", vfs.Display(t.dest))

	if !src.IsRemote && !to.IsRemote() {
		if totals, ok := r.renameLocal(ctx, t); ok {
			return totals, nil
		}
	}

	if src.IsRemote || to.IsRemote() {
		if err := refuseLinkedDirs(ctx, t); err != nil {
			return Totals{}, err
		}
	}

	totals, err := strategies[route{srcRemote: src.IsRemote, dstRemote: to.IsRemote()}](r, ctx, t)
	if err != nil {
		return totals, err
	}
	if _, err := r.Delete(ctx, from, src); err != nil {
		return totals, fmt.Errorf("copied to %s but failed to remove source: %w", vfs.Display(t.dest), err)
	}
	return totals, nil
}

// refuseLinkedDirs rejects a cross-backend move whose subtree holds a
// symlinked directory. Streaming copies skip those, so deleting the source
// afterwards would lose them.
func refuseLinkedDirs(ctx context.Context, t transfer) error {
	jobs, err := scan(ctx, t.from, t.src, t.dest)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.Source.IsSymlink && j.Source.IsDir {
			return &vfs.OpError{Op: "move", Path: j.Source.Path, Dest: j.Dest, Err: vfs.ErrUnsupportedCrossBackend}
		}
	}
	return nil
}

// plan validates a copy or move request before anything is touched.
func (r *Router) plan(op string, src vfs.Entry, from, to vfs.Transport, dstDir vfs.Path) (transfer, error) {
	if src.Path == nil || dstDir == nil {
		return transfer{}, fmt.Errorf("%s: source and destination are required", op)
	}
	if src.IsRemote != from.IsRemote() || dstDir.IsRemote() != to.IsRemote() {
		return transfer{}, &vfs.OpError{Op: op, Path: src.Path, Dest: dstDir, Err: vfs.ErrUnsupportedCrossBackend}
	}
	dest := dstDir.Join(src.Name)
	if dest.IsWithin(src.Path) {
		return transfer{}, &vfs.OpError{Op: op, Path: src.Path, Dest: dest, Err: vfs.ErrCyclicOperation}
	}
	return transfer{src: src, from: from, to: to, dest: dest}, nil
}

// copyLocal copies between two local paths keeping symlinks as links.
func (r *Router) copyLocal(ctx context.Context, t transfer) (Totals, error) {
	jobs, err := scan(ctx, t.from, t.src, t.dest)
	if err != nil {
		return Totals{}, err
	}
	return r.execute(ctx, t.from, t.to, jobs, true)
}

// copyStream streams bytes between a local and a remote transport. Links
// are followed; symlinked directories are skipped.
func (r *Router) copyStream(ctx context.Context, t transfer) (Totals, error) {
	jobs, err := scan(ctx, t.from, t.src, t.dest)
	if err != nil {
		return Totals{}, err
	}
	return r.execute(ctx, t.from, t.to, jobs, false)
}

// copyViaStaging downloads the whole subtree into a fresh local staging
// directory, then uploads it. The staging directory is always removed.
func (r *Router) copyViaStaging(ctx context.Context, t transfer) (Totals, error) {
	staging, err := os.MkdirTemp(r.StagingDir, "nedok-staging-")
	if err != nil {
		return Totals{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			slog.Warn("failed to remove staging directory", "dir", staging, "err", err)
		}
	}()

	jobs, err := scan(ctx, t.from, t.src, vfs.Local(staging).Join(t.src.Name))
	if err != nil {
		return Totals{}, err
	}
	local := vfs.NewLocal()

	down := make([]FileJob, len(jobs))
	up := make([]FileJob, len(jobs))
	for i, j := range jobs {
		final := joinRel(t.dest, j.Rel)
		j.target = final
		down[i] = j

		staged := j.Source
		staged.Path = j.Dest
		staged.IsRemote = false
		up[i] = FileJob{Rel: j.Rel, Source: staged, Dest: final, origin: j.Source.Path}
	}

	if _, err := r.execute(ctx, t.from, local, down, false); err != nil {
		return Totals{}, err
	}
	return r.execute(ctx, local, t.to, up, false)
}

// execute runs jobs in order. Directory metadata is applied last so child
// writes do not bump it.
func (r *Router) execute(ctx context.Context, from, to vfs.Transport, jobs []FileJob, keepLinks bool) (Totals, error) {
	var totals Totals
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return totals, j.fail("copy", err)
		}
		var err error
		switch {
		case j.Source.IsSymlink && keepLinks:
			err = copyLink(j)
		case j.Source.IsSymlink && j.Source.IsDir:
			slog.Warn("skipping symlinked directory", "path", vfs.Display(j.Source.Path))
			continue
		case j.Source.IsDir:
			err = ensureDir(ctx, to, j.Dest)
			totals.Dirs++
		default:
			err = r.copyFile(ctx, from, to, j)
			if err == nil {
				totals.Files++
				totals.Bytes += j.Source.Size
			}
		}
		if err != nil {
			return totals, j.fail("copy", err)
		}
		if !j.Source.IsDir && !j.Source.IsSymlink {
			applyMeta(ctx, to, j.Dest, j.Source)
		}
	}
	for i := len(jobs) - 1; i >= 0; i-- {
		if s := jobs[i].Source; s.IsDir && !s.IsSymlink {
			applyMeta(ctx, to, jobs[i].Dest, s)
		}
	}
	return totals, nil
}

func (r *Router) copyFile(ctx context.Context, from, to vfs.Transport, j FileJob) error {
	return vfs.WithReader(ctx, from, j.Source.Path, func(src io.Reader) error {
		return vfs.WithWriter(ctx, to, j.Dest, j.Source.Mode, func(dst io.Writer) error {
			_, err := io.Copy(dst, withProgress(src, j.Source, r.Progress))
			return err
		})
	})
}

// copyLink recreates a local symlink, replacing a non-directory at dest.
func copyLink(j FileJob) error {
	dest, ok := j.Dest.(vfs.LocalPath)
	if !ok || j.Source.LinkTarget == "" {
		return vfs.ErrUnsupportedCrossBackend
	}
	if info, err := os.Lstat(dest.Native()); err == nil && !info.IsDir() {
		if err := os.Remove(dest.Native()); err != nil {
			return vfs.Classify(err)
		}
	}
	return vfs.Classify(os.Symlink(j.Source.LinkTarget, dest.Native()))
}

// ensureDir creates p or accepts an existing directory there.
func ensureDir(ctx context.Context, t vfs.Transport, p vfs.Path) error {
	err := t.Mkdir(ctx, p)
	if err == nil || !errors.Is(err, vfs.ErrExists) {
		return err
	}
	e, serr := t.Stat(ctx, p)
	if serr == nil && e.IsDir {
		return nil
	}
	return &vfs.OpError{Op: "mkdir", Path: p, Err: vfs.ErrExists}
}

// applyMeta copies permission bits and mtime where the backend allows it.
func applyMeta(ctx context.Context, t vfs.Transport, p vfs.Path, src vfs.Entry) {
	if perm := src.Mode.Perm(); perm != 0 {
		if err := t.Chmod(ctx, p, perm); err != nil {
			slog.Debug("chmod not applied", "path", vfs.Display(p), "err", err)
		}
	}
	if !src.ModTime.IsZero() {
		if err := t.Chtimes(ctx, p, src.ModTime); err != nil {
			slog.Debug("mtime not applied", "path", vfs.Display(p), "err", err)
		}
	}
}

// renameLocal moves within the local filesystem when the destination name
// is free. ok is false when the caller should fall back to copy and delete.
func (r *Router) renameLocal(ctx context.Context, t transfer) (Totals, bool) {
	if _, err := t.to.Stat(ctx, t.dest); !errors.Is(err, vfs.ErrNotFound) {
		return Totals{}, false
	}
	jobs, err := scan(ctx, t.from, t.src, t.dest)
	if err != nil {
		return Totals{}, false
	}
	if err := t.from.Rename(ctx, t.src.Path, t.dest); err != nil {
		slog.Debug("rename failed, copying instead", "src", t.src.Path.String(), "err", err)
		return Totals{}, false
	}
	var totals Totals
	for _, j := range jobs {
		switch {
		case j.Source.IsDir && !j.Source.IsSymlink:
			totals.Dirs++
		default:
			totals.Files++
			totals.Bytes += j.Source.Size
		}
	}
	return totals, true
}

// cause strips a transport *vfs.OpError so the router can name both paths.
func cause(err error) error {
	var oe *vfs.OpError
	if errors.As(err, &oe) && oe.Err != nil {
		return oe.Err
	}
	return err
}
