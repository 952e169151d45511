package ops

import (
	"context"
	"path"
	"strings"

	"github.com/quocson95/nedok/pkg/vfs"
)

// FileJob represents a single file/directory operation
type FileJob struct {
	Rel    string // slash separated path from the transfer root, "" for the root itself
	Source vfs.Entry
	Dest   vfs.Path

	// origin and target replace Source.Path and Dest in errors when a job
	// runs against a staging copy.
	origin vfs.Path
	target vfs.Path
}

// fail builds the error for a job that stopped the traversal.
func (j FileJob) fail(op string, err error) error {
	src, dst := j.Source.Path, j.Dest
	if j.origin != nil {
		src = j.origin
	}
	if j.target != nil {
		dst = j.target
	}
	return &vfs.OpError{Op: op, Path: src, Dest: dst, Err: cause(err)}
}

// Totals counts what a transfer touched.
type Totals struct {
	Files int
	Dirs  int
	Bytes uint64
}

// scan walks root in pre-order: a directory comes before its children, and
// children come in listing order. Symlinked directories are not descended.
func scan(ctx context.Context, t vfs.Transport, root vfs.Entry, dest vfs.Path) ([]FileJob, error) {
	var jobs []FileJob
	var visit func(e vfs.Entry, dest vfs.Path, rel string) error
	visit = func(e vfs.Entry, dest vfs.Path, rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		jobs = append(jobs, FileJob{Rel: rel, Source: e, Dest: dest})
		if !e.IsDir || e.IsSymlink {
			return nil
		}
		children, err := t.List(ctx, e.Path)
		if err != nil {
			return err
		}
		vfs.SortEntries(children, !t.IsRemote())
		for _, c := range children {
			if err := visit(c, dest.Join(c.Name), path.Join(rel, c.Name)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(root, dest, ""); err != nil {
		return nil, err
	}
	return jobs, nil
}

// joinRel resolves a slash separated relative path under base.
func joinRel(base vfs.Path, rel string) vfs.Path {
	if rel == "" {
		return base
	}
	p := base
	for _, part := range strings.Split(rel, "/") {
		p = p.Join(part)
	}
	return p
}
