package vfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"
)


// LocalFS is the Transport over the host filesystem.
type LocalFS struct{}

// NewLocal returns the local transport.
func NewLocal() *LocalFS {
	return &LocalFS{}
}

func (l *LocalFS) IsRemote() bool { return false }

func (l *LocalFS) List(ctx context.Context, dir Path) ([]Entry, error) {
	native, err := l.native(ctx, "list", dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(native)
	if err != nil {
		return nil, &OpError{Op: "list", Path: dir, Err: Classify(err)}
	}
	if !info.IsDir() {
		return nil, &OpError{Op: "list", Path: dir, Err: ErrNotADirectory}
	}
	dirents, err := os.ReadDir(native)
	if err != nil {
		return nil, &OpError{Op: "list", Path: dir, Err: Classify(err)}
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		e, err := l.entry(dir.Join(d.Name()))
		if err != nil {
			// Entry vanished between readdir and lstat.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, &OpError{Op: "list", Path: dir.Join(d.Name()), Err: Classify(err)}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *LocalFS) Stat(ctx context.Context, p Path) (Entry, error) {
	if _, err := l.native(ctx, "stat", p); err != nil {
		return Entry{}, err
	}
	e, err := l.entry(p)
	if err != nil {
		return Entry{}, &OpError{Op: "stat", Path: p, Err: Classify(err)}
	}
	return e, nil
}

// entry lstats p so symlinks are reported as such, then follows the link
// to learn whether it points at a directory.
func (l *LocalFS) entry(p Path) (Entry, error) {
	native := p.String()
	info, err := os.Lstat(native)
	if err != nil {
		return Entry{}, err
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return NewEntry(p, info), nil
	}
	target, err := os.Readlink(native)
	if err != nil {
		return Entry{}, err
	}
	e := NewEntry(p, info)
	if resolved, err := os.Stat(native); err == nil {
		e = NewEntry(p, resolved)
	}
	e.IsSymlink = true
	e.LinkTarget = target
	return e, nil
}

func (l *LocalFS) OpenReader(ctx context.Context, p Path) (io.ReadCloser, error) {
	native, err := l.native(ctx, "open", p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(native)
	if err != nil {
		return nil, &OpError{Op: "open", Path: p, Err: Classify(err)}
	}
	return f, nil
}

func (l *LocalFS) OpenWriter(ctx context.Context, p Path, mode fs.FileMode) (io.WriteCloser, error) {
	native, err := l.native(ctx, "create", p)
	if err != nil {
		return nil, err
	}
	if mode.Perm() == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(native, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return nil, &OpError{Op: "create", Path: p, Err: Classify(err)}
	}
	return f, nil
}

func (l *LocalFS) Remove(ctx context.Context, p Path) error {
	native, err := l.native(ctx, "remove", p)
	if err != nil {
		return err
	}
	info, err := os.Lstat(native)
	if err != nil {
		return &OpError{Op: "remove", Path: p, Err: Classify(err)}
	}
	if info.IsDir() {
		return &OpError{Op: "remove", Path: p, Err: ErrIsDirectory}
	}
	if err := os.Remove(native); err != nil {
		return &OpError{Op: "remove", Path: p, Err: Classify(err)}
	}
	return nil
}

func (l *LocalFS) Rmdir(ctx context.Context, p Path) error {
	native, err := l.native(ctx, "rmdir", p)
	if err != nil {
		return err
	}
	info, err := os.Lstat(native)
	if err != nil {
		return &OpError{Op: "rmdir", Path: p, Err: Classify(err)}
	}
	if !info.IsDir() {
		return &OpError{Op: "rmdir", Path: p, Err: ErrNotADirectory}
	}
	if err := os.Remove(native); err != nil {
		return &OpError{Op: "rmdir", Path: p, Err: Classify(err)}
	}
	return nil
}

func (l *LocalFS) Mkdir(ctx context.Context, p Path) error {
	native, err := l.native(ctx, "mkdir", p)
	if err != nil {
		return err
	}
	if err := os.Mkdir(native, 0o755); err != nil {
		return &OpError{Op: "mkdir", Path: p, Err: Classify(err)}
	}
	return nil
}

func (l *LocalFS) Rename(ctx context.Context, from, to Path) error {
	src, err := l.native(ctx, "rename", from)
	if err != nil {
		return err
	}
	dst, err := l.native(ctx, "rename", to)
	if err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return &OpError{Op: "rename", Path: from, Dest: to, Err: Classify(err)}
	}
	return nil
}

func (l *LocalFS) Chmod(ctx context.Context, p Path, mode fs.FileMode) error {
	native, err := l.native(ctx, "chmod", p)
	if err != nil {
		return err
	}
	if err := os.Chmod(native, mode.Perm()); err != nil {
		return &OpError{Op: "chmod", Path: p, Err: Classify(err)}
	}
	return nil
}

func (l *LocalFS) Chtimes(ctx context.Context, p Path, mtime time.Time) error {
	native, err := l.native(ctx, "chtimes", p)
	if err != nil {
		return err
	}
	if err := os.Chtimes(native, mtime, mtime); err != nil {
		return &OpError{Op: "chtimes", Path: p, Err: Classify(err)}
	}
	return nil
}

func (l *LocalFS) native(ctx context.Context, op string, p Path) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &OpError{Op: op, Path: p, Err: err}
	}
	lp, ok := p.(LocalPath)
	if !ok {
		return "", &OpError{Op: op, Path: p, Err: ErrUnsupportedCrossBackend}
	}
	return lp.Native(), nil
}
