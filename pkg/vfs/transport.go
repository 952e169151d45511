package vfs

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// Transport is the capability set both backends implement. Every error it
// returns is an *OpError wrapping one of the package sentinels when the
// failure can be classified.
type Transport interface {
	List(ctx context.Context, dir Path) ([]Entry, error)
	Stat(ctx context.Context, p Path) (Entry, error)
	OpenReader(ctx context.Context, p Path) (io.ReadCloser, error)
	// OpenWriter creates or truncates p. mode is applied to new files.
	OpenWriter(ctx context.Context, p Path, mode fs.FileMode) (io.WriteCloser, error)
	Remove(ctx context.Context, p Path) error
	// Rmdir removes an empty directory.
	Rmdir(ctx context.Context, p Path) error
	Mkdir(ctx context.Context, p Path) error
	Rename(ctx context.Context, from, to Path) error
	Chmod(ctx context.Context, p Path, mode fs.FileMode) error
	Chtimes(ctx context.Context, p Path, mtime time.Time) error
	IsRemote() bool
}

// WithReader opens p, hands the stream to fn and always closes it.
func WithReader(ctx context.Context, t Transport, p Path, fn func(io.Reader) error) (err error) {
	r, err := t.OpenReader(ctx, p)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = &OpError{Op: "close", Path: p, Err: Classify(cerr)}
		}
	}()
	return fn(r)
}

// WithWriter opens p for writing, hands the stream to fn and always closes
// it. A failing close is reported since it may lose buffered data.
func WithWriter(ctx context.Context, t Transport, p Path, mode fs.FileMode, fn func(io.Writer) error) (err error) {
	w, err := t.OpenWriter(ctx, p, mode)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = &OpError{Op: "close", Path: p, Err: Classify(cerr)}
		}
	}()
	return fn(w)
}
