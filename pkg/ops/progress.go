package ops

import (
	"io"

	"github.com/quocson95/nedok/pkg/vfs"
)

// ProgressFunc receives the entry being transferred, bytes written so far
// and the expected size.
type ProgressFunc func(entry vfs.Entry, written, total uint64)

// progressReader wraps an io.Reader to report bytes read
type progressReader struct {
	reader  io.Reader
	entry   vfs.Entry
	written uint64
	fn      ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.written += uint64(n)
		pr.fn(pr.entry, pr.written, pr.entry.Size)
	}
	return n, err
}

func withProgress(r io.Reader, e vfs.Entry, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{reader: r, entry: e, fn: fn}
}
