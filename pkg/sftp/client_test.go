package sftp_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocson95/nedok/pkg/sftp/sftptest"
	"github.com/quocson95/nedok/pkg/vfs"
)

func write(t *testing.T, tr vfs.Transport, p vfs.Path, body string) {
	t.Helper()
	err := vfs.WithWriter(context.Background(), tr, p, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, strings.NewReader(body))
		return err
	})
	require.NoError(t, err)
}

func TestRemoteListAndStat(t *testing.T) {
	ctx := context.Background()
	tr := sftptest.NewTransport(t, "u@example:22")
	root := tr.Path("/data")

	require.NoError(t, tr.Mkdir(ctx, root))
	require.NoError(t, tr.Mkdir(ctx, root.Join("sub")))
	write(t, tr, root.Join("a.txt"), "hello")

	entries, err := tr.List(ctx, root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	vfs.SortEntries(entries, false)
	assert.Equal(t, "sub", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "a.txt", entries[1].Name)
	assert.Equal(t, uint64(5), entries[1].Size)
	for _, e := range entries {
		assert.True(t, e.IsRemote)
		assert.True(t, e.Path.Parent().Equal(root))
	}

	_, err = tr.List(ctx, root.Join("a.txt"))
	assert.True(t, errors.Is(err, vfs.ErrNotADirectory))

	_, err = tr.Stat(ctx, root.Join("missing"))
	assert.True(t, errors.Is(err, vfs.ErrNotFound))
}

func TestRemoteReadBack(t *testing.T) {
	ctx := context.Background()
	tr := sftptest.NewTransport(t, "u@example:22")
	p := tr.Path("/f.bin")
	write(t, tr, p, "bytes on the wire")

	var got []byte
	err := vfs.WithReader(ctx, tr, p, func(r io.Reader) error {
		var err error
		got, err = io.ReadAll(r)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "bytes on the wire", string(got))
}

func TestRemoteRenameAndRemove(t *testing.T) {
	ctx := context.Background()
	tr := sftptest.NewTransport(t, "u@example:22")
	dir := tr.Path("/d")
	require.NoError(t, tr.Mkdir(ctx, dir))
	write(t, tr, dir.Join("old"), "x")

	require.NoError(t, tr.Rename(ctx, dir.Join("old"), dir.Join("new")))
	err := tr.Rename(ctx, dir.Join("old"), dir.Join("new2"))
	assert.True(t, errors.Is(err, vfs.ErrNotFound))

	err = tr.Remove(ctx, dir)
	assert.True(t, errors.Is(err, vfs.ErrIsDirectory), "remove refuses directories: %v", err)

	require.NoError(t, tr.Remove(ctx, dir.Join("new")))
	require.NoError(t, tr.Rmdir(ctx, dir))
	_, err = tr.Stat(ctx, dir)
	assert.True(t, errors.Is(err, vfs.ErrNotFound))
}

func TestRemoteRejectsForeignPaths(t *testing.T) {
	ctx := context.Background()
	tr := sftptest.NewTransport(t, "u@example:22")

	_, err := tr.List(ctx, vfs.Local("/"))
	assert.True(t, errors.Is(err, vfs.ErrUnsupportedCrossBackend))

	_, err = tr.List(ctx, vfs.Remote(sftptest.Ref("u@other:22"), "/"))
	assert.True(t, errors.Is(err, vfs.ErrUnsupportedCrossBackend))
}

func TestClosedTransportFailsWithConnectionError(t *testing.T) {
	ctx := context.Background()
	tr := sftptest.NewTransport(t, "u@example:22")
	p := tr.Path("/x")
	require.NoError(t, tr.Mkdir(ctx, p))
	require.NoError(t, tr.Close())

	calls := map[string]error{}
	_, calls["list"] = tr.List(ctx, tr.Path("/"))
	_, calls["stat"] = tr.Stat(ctx, p)
	_, calls["open"] = tr.OpenReader(ctx, p)
	_, calls["create"] = tr.OpenWriter(ctx, p.Join("f"), 0o644)
	calls["remove"] = tr.Remove(ctx, p)
	calls["rmdir"] = tr.Rmdir(ctx, p)
	calls["mkdir"] = tr.Mkdir(ctx, p.Join("y"))
	calls["rename"] = tr.Rename(ctx, p, tr.Path("/z"))
	for op, err := range calls {
		assert.Truef(t, errors.Is(err, vfs.ErrConnection), "%s: %v", op, err)
	}
}
