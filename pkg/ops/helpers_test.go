package ops

import (
	"context"
	"io"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quocson95/nedok/pkg/sftp/sftptest"
	"github.com/quocson95/nedok/pkg/vfs"
)

// side is one end of a transfer: a transport and a scratch directory on it.
type side struct {
	name string
	t    vfs.Transport
	root vfs.Path
}

func localSide(t *testing.T) side {
	return side{name: "local", t: vfs.NewLocal(), root: vfs.Local(t.TempDir())}
}

func remoteSide(t *testing.T, id string) side {
	tr := sftptest.NewTransport(t, id)
	root := tr.Path("/work")
	require.NoError(t, tr.Mkdir(context.Background(), root))
	return side{name: "remote", t: tr, root: root}
}

func writeFile(t *testing.T, tr vfs.Transport, p vfs.Path, body string) {
	t.Helper()
	err := vfs.WithWriter(context.Background(), tr, p, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, strings.NewReader(body))
		return err
	})
	require.NoError(t, err)
}

func readFile(t *testing.T, tr vfs.Transport, p vfs.Path) string {
	t.Helper()
	var out []byte
	err := vfs.WithReader(context.Background(), tr, p, func(r io.Reader) error {
		var err error
		out, err = io.ReadAll(r)
		return err
	})
	require.NoError(t, err)
	return string(out)
}

func mkdir(t *testing.T, tr vfs.Transport, p vfs.Path) {
	t.Helper()
	require.NoError(t, tr.Mkdir(context.Background(), p))
}

func stat(t *testing.T, tr vfs.Transport, p vfs.Path) vfs.Entry {
	t.Helper()
	e, err := tr.Stat(context.Background(), p)
	require.NoError(t, err)
	return e
}

// buildTree creates tree/{a.txt, empty/, sub/{b.bin, deeper/c.txt}} under
// root: 3 files and 4 directories counting tree itself.
func buildTree(t *testing.T, s side) vfs.Entry {
	t.Helper()
	tree := s.root.Join("tree")
	mkdir(t, s.t, tree)
	writeFile(t, s.t, tree.Join("a.txt"), "alpha")
	mkdir(t, s.t, tree.Join("empty"))
	mkdir(t, s.t, tree.Join("sub"))
	writeFile(t, s.t, tree.Join("sub").Join("b.bin"), strings.Repeat("b", 70000))
	mkdir(t, s.t, tree.Join("sub").Join("deeper"))
	writeFile(t, s.t, tree.Join("sub").Join("deeper").Join("c.txt"), "gamma")
	return stat(t, s.t, tree)
}

var treeFiles = map[string]string{
	"a.txt":            "alpha",
	"sub/b.bin":        strings.Repeat("b", 70000),
	"sub/deeper/c.txt": "gamma",
}

func assertTree(t *testing.T, s side, tree vfs.Path) {
	t.Helper()
	for rel, body := range treeFiles {
		require.Equal(t, body, readFile(t, s.t, joinRel(tree, rel)), rel)
	}
	e := stat(t, s.t, tree.Join("empty"))
	require.True(t, e.IsDir)
}

// failingWriter refuses to create files with a given base name.
type failingWriter struct {
	vfs.Transport
	name string
}

func (f failingWriter) OpenWriter(ctx context.Context, p vfs.Path, mode fs.FileMode) (io.WriteCloser, error) {
	if p.Base() == f.name {
		return nil, &vfs.OpError{Op: "create", Path: p, Err: vfs.ErrPermission}
	}
	return f.Transport.OpenWriter(ctx, p, mode)
}

func dirIsEmpty(t *testing.T, dir string) bool {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries) == 0
}
