package ops

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocson95/nedok/pkg/vfs"
)

func TestDeleteIsDepthFirst(t *testing.T) {
	for _, mk := range []func(t *testing.T) side{localSide, func(t *testing.T) side { return remoteSide(t, "u@h:22") }} {
		s := mk(t)
		t.Run(s.name, func(t *testing.T) {
			ctx := context.Background()
			tree := buildTree(t, s)
			totals, err := NewRouter().Delete(ctx, s.t, tree)
			require.NoError(t, err)
			assert.Equal(t, 3, totals.Files)
			assert.Equal(t, 4, totals.Dirs)

			entries, err := s.t.List(ctx, s.root)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestRenameRules(t *testing.T) {
	for _, mk := range []func(t *testing.T) side{localSide, func(t *testing.T) side { return remoteSide(t, "u@h:22") }} {
		s := mk(t)
		t.Run(s.name, func(t *testing.T) {
			ctx := context.Background()
			r := NewRouter()
			writeFile(t, s.t, s.root.Join("old"), "x")
			writeFile(t, s.t, s.root.Join("taken"), "y")
			old := stat(t, s.t, s.root.Join("old"))

			_, err := r.Rename(ctx, s.t, old, "taken")
			assert.True(t, errors.Is(err, vfs.ErrExists))

			_, err = r.Rename(ctx, s.t, old, "a/b")
			assert.True(t, errors.Is(err, ErrInvalidName))

			to, err := r.Rename(ctx, s.t, old, "new")
			require.NoError(t, err)
			assert.Equal(t, "x", readFile(t, s.t, to))

			_, err = r.Rename(ctx, s.t, old, "new2")
			assert.True(t, errors.Is(err, vfs.ErrNotFound), "second rename of the old name")
		})
	}
}

func TestRenameAcrossBackendsIsRefused(t *testing.T) {
	ctx := context.Background()
	local, remote := localSide(t), remoteSide(t, "u@h:22")
	writeFile(t, local.t, local.root.Join("f"), "x")

	err := NewRouter().RenamePath(ctx, local.t, local.root.Join("f"), remote.root.Join("f"))
	assert.True(t, errors.Is(err, vfs.ErrUnsupportedCrossBackend))

	other := remoteSide(t, "u@other:22")
	err = NewRouter().RenamePath(ctx, remote.t, remote.root.Join("f"), other.root.Join("f"))
	assert.True(t, errors.Is(err, vfs.ErrUnsupportedCrossBackend))
}

func TestCreateRefusesExisting(t *testing.T) {
	for _, mk := range []func(t *testing.T) side{localSide, func(t *testing.T) side { return remoteSide(t, "u@h:22") }} {
		s := mk(t)
		t.Run(s.name, func(t *testing.T) {
			ctx := context.Background()
			r := NewRouter()

			f, err := r.CreateFile(ctx, s.t, s.root, "notes.txt")
			require.NoError(t, err)
			e := stat(t, s.t, f)
			assert.False(t, e.IsDir)
			assert.Equal(t, uint64(0), e.Size)

			_, err = r.CreateFile(ctx, s.t, s.root, "notes.txt")
			assert.True(t, errors.Is(err, vfs.ErrExists))

			d, err := r.CreateDir(ctx, s.t, s.root, "folder")
			require.NoError(t, err)
			assert.True(t, stat(t, s.t, d).IsDir)

			_, err = r.CreateDir(ctx, s.t, s.root, "folder")
			assert.True(t, errors.Is(err, vfs.ErrExists))
			_, err = r.CreateDir(ctx, s.t, s.root, "..")
			assert.True(t, errors.Is(err, ErrInvalidName))
		})
	}
}

func TestEditStagedRemote(t *testing.T) {
	ctx := context.Background()
	remote := remoteSide(t, "u@h:22")
	p := remote.root.Join("config.ini")
	writeFile(t, remote.t, p, "a=1\n")
	r := &Router{StagingDir: t.TempDir()}

	var staged string
	changed, err := r.EditStaged(ctx, remote.t, stat(t, remote.t, p), func(local string) error {
		staged = local
		data, err := os.ReadFile(local)
		require.NoError(t, err)
		assert.Equal(t, "a=1\n", string(data))
		return os.WriteFile(local, []byte("a=2\n"), 0o644)
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "a=2\n", readFile(t, remote.t, p))
	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err), "temp file removed")
	assert.True(t, dirIsEmpty(t, r.StagingDir))

	changed, err = r.EditStaged(ctx, remote.t, stat(t, remote.t, p), func(string) error { return nil })
	require.NoError(t, err)
	assert.False(t, changed, "untouched file is not uploaded")
	assert.True(t, dirIsEmpty(t, r.StagingDir))
}

func TestEditStagedEditorFailure(t *testing.T) {
	ctx := context.Background()
	remote := remoteSide(t, "u@h:22")
	p := remote.root.Join("f")
	writeFile(t, remote.t, p, "keep")
	r := &Router{StagingDir: t.TempDir()}

	_, err := r.EditStaged(ctx, remote.t, stat(t, remote.t, p), func(string) error { return errors.New("exit status 1") })
	require.Error(t, err)
	assert.Equal(t, "keep", readFile(t, remote.t, p))
	assert.True(t, dirIsEmpty(t, r.StagingDir))
}

func TestEditLocalInPlace(t *testing.T) {
	ctx := context.Background()
	local := localSide(t)
	p := local.root.Join("f")
	writeFile(t, local.t, p, "one")

	var edited string
	changed, err := NewRouter().EditStaged(ctx, local.t, stat(t, local.t, p), func(path string) error {
		edited = path
		return os.WriteFile(path, []byte("one two"), 0o644)
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, p.String(), edited)
}

func TestEditLocalMissingFile(t *testing.T) {
	ctx := context.Background()
	local := localSide(t)
	p := local.root.Join("f")
	writeFile(t, local.t, p, "one")
	e := stat(t, local.t, p)
	require.NoError(t, os.Remove(p.String()))

	ran := false
	changed, err := NewRouter().EditStaged(ctx, local.t, e, func(string) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, vfs.ErrNotFound))
	assert.False(t, changed)
	assert.False(t, ran)
}
