package vfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalListEntriesBelongToDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "A"), 0o755))
	require.NoError(t, os.Symlink("b.txt", filepath.Join(dir, "link")))

	fsys := NewLocal()
	entries, err := fsys.List(ctx, Local(dir))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	SortEntries(entries, true)
	assert.Equal(t, "A", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	for _, e := range entries {
		assert.True(t, e.Path.Parent().Equal(Local(dir)))
		assert.False(t, e.IsRemote)
	}

	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.Equal(t, uint64(5), byName["b.txt"].Size)
	assert.True(t, byName["link"].IsSymlink)
	assert.Equal(t, "b.txt", byName["link"].LinkTarget)
}

func TestLocalListErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	fsys := NewLocal()

	_, err := fsys.List(ctx, Local(file))
	assert.True(t, errors.Is(err, ErrNotADirectory))

	_, err = fsys.List(ctx, Local(filepath.Join(dir, "missing")))
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = fsys.List(ctx, Remote(ref("s"), "/"))
	assert.True(t, errors.Is(err, ErrUnsupportedCrossBackend))
}

func TestLocalStreams(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fsys := NewLocal()
	p := Local(filepath.Join(dir, "out.txt"))

	err := WithWriter(ctx, fsys, p, 0o600, func(w io.Writer) error {
		_, err := io.Copy(w, strings.NewReader("payload"))
		return err
	})
	require.NoError(t, err)

	var got []byte
	err = WithReader(ctx, fsys, p, func(r io.Reader) error {
		got, err = io.ReadAll(r)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	e, err := fsys.Stat(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), e.Mode.Perm())
}

func TestLocalMutations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fsys := NewLocal()
	sub := Local(filepath.Join(dir, "sub"))

	require.NoError(t, fsys.Mkdir(ctx, sub))
	assert.True(t, errors.Is(fsys.Mkdir(ctx, sub), ErrExists))

	f := sub.Join("f")
	require.NoError(t, WithWriter(ctx, fsys, f, 0, func(io.Writer) error { return nil }))
	assert.Error(t, fsys.Rmdir(ctx, sub), "non-empty directory")
	assert.True(t, errors.Is(fsys.Remove(ctx, sub), ErrIsDirectory), "remove refuses directories")
	assert.True(t, errors.Is(fsys.Rmdir(ctx, f), ErrNotADirectory))

	g := sub.Join("g")
	require.NoError(t, fsys.Rename(ctx, f, g))
	assert.True(t, errors.Is(fsys.Rename(ctx, f, g), ErrNotFound))

	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, fsys.Chtimes(ctx, g, mtime))
	e, err := fsys.Stat(ctx, g)
	require.NoError(t, err)
	assert.True(t, e.ModTime.Equal(mtime))

	require.NoError(t, fsys.Remove(ctx, g))
	require.NoError(t, fsys.Rmdir(ctx, sub))
	_, err = fsys.Stat(ctx, sub)
	assert.True(t, errors.Is(err, ErrNotFound))
}
