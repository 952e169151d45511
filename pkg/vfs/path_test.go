package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ref string

func (r ref) ConnectionID() string { return string(r) }

func TestLocalPath(t *testing.T) {
	p := Local("/home/user/docs/")
	assert.Equal(t, "/home/user/docs", p.String())
	assert.Equal(t, "docs", p.Base())
	assert.True(t, p.Parent().Equal(Local("/home/user")))
	assert.True(t, p.Join("a.txt").Equal(Local("/home/user/docs/a.txt")))
	assert.False(t, p.IsRemote())

	root := Local("/")
	assert.True(t, root.Parent().Equal(root), "root is its own parent")
}

func TestRemotePathEquality(t *testing.T) {
	a := Remote(ref("u@h:22"), "/srv/data")
	b := Remote(ref("u@h:22"), "/srv/data/")
	other := Remote(ref("u@other:22"), "/srv/data")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(other), "different sessions never compare equal")
	assert.False(t, a.Equal(Local("/srv/data")))
	assert.Equal(t, "u@h:22:/srv/data", a.Display())
	assert.True(t, Remote(ref("x"), "/").Parent().Equal(Remote(ref("x"), "/")))
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		name     string
		p        Path
		ancestor Path
		want     bool
	}{
		{"local self", Local("/a/b"), Local("/a/b"), true},
		{"local child", Local("/a/b/c"), Local("/a/b"), true},
		{"local sibling prefix", Local("/a/bc"), Local("/a/b"), false},
		{"local dotdot name", Local("/a/b/..c"), Local("/a/b"), true},
		{"local parent", Local("/a"), Local("/a/b"), false},
		{"remote child", Remote(ref("s"), "/x/y/z"), Remote(ref("s"), "/x"), true},
		{"remote under root", Remote(ref("s"), "/x"), Remote(ref("s"), "/"), true},
		{"remote sibling prefix", Remote(ref("s"), "/xy"), Remote(ref("s"), "/x"), false},
		{"remote other session", Remote(ref("s"), "/x/y"), Remote(ref("t"), "/x"), false},
		{"mixed backends", Local("/x/y"), Remote(ref("s"), "/x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.IsWithin(tt.ancestor))
		})
	}
}

func TestSameBackend(t *testing.T) {
	assert.True(t, SameBackend(Local("/a"), Local("/b")))
	assert.True(t, SameBackend(Remote(ref("s"), "/a"), Remote(ref("s"), "/b")))
	assert.False(t, SameBackend(Remote(ref("s"), "/a"), Remote(ref("t"), "/a")))
	assert.False(t, SameBackend(Local("/a"), Remote(ref("s"), "/a")))
}

func TestClassifyAndKind(t *testing.T) {
	err := Classify(fmt.Errorf("open: %w", fs.ErrNotExist))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, fs.ErrNotExist), "original error stays in the chain")
	assert.Equal(t, "not-found", KindOf(&OpError{Op: "stat", Path: Local("/x"), Err: err}))

	assert.Equal(t, "permission", KindOf(Classify(fs.ErrPermission)))
	assert.Equal(t, "host-key-mismatch", KindOf(fmt.Errorf("dial: %w", ErrHostKeyMismatch)))
	assert.Equal(t, "error", KindOf(errors.New("boom")))
	assert.Equal(t, "", KindOf(nil))
	assert.Nil(t, Classify(nil))
}

func TestOpErrorMessage(t *testing.T) {
	err := &OpError{Op: "copy", Path: Local("/a/f"), Dest: Remote(ref("u@h:22"), "/b/f"), Err: ErrPermission}
	assert.Equal(t, "copy /a/f -> u@h:22:/b/f: permission denied", err.Error())
	assert.True(t, errors.Is(err, ErrPermission))
}
