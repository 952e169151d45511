package vfs

import (
	"path"
	"path/filepath"
	"strings"
)

// SessionRef identifies the remote session that owns a RemotePath.
type SessionRef interface {
	ConnectionID() string
}

// Path is a backend-tagged location. The only implementations are
// LocalPath and RemotePath.
type Path interface {
	String() string
	Base() string
	Parent() Path
	Join(name string) Path
	Equal(other Path) bool
	// IsWithin reports whether the path is ancestor itself or one of its
	// descendants on the same backend.
	IsWithin(ancestor Path) bool
	IsRemote() bool

	sealed()
}

// LocalPath wraps a native filesystem path.
type LocalPath struct {
	p string
}

// Local returns a cleaned local path.
func Local(p string) LocalPath {
	return LocalPath{p: filepath.Clean(p)}
}

func (l LocalPath) String() string { return l.p }

// Native returns the path in the host's native form.
func (l LocalPath) Native() string { return l.p }

func (l LocalPath) Base() string { return filepath.Base(l.p) }

func (l LocalPath) Parent() Path { return LocalPath{p: filepath.Dir(l.p)} }

func (l LocalPath) Join(name string) Path { return LocalPath{p: filepath.Join(l.p, name)} }

func (l LocalPath) IsRemote() bool { return false }

func (l LocalPath) Equal(other Path) bool {
	o, ok := other.(LocalPath)
	return ok && o.p == l.p
}

func (l LocalPath) IsWithin(ancestor Path) bool {
	a, ok := ancestor.(LocalPath)
	if !ok {
		return false
	}
	rel, err := filepath.Rel(a.p, l.p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (LocalPath) sealed() {}

// RemotePath is a POSIX path on a remote session.
type RemotePath struct {
	p       string
	session SessionRef
}

// Remote returns a cleaned remote path owned by session.
func Remote(session SessionRef, p string) RemotePath {
	return RemotePath{p: path.Clean(p), session: session}
}

func (r RemotePath) String() string { return r.p }

// Session returns the session the path belongs to.
func (r RemotePath) Session() SessionRef { return r.session }

// Display prefixes the path with its connection ID.
func (r RemotePath) Display() string {
	if r.session == nil {
		return r.p
	}
	return r.session.ConnectionID() + ":" + r.p
}

func (r RemotePath) Base() string { return path.Base(r.p) }

func (r RemotePath) Parent() Path { return RemotePath{p: path.Dir(r.p), session: r.session} }

func (r RemotePath) Join(name string) Path {
	return RemotePath{p: path.Join(r.p, name), session: r.session}
}

func (r RemotePath) IsRemote() bool { return true }

func (r RemotePath) Equal(other Path) bool {
	o, ok := other.(RemotePath)
	return ok && sameSession(r.session, o.session) && o.p == r.p
}

func (r RemotePath) IsWithin(ancestor Path) bool {
	a, ok := ancestor.(RemotePath)
	if !ok || !sameSession(r.session, a.session) {
		return false
	}
	if a.p == r.p || a.p == "/" {
		return true
	}
	return strings.HasPrefix(r.p, a.p+"/")
}

func (RemotePath) sealed() {}

// SameBackend reports whether a and b live on the same backend, and for
// remote paths, on the same session.
func SameBackend(a, b Path) bool {
	switch av := a.(type) {
	case LocalPath:
		_, ok := b.(LocalPath)
		return ok
	case RemotePath:
		bv, ok := b.(RemotePath)
		return ok && sameSession(av.session, bv.session)
	}
	return false
}

// Display renders p for status lines.
func Display(p Path) string {
	if r, ok := p.(RemotePath); ok {
		return r.Display()
	}
	if p == nil {
		return ""
	}
	return p.String()
}

func sameSession(a, b SessionRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ConnectionID() == b.ConnectionID()
}
