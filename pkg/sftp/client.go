package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/quocson95/nedok/pkg/vfs"
)

// Client is the remote Transport. It wraps an SFTP client opened on an
// existing SSH connection and owned by a session.
type Client struct {
	sftpClient *sftp.Client
	owner      vfs.SessionRef

	mu     sync.Mutex
	closed bool
	onLost func(error)
}

// NewClient opens the SFTP subsystem on an existing SSH connection.
func NewClient(sshClient *ssh.Client, owner vfs.SessionRef) (*Client, error) {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	return Wrap(sftpClient, owner), nil
}

// Wrap turns an already connected SFTP client into a Transport.
func Wrap(sftpClient *sftp.Client, owner vfs.SessionRef) *Client {
	return &Client{sftpClient: sftpClient, owner: owner}
}

// Offline returns a transport for owner on which every call fails with
// vfs.ErrConnection.
func Offline(owner vfs.SessionRef) *Client {
	return &Client{owner: owner, closed: true}
}

// OnConnectionLost registers fn to run once when a call fails with a
// connection-class error.
func (c *Client) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	c.onLost = fn
	c.mu.Unlock()
}

// Path builds a remote path owned by this client's session.
func (c *Client) Path(p string) vfs.RemotePath {
	return vfs.Remote(c.owner, p)
}

// Getwd returns the server side working directory of the login.
func (c *Client) Getwd() (string, error) {
	sc, err := c.client(context.Background(), "getwd", nil)
	if err != nil {
		return "", err
	}
	wd, err := sc.Getwd()
	if err != nil {
		return "", c.fail("getwd", nil, err)
	}
	return wd, nil
}

func (c *Client) IsRemote() bool { return true }

func (c *Client) List(ctx context.Context, dir vfs.Path) ([]vfs.Entry, error) {
	sc, err := c.client(ctx, "list", dir)
	if err != nil {
		return nil, err
	}
	info, err := sc.Stat(dir.String())
	if err != nil {
		return nil, c.fail("list", dir, err)
	}
	if !info.IsDir() {
		return nil, &vfs.OpError{Op: "list", Path: dir, Err: vfs.ErrNotADirectory}
	}
	infos, err := sc.ReadDir(dir.String())
	if err != nil {
		return nil, c.fail("list", dir, err)
	}
	entries := make([]vfs.Entry, 0, len(infos))
	for _, fi := range infos {
		p := dir.Join(fi.Name())
		entries = append(entries, c.entry(sc, p, fi))
	}
	return entries, nil
}

func (c *Client) Stat(ctx context.Context, p vfs.Path) (vfs.Entry, error) {
	sc, err := c.client(ctx, "stat", p)
	if err != nil {
		return vfs.Entry{}, err
	}
	fi, err := sc.Lstat(p.String())
	if err != nil {
		return vfs.Entry{}, c.fail("stat", p, err)
	}
	return c.entry(sc, p, fi), nil
}

// entry follows symlinks so a link to a directory lists as one. A dangling
// link keeps its own attributes.
func (c *Client) entry(sc *sftp.Client, p vfs.Path, fi fs.FileInfo) vfs.Entry {
	if fi.Mode()&fs.ModeSymlink == 0 {
		return vfs.NewEntry(p, fi)
	}
	e := vfs.NewEntry(p, fi)
	if resolved, err := sc.Stat(p.String()); err == nil {
		e = vfs.NewEntry(p, resolved)
	}
	e.IsSymlink = true
	return e
}

func (c *Client) OpenReader(ctx context.Context, p vfs.Path) (io.ReadCloser, error) {
	sc, err := c.client(ctx, "open", p)
	if err != nil {
		return nil, err
	}
	f, err := sc.Open(p.String())
	if err != nil {
		return nil, c.fail("open", p, err)
	}
	return f, nil
}

func (c *Client) OpenWriter(ctx context.Context, p vfs.Path, mode fs.FileMode) (io.WriteCloser, error) {
	sc, err := c.client(ctx, "create", p)
	if err != nil {
		return nil, err
	}
	f, err := sc.OpenFile(p.String(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, c.fail("create", p, err)
	}
	if mode.Perm() != 0 {
		if err := f.Chmod(mode.Perm()); err != nil {
			slog.Debug("sftp chmod after create failed", "path", p.String(), "err", err)
		}
	}
	return f, nil
}

func (c *Client) Remove(ctx context.Context, p vfs.Path) error {
	sc, err := c.client(ctx, "remove", p)
	if err != nil {
		return err
	}
	// sftp.Client.Remove falls back to removing empty directories
	fi, err := sc.Lstat(p.String())
	if err != nil {
		return c.fail("remove", p, err)
	}
	if fi.IsDir() {
		return &vfs.OpError{Op: "remove", Path: p, Err: vfs.ErrIsDirectory}
	}
	if err := sc.Remove(p.String()); err != nil {
		return c.fail("remove", p, err)
	}
	return nil
}

func (c *Client) Rmdir(ctx context.Context, p vfs.Path) error {
	sc, err := c.client(ctx, "rmdir", p)
	if err != nil {
		return err
	}
	if err := sc.RemoveDirectory(p.String()); err != nil {
		return c.fail("rmdir", p, err)
	}
	return nil
}

func (c *Client) Mkdir(ctx context.Context, p vfs.Path) error {
	sc, err := c.client(ctx, "mkdir", p)
	if err != nil {
		return err
	}
	if err := sc.Mkdir(p.String()); err != nil {
		// SFTP servers report an existing directory as a generic failure.
		if fi, serr := sc.Stat(p.String()); serr == nil && fi.IsDir() {
			return &vfs.OpError{Op: "mkdir", Path: p, Err: fmt.Errorf("%w: %w", vfs.ErrExists, err)}
		}
		return c.fail("mkdir", p, err)
	}
	return nil
}

func (c *Client) Rename(ctx context.Context, from, to vfs.Path) error {
	sc, err := c.client(ctx, "rename", from)
	if err != nil {
		return err
	}
	if err := c.check("rename", to); err != nil {
		return err
	}
	if err := sc.Rename(from.String(), to.String()); err != nil {
		e := c.fail("rename", from, err)
		e.Dest = to
		return e
	}
	return nil
}

func (c *Client) Chmod(ctx context.Context, p vfs.Path, mode fs.FileMode) error {
	sc, err := c.client(ctx, "chmod", p)
	if err != nil {
		return err
	}
	if err := sc.Chmod(p.String(), mode.Perm()); err != nil {
		return c.fail("chmod", p, err)
	}
	return nil
}

func (c *Client) Chtimes(ctx context.Context, p vfs.Path, mtime time.Time) error {
	sc, err := c.client(ctx, "chtimes", p)
	if err != nil {
		return err
	}
	if err := sc.Chtimes(p.String(), mtime, mtime); err != nil {
		return c.fail("chtimes", p, err)
	}
	return nil
}

// Close releases the SFTP subsystem. Later calls fail with
// vfs.ErrConnection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.sftpClient == nil {
		return nil
	}
	return c.sftpClient.Close()
}

// client validates the path and returns the live SFTP client.
func (c *Client) client(ctx context.Context, op string, p vfs.Path) (*sftp.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, &vfs.OpError{Op: op, Path: p, Err: err}
	}
	if p != nil {
		if err := c.check(op, p); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sftpClient == nil {
		return nil, &vfs.OpError{Op: op, Path: p, Err: fmt.Errorf("%w: session is not connected", vfs.ErrConnection)}
	}
	return c.sftpClient, nil
}

func (c *Client) check(op string, p vfs.Path) error {
	rp, ok := p.(vfs.RemotePath)
	if !ok || rp.Session() == nil || c.owner == nil || rp.Session().ConnectionID() != c.owner.ConnectionID() {
		return &vfs.OpError{Op: op, Path: p, Err: vfs.ErrUnsupportedCrossBackend}
	}
	return nil
}

// fail classifies err. Connection-class failures close the transport and
// notify the owner.
func (c *Client) fail(op string, p vfs.Path, err error) *vfs.OpError {
	if !isConnectionError(err) {
		return &vfs.OpError{Op: op, Path: p, Err: vfs.Classify(err)}
	}
	c.mu.Lock()
	already := c.closed
	c.closed = true
	lost := c.onLost
	c.mu.Unlock()
	if !already {
		slog.Warn("sftp connection lost", "op", op, "err", err)
		if lost != nil {
			lost(err)
		}
	}
	return &vfs.OpError{Op: op, Path: p, Err: fmt.Errorf("%w: %w", vfs.ErrConnection, err)}
}

func isConnectionError(err error) bool {
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, sftp.ErrSSHFxNoConnection) {
		return true
	}
	var status *sftp.StatusError
	if errors.As(err, &status) {
		code := status.FxCode()
		return code == sftp.ErrSSHFxConnectionLost || code == sftp.ErrSSHFxNoConnection
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
