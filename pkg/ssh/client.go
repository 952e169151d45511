package ssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"

	nsftp "github.com/quocson95/nedok/pkg/sftp"
	"github.com/quocson95/nedok/pkg/vfs"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateDisconnected State = iota
	StateAuthenticating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventKind classifies session lifecycle events.
type EventKind string

const (
	EventConnected      EventKind = "connected"
	EventDisconnected   EventKind = "disconnected"
	EventHostKeyPending EventKind = "host-key-pending"
)

// Event is delivered to listeners on lifecycle changes. Listeners may run
// on the connection watcher goroutine.
type Event struct {
	Kind        EventKind
	Session     *Session
	Fingerprint string
	Err         error
}

// Session is one authenticated SSH connection with its SFTP transport.
// Callers only ever see it Disconnected or Connected; every transport call
// outside Connected fails with vfs.ErrConnection.
type Session struct {
	config *SessionConfig
	trust  *TrustStore

	mu          sync.Mutex
	state       State
	client      *ssh.Client
	transport   *nsftp.Client
	method      AuthMethod
	fingerprint string
	home        string
	listeners   []func(Event)
}

// NewSession prepares a disconnected session.
func NewSession(config *SessionConfig, trust *TrustStore) *Session {
	return &Session{config: config, trust: trust}
}

// ConnectionID is user@host:port.
func (s *Session) ConnectionID() string { return s.config.ConnectionID() }

// Config returns the session configuration.
func (s *Session) Config() *SessionConfig { return s.config }

// OnEvent registers a lifecycle listener.
func (s *Session) OnEvent(fn func(Event)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Connect dials, verifies the host key, authenticates and opens SFTP.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.trust == nil {
		return errors.New("no trust store configured")
	}

	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("session %s is already %s", s.ConnectionID(), s.state)
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	client, chain, fingerprint, err := s.dial(ctx)
	if err != nil {
		s.setDisconnected()
		return err
	}

	transport, err := nsftp.NewClient(client, s)
	if err != nil {
		client.Close()
		s.setDisconnected()
		return fmt.Errorf("%w: %w", vfs.ErrConnection, err)
	}
	home, err := transport.Getwd()
	if err != nil || home == "" {
		home = "/"
	}

	s.mu.Lock()
	s.client = client
	s.transport = transport
	s.method = chain
	s.fingerprint = fingerprint
	s.home = home
	s.state = StateConnected
	s.mu.Unlock()

	transport.OnConnectionLost(func(err error) { s.drop(client, err) })
	go s.watch(client)

	slog.Info("session connected", "id", s.ConnectionID(), "auth", chain, "fingerprint", fingerprint)
	s.emit(Event{Kind: EventConnected, Session: s, Fingerprint: fingerprint})
	return nil
}

// dial runs the whole handshake: host key check, then the auth chain.
func (s *Session) dial(ctx context.Context) (*ssh.Client, AuthMethod, string, error) {
	chain := newAuthChain(s.config)
	defer chain.Close()
	if len(chain.methods) == 0 {
		return nil, AuthNone, "", fmt.Errorf("%w: no authentication method available for %s", vfs.ErrConnection, s.ConnectionID())
	}

	var fingerprint string
	var hostErr error
	verify := s.trust.hostKeyCallback(s.config.Approver,
		func(fp string) { fingerprint = fp },
		func(fp string) { s.emit(Event{Kind: EventHostKeyPending, Session: s, Fingerprint: fp}) },
	)
	sshConfig := &ssh.ClientConfig{
		User: s.config.Username,
		Auth: chain.methods,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			hostErr = verify(hostname, remote, key)
			return hostErr
		},
		Timeout: s.config.Timeout,
	}

	addr := s.config.Addr()
	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, AuthNone, "", fmt.Errorf("%w: failed to dial %s: %w", vfs.ErrConnection, addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		if hostErr != nil {
			return nil, AuthNone, fingerprint, hostErr
		}
		return nil, AuthNone, fingerprint, fmt.Errorf("%w: ssh handshake with %s failed: %w", vfs.ErrConnection, addr, err)
	}
	return ssh.NewClient(c, chans, reqs), chain.Used(), fingerprint, nil
}

// Disconnect releases the SFTP and SSH clients.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	client, transport := s.client, s.transport
	s.resetLocked()
	s.mu.Unlock()

	var errs []error
	if err := transport.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	slog.Info("session disconnected", "id", s.ConnectionID())
	s.emit(Event{Kind: EventDisconnected, Session: s})
	return errors.Join(errs...)
}

// watch flips the session to Disconnected when the connection ends.
func (s *Session) watch(client *ssh.Client) {
	err := client.Wait()
	s.drop(client, err)
}

// drop handles a lost connection. It is a no-op once the session moved on
// to another client or was disconnected explicitly.
func (s *Session) drop(client *ssh.Client, cause error) {
	s.mu.Lock()
	if s.client != client || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	transport := s.transport
	s.resetLocked()
	s.mu.Unlock()

	transport.Close()
	client.Close()
	slog.Warn("session lost", "id", s.ConnectionID(), "err", cause)
	s.emit(Event{Kind: EventDisconnected, Session: s, Err: cause})
}

func (s *Session) resetLocked() {
	s.state = StateDisconnected
	s.client = nil
	s.transport = nil
}

func (s *Session) setDisconnected() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	listeners := append([]func(Event){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Transport returns the remote transport. Outside Connected it fails every
// call with vfs.ErrConnection.
func (s *Session) Transport() vfs.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.transport == nil {
		return nsftp.Offline(s)
	}
	return s.transport
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected returns true if connected
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// AuthMethod reports which credential authenticated the session.
func (s *Session) AuthMethod() AuthMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method
}

// Fingerprint is the SHA256 fingerprint of the trusted host key.
func (s *Session) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint
}

// Path builds a path on this session.
func (s *Session) Path(p string) vfs.RemotePath {
	return vfs.Remote(s, p)
}

// Root returns the configured root directory, if any.
func (s *Session) Root() (vfs.RemotePath, bool) {
	if s.config.RootDir == "" {
		return vfs.RemotePath{}, false
	}
	return s.Path(s.config.RootDir), true
}

// StartDir is where a pane lands after connecting: the root directory when
// configured, otherwise the login directory.
func (s *Session) StartDir() vfs.RemotePath {
	if root, ok := s.Root(); ok {
		return root
	}
	s.mu.Lock()
	home := s.home
	s.mu.Unlock()
	if home == "" {
		home = "/"
	}
	return s.Path(home)
}
