package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/quocson95/nedok/pkg/vfs"
)

// ErrHostKeyRejected is returned when the approver declines an unknown key.
var ErrHostKeyRejected = errors.New("host key rejected")

// TrustStore is an OpenSSH known_hosts file of accepted host keys.
type TrustStore struct {
	path string
	mu   sync.Mutex
}

// NewTrustStore opens, creating if needed, the known_hosts file at path.
func NewTrustStore(path string) (*TrustStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create trust store directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open trust store: %w", err)
	}
	f.Close()
	return &TrustStore{path: path}, nil
}

// Path returns the known_hosts location.
func (s *TrustStore) Path() string { return s.path }

// Add appends key for every given address.
func (s *TrustStore) Add(key ssh.PublicKey, addresses ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := make([]string, 0, len(addresses))
	seen := map[string]bool{}
	for _, a := range addresses {
		n := knownhosts.Normalize(a)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open trust store: %w", err)
	}
	if _, err := fmt.Fprintln(f, knownhosts.Line(normalized, key)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write trust store: %w", err)
	}
	return f.Close()
}

// hostKeyCallback verifies server keys against the store. Known keys pass,
// changed keys fail closed, unknown keys block on approve. fingerprint
// receives the SHA256 fingerprint of every presented key and pending is
// called right before approve.
func (s *TrustStore) hostKeyCallback(approve HostKeyApprover, fingerprint func(string), pending func(string)) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fp := ssh.FingerprintSHA256(key)
		fingerprint(fp)

		s.mu.Lock()
		check, err := knownhosts.New(s.path)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to load trust store: %w", err)
		}
		err = check(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			return fmt.Errorf("%w: %s presented %s", vfs.ErrHostKeyMismatch, hostname, fp)
		}
		if approve == nil {
			return fmt.Errorf("%w: %s is not trusted and no one can approve %s", ErrHostKeyRejected, hostname, fp)
		}
		pending(fp)
		if !approve(hostname, fp) {
			return fmt.Errorf("%w: %s", ErrHostKeyRejected, fp)
		}
		addresses := []string{hostname}
		if remote != nil {
			addresses = append(addresses, remote.String())
		}
		if err := s.Add(key, addresses...); err != nil {
			return err
		}
		return nil
	}
}
