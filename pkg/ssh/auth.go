package ssh

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// AuthMethod names the credential that authenticated a session.
type AuthMethod string

const (
	AuthNone     AuthMethod = ""
	AuthAgent    AuthMethod = "agent"
	AuthKeyFile  AuthMethod = "key-file"
	AuthPassword AuthMethod = "password"
)

var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa", "id_dsa"}

// maxKeyFileSize bounds what key discovery will read.
const maxKeyFileSize = 64 << 10

// authChain builds the ordered auth methods for one handshake and records
// which credential was used last. The SSH client never retries a method
// name once it failed, so agent and key file signers share the single
// publickey method, agent signers first.
type authChain struct {
	methods   []ssh.AuthMethod
	agentConn net.Conn

	mu   sync.Mutex
	used AuthMethod
}

func newAuthChain(cfg *SessionConfig) *authChain {
	c := &authChain{}

	var keyring agent.ExtendedAgent
	if cfg.AgentSocket != "" {
		conn, err := net.Dial("unix", cfg.AgentSocket)
		if err != nil {
			slog.Debug("ssh agent unavailable", "socket", cfg.AgentSocket, "err", err)
		} else {
			c.agentConn = conn
			keyring = agent.NewClient(conn)
		}
	}

	fileSigners := loadKeySigners(cfg)
	if keyring != nil || len(fileSigners) > 0 {
		c.methods = append(c.methods, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			var signers []ssh.Signer
			if keyring != nil {
				agentSigners, err := keyring.Signers()
				if err != nil {
					slog.Debug("ssh agent signers", "err", err)
				}
				for _, s := range agentSigners {
					signers = append(signers, c.track(s, AuthAgent))
				}
			}
			for _, s := range fileSigners {
				signers = append(signers, c.track(s, AuthKeyFile))
			}
			return signers, nil
		}))
	}

	// The given password goes first; a rejected one falls through to the
	// prompt in the same handshake.
	var sources []func() (string, error)
	if cfg.Password != "" {
		sources = append(sources, func() (string, error) { return cfg.Password, nil })
	}
	if cfg.Prompt != nil {
		sources = append(sources, func() (string, error) { return cfg.Prompt(cfg.Username, cfg.Host) })
	}
	if len(sources) > 0 {
		tries := 0
		password := ssh.PasswordCallback(func() (string, error) {
			c.mark(AuthPassword)
			next := sources[min(tries, len(sources)-1)]
			tries++
			return next()
		})
		c.methods = append(c.methods, ssh.RetryableAuthMethod(password, len(sources)))
	}
	return c
}

// Used reports the method that produced the last credential sent.
func (c *authChain) Used() AuthMethod {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

func (c *authChain) Close() {
	if c.agentConn != nil {
		c.agentConn.Close()
	}
}

func (c *authChain) mark(m AuthMethod) {
	c.mu.Lock()
	c.used = m
	c.mu.Unlock()
}

// track wraps s so signing marks method m. Signing only happens after the
// server accepted the public key, so the last mark is the winner.
func (c *authChain) track(s ssh.Signer, m AuthMethod) ssh.Signer {
	base := trackedSigner{Signer: s, mark: func() { c.mark(m) }}
	as, ok := s.(ssh.AlgorithmSigner)
	if !ok {
		return base
	}
	algo := trackedAlgorithmSigner{trackedSigner: base, alg: as}
	if ms, ok := s.(ssh.MultiAlgorithmSigner); ok {
		return trackedMultiSigner{trackedAlgorithmSigner: algo, algorithms: ms.Algorithms()}
	}
	return algo
}

type trackedSigner struct {
	ssh.Signer
	mark func()
}

func (s trackedSigner) Sign(rand io.Reader, data []byte) (*ssh.Signature, error) {
	s.mark()
	return s.Signer.Sign(rand, data)
}

type trackedAlgorithmSigner struct {
	trackedSigner
	alg ssh.AlgorithmSigner
}

func (s trackedAlgorithmSigner) SignWithAlgorithm(rand io.Reader, data []byte, algorithm string) (*ssh.Signature, error) {
	s.mark()
	return s.alg.SignWithAlgorithm(rand, data, algorithm)
}

type trackedMultiSigner struct {
	trackedAlgorithmSigner
	algorithms []string
}

func (s trackedMultiSigner) Algorithms() []string { return s.algorithms }

// loadKeySigners returns the explicit key, then the default key names, then
// any other parseable unencrypted key in the key directory by name.
func loadKeySigners(cfg *SessionConfig) []ssh.Signer {
	var signers []ssh.Signer
	if pem, err := cfg.loadPrivateKey(); err != nil {
		slog.Warn("failed to load private key", "key", cfg.PrivateKey, "err", err)
	} else if pem != nil {
		if s, err := ssh.ParsePrivateKey(pem); err == nil {
			signers = append(signers, s)
		} else {
			slog.Warn("failed to parse private key", "key", cfg.PrivateKey, "err", err)
		}
	}
	for _, path := range candidateKeyFiles(cfg.KeyDir) {
		s, err := parseKeyFile(path)
		if err != nil {
			slog.Debug("skipping key file", "path", path, "err", err)
			continue
		}
		signers = append(signers, s)
	}
	return signers
}

func candidateKeyFiles(dir string) []string {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	present := map[string]bool{}
	var others []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".pub") || strings.HasPrefix(name, "known_hosts") ||
			name == "config" || name == "authorized_keys" {
			continue
		}
		present[name] = true
		others = append(others, name)
	}
	var paths []string
	for _, name := range defaultKeyNames {
		if present[name] {
			paths = append(paths, filepath.Join(dir, name))
			delete(present, name)
		}
	}
	for _, name := range others {
		if present[name] {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths
}

func parseKeyFile(path string) (ssh.Signer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxKeyFileSize {
		return nil, errors.New("file too large for a private key")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(data)
}
