package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// DefaultPort is used when a config leaves Port at zero.
const DefaultPort = 22

// PasswordPrompt asks the user for the password of user@host. Returning an
// error skips password authentication.
type PasswordPrompt func(user, host string) (string, error)

// HostKeyApprover is asked whether to trust an unknown host key. It blocks
// until the user answers.
type HostKeyApprover func(host, fingerprint string) bool

// SessionConfig describes how to reach and authenticate against a host.
type SessionConfig struct {
	Host     string
	Port     int
	Username string
	RootDir  string // optional; panes may not navigate above it

	// AgentSocket is the ssh-agent socket. Empty disables agent auth.
	AgentSocket string
	// KeyDir is scanned for private keys.
	KeyDir string
	// PrivateKey is an optional extra key path or PEM content, tried first
	// among key files.
	PrivateKey string
	// Password is a saved credential. It takes the prompt's slot.
	Password string
	Prompt   PasswordPrompt
	Approver HostKeyApprover
	Timeout  time.Duration
}

// Validate checks if the configuration is usable and fills in defaults.
func (c *SessionConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("invalid port number")
	}
	if c.Username == "" {
		return errors.New("username is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

// loadPrivateKey returns the PEM bytes named by PrivateKey, if any.
func (c *SessionConfig) loadPrivateKey() ([]byte, error) {
	if c.PrivateKey == "" {
		return nil, nil
	}
	if len(c.PrivateKey) > 5 && c.PrivateKey[:5] == "-----" {
		return []byte(c.PrivateKey), nil
	}
	return os.ReadFile(c.PrivateKey)
}

// Addr returns host:port for dialing.
func (c *SessionConfig) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// ConnectionID returns a unique identifier for this connection
func (c *SessionConfig) ConnectionID() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s@%s:%d", c.Username, c.Host, port)
}

// DefaultAgentSocket returns $SSH_AUTH_SOCK.
func DefaultAgentSocket() string {
	return os.Getenv("SSH_AUTH_SOCK")
}
