package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrLocked is returned when a sealed credential is read without the
// master password.
var ErrLocked = errors.New("credential is sealed; master password required")

// Credential is a saved password for one user@host:port.
type Credential struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"` // only when Plaintext
	Sealed    []byte `json:"sealed,omitempty"`   // AES-GCM ciphertext
	Salt      []byte `json:"salt,omitempty"`     // PBKDF2 salt
	Plaintext bool   `json:"plaintext"`          // stored without a master password
	UpdatedAt int64  `json:"updatedAt"`
}

// Key identifies the credential, in the same form as a session connection ID.
func (c *Credential) Key() string {
	return credentialKey(c.Username, c.Host, c.Port)
}

func credentialKey(username, host string, port int) string {
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s@%s:%d", username, host, port)
}

// CredentialStore manages saved credentials
type CredentialStore struct {
	creds    map[string]*Credential
	filePath string
	mu       sync.RWMutex
}

// NewCredentialStore opens credentials.json under dataDir. A corrupt file
// is backed up and the store starts empty; the error wraps ErrCorrupted.
func NewCredentialStore(dataDir string) (*CredentialStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &CredentialStore{
		creds:    make(map[string]*Credential),
		filePath: filepath.Join(dataDir, "credentials.json"),
	}

	err := store.load()
	switch {
	case err == nil, os.IsNotExist(err):
		return store, nil
	case errors.Is(err, ErrCorrupted):
		store.creds = make(map[string]*Credential)
		return store, err
	default:
		return nil, err
	}
}

// load reads credentials from disk
func (s *CredentialStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var creds []*Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return quarantine(s.filePath, data, err)
	}
	for _, c := range creds {
		s.creds[c.Key()] = c
	}
	return nil
}

// save writes credentials to disk
func (s *CredentialStore) save() error {
	creds := make([]*Credential, 0, len(s.creds))
	for _, c := range s.creds {
		creds = append(creds, c)
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Key() < creds[j].Key() })

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return writeFileAtomic(s.filePath, data, 0600)
}

// Put saves password for username@host:port. With an empty master password
// the secret is stored in plaintext and flagged.
func (s *CredentialStore) Put(host string, port int, username, password, masterPassword string) error {
	cred := &Credential{
		Host:      host,
		Port:      port,
		Username:  username,
		UpdatedAt: time.Now().Unix(),
	}
	if masterPassword == "" {
		cred.Password = password
		cred.Plaintext = true
	} else {
		sealed, salt, err := EncryptSecret([]byte(password), masterPassword)
		if err != nil {
			return fmt.Errorf("failed to seal credential: %w", err)
		}
		cred.Sealed = sealed
		cred.Salt = salt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Key()] = cred
	return s.save()
}

// Get retrieves a credential record
func (s *CredentialStore) Get(host string, port int, username string) (*Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creds[credentialKey(username, host, port)]
	return c, ok
}

// Password returns the saved secret, unsealing it when needed. ok is false
// when nothing is saved.
func (s *CredentialStore) Password(host string, port int, username, masterPassword string) (password string, ok bool, err error) {
	c, ok := s.Get(host, port, username)
	if !ok {
		return "", false, nil
	}
	if c.Plaintext {
		return c.Password, true, nil
	}
	if masterPassword == "" {
		return "", true, ErrLocked
	}
	plain, err := DecryptSecret(c.Sealed, c.Salt, masterPassword)
	if err != nil {
		return "", true, err
	}
	return string(plain), true, nil
}

// List returns all credentials ordered by key
func (s *CredentialStore) List() []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := make([]*Credential, 0, len(s.creds))
	for _, c := range s.creds {
		creds = append(creds, c)
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Key() < creds[j].Key() })
	return creds
}

// Delete removes a credential
func (s *CredentialStore) Delete(host string, port int, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(username, host, port)
	if _, exists := s.creds[key]; !exists {
		return fmt.Errorf("credential not found: %s", key)
	}

	delete(s.creds, key)
	return s.save()
}
