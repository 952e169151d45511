package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Settings represents application settings
type Settings struct {
	DefaultPort        int    `json:"defaultPort"`
	DefaultUsername    string `json:"defaultUsername"`
	KeyDir             string `json:"keyDir"`
	ConnectTimeout     int    `json:"connectTimeoutSeconds"`
	Editor             string `json:"editor,omitempty"`             // overrides $EDITOR
	MasterPasswordHash string `json:"masterPasswordHash,omitempty"` // Bcrypt hash of master password
	S3Host             string `json:"s3Host,omitempty"`             // S3 Endpoint
	S3AccessKey        string `json:"s3AccessKey,omitempty"`        // S3 Access Key
	S3SecretKey        string `json:"s3SecretKey,omitempty"`        // S3 Secret Key
	S3Bucket           string `json:"s3Bucket,omitempty"`
}

// Timeout returns the connect timeout as a duration.
func (s Settings) Timeout() time.Duration {
	if s.ConnectTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ConnectTimeout) * time.Second
}

// SettingsStore manages application settings
type SettingsStore struct {
	settings Settings
	filePath string
	mu       sync.RWMutex
}

// NewSettingsStore creates a new settings store. A corrupt settings file is
// backed up and replaced by defaults; the store is still returned together
// with an error wrapping ErrCorrupted.
func NewSettingsStore(dataDir string) (*SettingsStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &SettingsStore{
		settings: getDefaultSettings(),
		filePath: filepath.Join(dataDir, "settings.json"),
	}

	err := store.load()
	switch {
	case err == nil:
		return store, nil
	case os.IsNotExist(err):
		if err := store.save(); err != nil {
			return nil, err
		}
		return store, nil
	case errors.Is(err, ErrCorrupted):
		store.settings = getDefaultSettings()
		if saveErr := store.save(); saveErr != nil {
			return nil, saveErr
		}
		return store, err
	default:
		return nil, err
	}
}

// getDefaultSettings returns a fresh default value on every call.
func getDefaultSettings() Settings {
	keyDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		keyDir = filepath.Join(home, ".ssh")
	}
	username := os.Getenv("USER")
	if username == "" {
		username = "root"
	}
	return Settings{
		DefaultPort:     22,
		DefaultUsername: username,
		KeyDir:          keyDir,
		ConnectTimeout:  30,
	}
}

// load overlays the file onto the defaults already in s.settings.
func (s *SettingsStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return os.ErrNotExist
	}
	loaded := s.settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return quarantine(s.filePath, data, err)
	}
	s.settings = loaded
	return nil
}

// save writes settings to disk
func (s *SettingsStore) save() error {
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return writeFileAtomic(s.filePath, data, 0600)
}

// Get returns current settings
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update updates settings
func (s *SettingsStore) Update(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	return s.save()
}

func (s *SettingsStore) SetDefaultUsername(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.DefaultUsername = username
	return s.save()
}

func (s *SettingsStore) SetS3(host, accessKey, secretKey, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.S3Host = host
	s.settings.S3AccessKey = accessKey
	s.settings.S3SecretKey = secretKey
	s.settings.S3Bucket = bucket
	return s.save()
}

// Reset resets settings to defaults
func (s *SettingsStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = getDefaultSettings()
	return s.save()
}

// HasMasterPassword reports whether credentials are sealed.
func (s *SettingsStore) HasMasterPassword() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.MasterPasswordHash != ""
}

// VerifyMasterPassword checks if the provided password matches the stored hash
func (s *SettingsStore) VerifyMasterPassword(password string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings.MasterPasswordHash == "" {
		return false
	}

	err := bcrypt.CompareHashAndPassword([]byte(s.settings.MasterPasswordHash), []byte(password))
	return err == nil
}

// SetMasterPassword sets the master encryption password (hashes it)
func (s *SettingsStore) SetMasterPassword(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if password == "" {
		s.settings.MasterPasswordHash = ""
		return s.save()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	s.settings.MasterPasswordHash = string(hash)
	return s.save()
}

// GetDataDir returns the directory where settings are stored
func (s *SettingsStore) GetDataDir() string {
	return filepath.Dir(s.filePath)
}

// DefaultDataDir returns ~/.nedok.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".nedok"), nil
}
