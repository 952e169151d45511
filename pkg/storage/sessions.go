package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RemoteRecord is a remote pane as saved on exit.
type RemoteRecord struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	RemotePath string `json:"remote_path"`
}

// PaneRecord is one pane of the last session. Local is the directory to
// show, or the fallback when Remote is set.
type PaneRecord struct {
	Local  string        `json:"local,omitempty"`
	Remote *RemoteRecord `json:"remote,omitempty"`
}

// LastSession is the restorable state of both panes.
type LastSession struct {
	Left    PaneRecord `json:"left"`
	Right   PaneRecord `json:"right"`
	Active  int        `json:"active"`
	SavedAt time.Time  `json:"savedAt"`
}

// SessionStore persists the last session to session.json.
type SessionStore struct {
	filePath string
}

// NewSessionStore creates the store under dataDir.
func NewSessionStore(dataDir string) (*SessionStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &SessionStore{filePath: filepath.Join(dataDir, "session.json")}, nil
}

// Load returns the saved session. A missing file yields a zero value and
// ok false. A corrupt file is backed up and reported with ErrCorrupted.
func (s *SessionStore) Load() (last LastSession, ok bool, err error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return LastSession{}, false, nil
		}
		return LastSession{}, false, fmt.Errorf("failed to read last session: %w", err)
	}
	if err := json.Unmarshal(data, &last); err != nil {
		return LastSession{}, false, quarantine(s.filePath, data, err)
	}
	return last, true, nil
}

// Save writes the session atomically.
func (s *SessionStore) Save(last LastSession) error {
	if last.SavedAt.IsZero() {
		last.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(last, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal last session: %w", err)
	}
	if err := writeFileAtomic(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to save last session: %w", err)
	}
	return nil
}
