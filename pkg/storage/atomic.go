package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorrupted marks a store file that could not be parsed. The file is
// moved aside and the store continues from defaults.
var ErrCorrupted = errors.New("corrupted store file")

// writeFileAtomic writes data next to path and renames it into place so a
// crash never leaves a half written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// quarantine moves an unparsable file to <path>.corrupted.
func quarantine(path string, data []byte, cause error) error {
	backupPath := path + ".corrupted"
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("failed to parse %s and to back it up: %w", filepath.Base(path), err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove corrupted %s: %w", filepath.Base(path), err)
	}
	return fmt.Errorf("%w: %s backed up to %s: %v", ErrCorrupted, filepath.Base(path), backupPath, cause)
}
