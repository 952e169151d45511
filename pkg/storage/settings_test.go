package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewSettingsStore(t *testing.T) {
	// Create a temporary directory for testing
	tempDir, err := os.MkdirTemp("", "nedok-settings-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	store, err := NewSettingsStore(tempDir)
	if err != nil {
		t.Fatalf("NewSettingsStore failed: %v", err)
	}

	// Verify defaults
	settings := store.Get()
	if settings.DefaultPort != 22 {
		t.Errorf("Expected default port 22, got %d", settings.DefaultPort)
	}
	if settings.S3Host != "" {
		t.Error("Expected S3Host to be empty by default")
	}
	if store.HasMasterPassword() {
		t.Error("Expected no master password by default")
	}

	// Verify persistence file exists
	if _, err := os.Stat(filepath.Join(tempDir, "settings.json")); os.IsNotExist(err) {
		t.Error("settings.json was not created")
	}
}

func TestPartialFileOverlaysDefaults(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, "settings.json"), []byte(`{"defaultUsername":"deploy"}`), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := NewSettingsStore(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	settings := store.Get()
	if settings.DefaultUsername != "deploy" {
		t.Errorf("Expected username from file, got %s", settings.DefaultUsername)
	}
	if settings.DefaultPort != 22 || settings.ConnectTimeout != 30 {
		t.Errorf("Expected defaults for missing keys, got port=%d timeout=%d", settings.DefaultPort, settings.ConnectTimeout)
	}
}

func TestDefaultsAreNotShared(t *testing.T) {
	a := getDefaultSettings()
	a.DefaultPort = 2200
	a.KeyDir = "/elsewhere"

	b := getDefaultSettings()
	if b.DefaultPort != 22 {
		t.Errorf("Defaults were mutated: port %d", b.DefaultPort)
	}
	if b.KeyDir == "/elsewhere" {
		t.Error("Defaults were mutated: key dir")
	}
}

func TestS3SettingsPersistence(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "nedok-s3-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	store, err := NewSettingsStore(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.SetS3("https://example.com", "access-key", "secret-key", "nedok"); err != nil {
		t.Fatalf("SetS3 failed: %v", err)
	}

	// Verify persistence by reloading
	newStore, err := NewSettingsStore(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	startSettings := newStore.Get()
	if startSettings.S3Host != "https://example.com" {
		t.Errorf("Expected S3Host https://example.com, got %s", startSettings.S3Host)
	}
	if startSettings.S3AccessKey != "access-key" {
		t.Errorf("Expected S3AccessKey access-key, got %s", startSettings.S3AccessKey)
	}
	if startSettings.S3Bucket != "nedok" {
		t.Errorf("Expected S3Bucket nedok, got %s", startSettings.S3Bucket)
	}
}

func TestMasterPassword(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "nedok-password-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	store, err := NewSettingsStore(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	password := "super-secret-password"
	if err := store.SetMasterPassword(password); err != nil {
		t.Fatalf("SetMasterPassword failed: %v", err)
	}

	if !store.VerifyMasterPassword(password) {
		t.Error("VerifyMasterPassword failed for correct password")
	}
	if store.VerifyMasterPassword("wrong-password") {
		t.Error("VerifyMasterPassword succeeded for wrong password")
	}

	// Reload to verify hash persistence
	newStore, err := NewSettingsStore(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if !newStore.VerifyMasterPassword(password) {
		t.Error("VerifyMasterPassword failed after reload")
	}
}

func TestCorruptedSettingsFile(t *testing.T) {
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "settings.json")
	if err := os.WriteFile(filePath, []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := NewSettingsStore(tempDir)
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Expected ErrCorrupted, got %v", err)
	}
	if store == nil || store.Get().DefaultPort != 22 {
		t.Fatal("Expected store with defaults after corruption")
	}
	if _, err := os.Stat(filePath + ".corrupted"); err != nil {
		t.Errorf("Backup file wasn't created: %v", err)
	}

	// The reset file parses again.
	if _, err := NewSettingsStore(tempDir); err != nil {
		t.Errorf("Expected clean reload, got %v", err)
	}
}
