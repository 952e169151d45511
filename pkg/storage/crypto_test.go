package storage

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptSecret(t *testing.T) {
	// Test data
	secret := []byte("correct horse battery staple")
	password := "my-secure-password"

	// Encrypt
	encrypted, salt, err := EncryptSecret(secret, password)
	if err != nil {
		t.Fatalf("EncryptSecret failed: %v", err)
	}

	if len(encrypted) == 0 {
		t.Fatal("Encrypted data is empty")
	}

	if len(salt) != saltSize {
		t.Fatalf("Salt size incorrect: expected %d, got %d", saltSize, len(salt))
	}

	// Verify encrypted data is different from original
	if bytes.Equal(encrypted, secret) {
		t.Fatal("Encrypted data is the same as plaintext")
	}

	// Decrypt
	decrypted, err := DecryptSecret(encrypted, salt, password)
	if err != nil {
		t.Fatalf("DecryptSecret failed: %v", err)
	}

	// Verify decrypted data matches original
	if !bytes.Equal(decrypted, secret) {
		t.Fatal("Decrypted data does not match original")
	}
}

func TestDecryptWithWrongPassword(t *testing.T) {
	secret := []byte("ssh-password")
	correctPassword := "correct-password"
	wrongPassword := "wrong-password"

	// Encrypt with correct password
	encrypted, salt, err := EncryptSecret(secret, correctPassword)
	if err != nil {
		t.Fatalf("EncryptSecret failed: %v", err)
	}

	// Try to decrypt with wrong password
	_, err = DecryptSecret(encrypted, salt, wrongPassword)
	if err == nil {
		t.Fatal("DecryptSecret should fail with wrong password")
	}
}

func TestEncryptionDeterminism(t *testing.T) {
	secret := []byte("another-password")
	password := "test-password"

	// Encrypt twice
	encrypted1, salt1, err := EncryptSecret(secret, password)
	if err != nil {
		t.Fatalf("First encryption failed: %v", err)
	}

	encrypted2, salt2, err := EncryptSecret(secret, password)
	if err != nil {
		t.Fatalf("Second encryption failed: %v", err)
	}

	// Salts should be different (random)
	if bytes.Equal(salt1, salt2) {
		t.Fatal("Salts should be different for each encryption")
	}

	// Encrypted data should be different (due to different salts and nonces)
	if bytes.Equal(encrypted1, encrypted2) {
		t.Fatal("Encrypted data should be different for each encryption")
	}

	// Both should decrypt correctly with their respective salts
	decrypted1, err := DecryptSecret(encrypted1, salt1, password)
	if err != nil || !bytes.Equal(decrypted1, secret) {
		t.Fatal("First decryption failed")
	}

	decrypted2, err := DecryptSecret(encrypted2, salt2, password)
	if err != nil || !bytes.Equal(decrypted2, secret) {
		t.Fatal("Second decryption failed")
	}
}

func TestEncryptEmptyContent(t *testing.T) {
	_, _, err := EncryptSecret([]byte{}, "password")
	if err == nil {
		t.Fatal("EncryptSecret should fail with an empty secret")
	}
}

func TestEncryptEmptyPassword(t *testing.T) {
	_, _, err := EncryptSecret([]byte("content"), "")
	if err == nil {
		t.Fatal("EncryptSecret should fail with empty password")
	}
}

func TestDecryptInvalidSalt(t *testing.T) {
	encrypted := []byte("some-encrypted-data-with-proper-length-here")
	invalidSalt := []byte("short")

	_, err := DecryptSecret(encrypted, invalidSalt, "password")
	if err == nil {
		t.Fatal("DecryptSecret should fail with invalid salt size")
	}
}
