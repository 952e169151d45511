package backup

import (
	"archive/zip"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
)

// ErrWrongPassword is returned when an envelope does not open.
var ErrWrongPassword = errors.New("decryption failed: wrong password or corrupted data")

// FormatVersion is written into every envelope.
const FormatVersion = "2"

// Envelope is the sealed backup file. Byte fields are base64 in JSON.
type Envelope struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Salt      []byte    `json:"salt"`
	Nonce     []byte    `json:"nonce"`
	Data      []byte    `json:"data"`
}

// Argon2id parameters (secure, memory-hard)
const (
	argon2Time    = 3         // 3 iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 32
)

// DeriveKey derives a 256-bit key from password using Argon2id
func DeriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts data with AES-256-GCM under a key derived from password.
func Seal(data []byte, password string) (*Envelope, error) {
	if password == "" {
		return nil, errors.New("backup password is required")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return &Envelope{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Salt:      salt,
		Nonce:     nonce,
		Data:      gcm.Seal(nil, nonce, data, nil),
	}, nil
}

// Open decrypts an envelope.
func Open(env *Envelope, password string) ([]byte, error) {
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported backup version %q", env.Version)
	}
	gcm, err := newGCM(password, env.Salt)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassword
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.Data, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

// skipped reports whether a data directory file stays out of archives.
func skipped(rel string) bool {
	base := filepath.Base(rel)
	return strings.Contains(base, ".log") || strings.HasSuffix(base, ".corrupted") || strings.Contains(base, ".tmp-")
}

// ArchiveDir zips the regular files under dir into w. Log files are left
// out.
func ArchiveDir(w io.Writer, dir string) (files int, err error) {
	archive := zip.NewWriter(w)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if skipped(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := archive.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if _, err := io.Copy(writer, file); err != nil {
			return err
		}
		files++
		return nil
	})
	if err := archive.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		return files, fmt.Errorf("failed to archive %s: %w", dir, walkErr)
	}
	return files, nil
}

// ExtractArchive unpacks a zip produced by ArchiveDir into dest,
// overwriting files of the same name.
func ExtractArchive(data []byte, dest string) (files int, err error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid archive: %w", err)
	}
	root := filepath.Clean(dest)
	for _, f := range r.File {
		path := filepath.Join(root, filepath.FromSlash(f.Name))
		// Guard against Zip Slip
		if !strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return files, fmt.Errorf("illegal file path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o700); err != nil {
				return files, err
			}
			continue
		}
		if err := extractFile(f, path); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func extractFile(f *zip.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// Pack archives dir and seals it with password, returning the envelope
// JSON.
func Pack(dir, password string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := ArchiveDir(&buf, dir); err != nil {
		return nil, err
	}
	env, err := Seal(buf.Bytes(), password)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup: %w", err)
	}
	return out, nil
}

// Unpack opens envelope JSON with password and extracts it into dir.
func Unpack(data []byte, password, dir string) (files int, err error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("invalid backup format: %w", err)
	}
	plain, err := Open(&env, password)
	if err != nil {
		return 0, err
	}
	return ExtractArchive(plain, dir)
}
