// Package vault persists device registrations on disk.
//
// The primary file is encrypted with a key derived from the account password (Argon2id) and sealed with
// AES-256-GCM. A second, plaintext snapshot can be written alongside it for tools that cannot decrypt.
package vault

import (
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

	"github.com/desertthunder/abx/internal/retailer"
	"github.com/desertthunder/abx/internal/shared"
	"golang.org/x/crypto/argon2"
)

const (
	envelopeVersion = 1
	kdfArgon2id     = "argon2id"
	saltLen         = 16
	keyLen          = 32
)

// KDFParams are the Argon2id cost parameters recorded in every envelope.
type KDFParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

// DefaultKDFParams are the OWASP recommended Argon2id settings: 1 pass, 64 MiB, 4 lanes.
var DefaultKDFParams = KDFParams{Time: 1, Memory: 64 * 1024, Threads: 4}

// envelope is the on-disk format of the encrypted credential file.
type envelope struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	KDFParams
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileStore reads and writes a [retailer.DeviceRegistration] to the local filesystem.
type FileStore struct {
	path         string
	snapshotPath string
	params       KDFParams
}

// Option configures a [FileStore].
type Option func(*FileStore)

// WithKDFParams overrides the Argon2id cost used for newly written files.
func WithKDFParams(p KDFParams) Option {
	return func(s *FileStore) { s.params = p }
}

// NewFileStore creates a store for the encrypted file at path. snapshotPath may be empty to skip the snapshot.
func NewFileStore(path, snapshotPath string, opts ...Option) *FileStore {
	s := &FileStore{path: path, snapshotPath: snapshotPath, params: DefaultKDFParams}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the location of the encrypted file.
func (s *FileStore) Path() string { return s.path }

// SnapshotPath returns the location of the plaintext snapshot, or "" when disabled.
func (s *FileStore) SnapshotPath() string { return s.snapshotPath }

// Load reads and decrypts the registration with password.
//
// Returns [shared.ErrNoCredentials] when the file does not exist and [shared.ErrDecrypt] when the password is
// wrong or the file is corrupt.
func (s *FileStore) Load(password string) (*retailer.DeviceRegistration, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoCredentials, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", shared.ErrDecrypt, err)
	}
	if env.Version != envelopeVersion || env.KDF != kdfArgon2id {
		return nil, fmt.Errorf("%w: unsupported envelope version %d (%s)", shared.ErrDecrypt, env.Version, env.KDF)
	}

	key := deriveKey(password, env.Salt, env.KDFParams)
	plaintext, err := open(key, env.Nonce, env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrDecrypt, err)
	}

	var reg retailer.DeviceRegistration
	if err := json.Unmarshal(plaintext, &reg); err != nil {
		return nil, fmt.Errorf("%w: malformed registration: %v", shared.ErrDecrypt, err)
	}

	return &reg, nil
}

// Save encrypts reg with password and writes it atomically with mode 0600.
func (s *FileStore) Save(reg *retailer.DeviceRegistration, password string) error {
	plaintext, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(password, salt, s.params)
	nonce, ciphertext, err := seal(key, plaintext)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(envelope{
		Version:    envelopeVersion,
		KDF:        kdfArgon2id,
		KDFParams:  s.params,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return writeFile(s.path, data)
}

// SaveSnapshot writes reg as plain JSON next to the encrypted file. It is a no-op when the snapshot is disabled.
func (s *FileStore) SaveSnapshot(reg *retailer.DeviceRegistration) error {
	if s.snapshotPath == "" {
		return nil
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return writeFile(s.snapshotPath, data)
}

func deriveKey(password string, salt []byte, p KDFParams) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, keyLen)
}

func seal(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	return nonce, gcm.Seal(nil, nonce, plaintext, nil), nil
}

func open(key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	// A tag mismatch here almost always means a wrong password.
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// writeFile replaces path through a temp file in the same directory so readers never see a partial write.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}
