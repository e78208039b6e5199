package session

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealedFile = "session.enc"

// FileStore is the fallback session store for hosts without an OS secret
// service. The session JSON is sealed with XChaCha20-Poly1305 under a key
// derived from the device identifier, so the tokens are opaque at rest.
type FileStore struct {
	path string
	aead cipher.AEAD
}

// NewFileStore derives the sealing key from deviceIdentifier via
// HKDF-SHA256 and stores the sealed session under dataDir.
func NewFileStore(dataDir, deviceIdentifier string) (*FileStore, error) {
	if deviceIdentifier == "" {
		return nil, errors.New("session: device identifier required for file store")
	}
	kdf := hkdf.New(sha256.New, []byte(deviceIdentifier), []byte("hybrid-workforce-agent"), []byte("session-store"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("session: init cipher: %w", err)
	}
	return &FileStore{path: filepath.Join(dataDir, sealedFile), aead: aead}, nil
}

// Get implements Store. A missing or undecryptable file yields no session;
// an undecryptable one is reported so the caller can force a fresh login.
func (s *FileStore) Get() (*Session, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read sealed session: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return nil, errors.New("session: sealed session truncated")
	}
	nonce, box := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, fmt.Errorf("session: unseal session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return nil, fmt.Errorf("session: decode stored session: %w", err)
	}
	return &sess, nil
}

// Set implements Store.
func (s *FileStore) Set(sess *Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	plain, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode session: %w", err)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("session: nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plain, nil)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: create data dir: %w", err)
	}
	if err := os.WriteFile(s.path, sealed, 0o600); err != nil {
		return fmt.Errorf("session: write sealed session: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: remove sealed session: %w", err)
	}
	return nil
}
