package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/zalando/go-keyring"
)

// account is the keyring account the session is stored under; the service
// name comes from config.
const account = "session"

// Store persists the single agent session. It is the point of truth for
// "is a user logged in".
type Store interface {
	// Get returns the stored session, or (nil, nil) when none exists.
	Get() (*Session, error)
	// Set persists the session, replacing any previous one.
	Set(*Session) error
	// Clear destroys the stored session. Clearing an empty store is not an error.
	Clear() error
}

// NewStore returns a keyring-backed store when the OS secret service is
// available, falling back to a file sealed under a device-derived key
// otherwise (headless hosts commonly expose no keyring). The tokens never
// reach disk in plaintext either way.
func NewStore(service, dataDir, deviceIdentifier string) (Store, error) {
	err := keyringAvailable(service)
	if err == nil {
		return &KeyringStore{service: service}, nil
	}
	log.Printf("session: OS keyring unavailable (%v), using sealed file store", err)
	return NewFileStore(dataDir, deviceIdentifier)
}

func keyringAvailable(service string) error {
	_, err := keyring.Get(service, account)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// KeyringStore keeps the session JSON in the OS secret store.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store writing to the OS keyring under service.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

// Get implements Store. A missing entry is not an error.
func (s *KeyringStore) Get() (*Session, error) {
	raw, err := keyring.Get(s.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: keyring get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("session: decode stored session: %w", err)
	}
	return &sess, nil
}

// Set implements Store.
func (s *KeyringStore) Set(sess *Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode session: %w", err)
	}
	if err := keyring.Set(s.service, account, string(raw)); err != nil {
		return fmt.Errorf("session: keyring set: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *KeyringStore) Clear() error {
	err := keyring.Delete(s.service, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("session: keyring delete: %w", err)
	}
	return nil
}
