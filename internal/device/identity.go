// Package device manages the stable per-install device identity.
package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const identityFile = "device.json"

type identity struct {
	DeviceIdentifier string `json:"deviceIdentifier"`
}

// LoadOrCreateIdentifier returns the persisted device identifier, generating
// "<hostname>-<uuid>" and writing device.json under dataDir on first run.
// The identifier is independent of the session lifecycle and survives logout.
func LoadOrCreateIdentifier(dataDir string) (string, error) {
	path := filepath.Join(dataDir, identityFile)

	raw, err := os.ReadFile(path)
	if err == nil {
		var id identity
		if jsonErr := json.Unmarshal(raw, &id); jsonErr == nil && id.DeviceIdentifier != "" {
			return id.DeviceIdentifier, nil
		}
		// A corrupt identity file is regenerated; the backend treats the
		// replacement as a new device registration.
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("device: read identity: %w", err)
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "device"
	}
	id := identity{DeviceIdentifier: host + "-" + uuid.New().String()}

	raw, err = json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("device: encode identity: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", fmt.Errorf("device: create data dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", fmt.Errorf("device: write identity: %w", err)
	}
	return id.DeviceIdentifier, nil
}
