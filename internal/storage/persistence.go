package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bhandras/delight-chat/internal/crypto"
)

var (
	// ErrNoToken is returned when no access token has been saved.
	ErrNoToken = errors.New("no access token")

	// ErrInvalidChannelID is returned for ids that cannot name a key file.
	ErrInvalidChannelID = errors.New("invalid channel id")
)

var channelIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// SaveToken writes the access token with restrictive permissions.
func SaveToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// LoadToken reads the access token saved by SaveToken.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// KeyPath returns the key file of channelID inside dir.
func KeyPath(dir, channelID string) (string, error) {
	if !channelIDPattern.MatchString(channelID) || channelID == "." || channelID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannelID, channelID)
	}
	return filepath.Join(dir, channelID+".key"), nil
}

// SaveChannelKey stores a channel encryption key as base64.
func SaveChannelKey(dir, channelID string, key *[32]byte) error {
	path, err := KeyPath(dir, channelID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create key dir: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key[:])
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// LoadChannelKey reads a key saved by SaveChannelKey.
func LoadChannelKey(dir, channelID string) (*[32]byte, error) {
	path, err := KeyPath(dir, channelID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	return crypto.ParseKey(strings.TrimSpace(string(data)))
}

// GetOrCreateChannelKey loads the channel key, generating and saving one when
// none exists yet.
func GetOrCreateChannelKey(dir, channelID string) (*[32]byte, error) {
	key, err := LoadChannelKey(dir, channelID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err = crypto.NewKey()
	if err != nil {
		return nil, err
	}
	if err := SaveChannelKey(dir, channelID, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GetOrCreateDeviceID loads or generates a stable device id.
func GetOrCreateDeviceID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create device id dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id), 0600); err != nil {
		return "", fmt.Errorf("failed to save device ID: %w", err)
	}
	return id, nil
}
