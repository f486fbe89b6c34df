package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "access.token")

	_, err := LoadToken(path)
	require.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, SaveToken(path, "  header.payload.sig\n"))
	token, err := LoadToken(path)
	require.NoError(t, err)
	require.Equal(t, "header.payload.sig", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("\n"), 0600))
	_, err = LoadToken(path)
	require.ErrorIs(t, err, ErrNoToken)
}

func TestChannelKeyIsStable(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "keys")

	first, err := GetOrCreateChannelKey(dir, "general")
	require.NoError(t, err)
	second, err := GetOrCreateChannelKey(dir, "general")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := GetOrCreateChannelKey(dir, "random")
	require.NoError(t, err)
	require.NotEqual(t, first, other)

	loaded, err := LoadChannelKey(dir, "general")
	require.NoError(t, err)
	require.Equal(t, first, loaded)
}

func TestChannelKeyRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := KeyPath(dir, "general")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("c2hvcnQ="), 0600))

	_, err = GetOrCreateChannelKey(dir, "general")
	require.Error(t, err)
}

func TestKeyPathRejectsTraversal(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "..", "../etc/passwd", "a/b", "with space"} {
		_, err := KeyPath("/keys", id)
		require.ErrorIs(t, err, ErrInvalidChannelID, id)
	}

	path, err := KeyPath("/keys", "team:general")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/keys", "team:general.key"), path)
}

func TestDeviceIDIsStable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "device.id")
	id, err := GetOrCreateDeviceID(path)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	again, err := GetOrCreateDeviceID(path)
	require.NoError(t, err)
	require.Equal(t, id, again)
}
