package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIdentityPersistsAcrossCalls(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	require.NoError(t, cfg.InitDataDir())

	public1, secret1, err := LoadOrCreateIdentity(&cfg)
	require.NoError(t, err)
	require.Len(t, public1, 32)

	public2, secret2, err := LoadOrCreateIdentity(&cfg)
	require.NoError(t, err)
	require.Equal(t, []byte(public1), []byte(public2))
	require.Equal(t, []byte(secret1), []byte(secret2))
}

func TestLoadIdentityFailsWithoutExistingKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()

	_, _, err := LoadIdentity(&cfg)
	require.Error(t, err)
}

func TestLoadIdentityReadsPersistedKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	require.NoError(t, cfg.InitDataDir())

	public, _, err := LoadOrCreateIdentity(&cfg)
	require.NoError(t, err)

	loadedPublic, _, err := LoadIdentity(&cfg)
	require.NoError(t, err)
	require.Equal(t, []byte(public), []byte(loadedPublic))
}

func TestKeyPathLivesInDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/whatever"
	require.Equal(t, filepath.Join("/tmp/whatever", "identity.key"), cfg.KeyPath())
}
