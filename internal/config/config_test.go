package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	// Missing file falls back to defaults
	assert.Equal(t, "snapforged", cfg.Client.Name)
	assert.Equal(t, 1000, cfg.Playback.BufferMs)
	assert.Equal(t, 400, cfg.Engine.StopTimeoutMs)
	assert.Equal(t, 5000, cfg.Engine.ZombieGraceMs)
	assert.Equal(t, "127.0.0.1:1780", cfg.Control.ListenAddr)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Client.Name = "kitchen"
	cfg.Playback.LatencyMs = 30
	cfg.AddServer(Server{Name: "office", Host: "10.0.0.5", Port: 1704})

	require.NoError(t, SaveConfig(path, cfg))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", got.Client.Name)
	assert.Equal(t, 30, got.Playback.LatencyMs)
	require.Len(t, got.Servers, 1)
	assert.Equal(t, "office", got.Servers[0].Name)
	assert.Equal(t, "office", got.PreferredServer)
}

func TestLoadConfigPartialFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  name: bedroom\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// Unspecified fields keep their defaults
	assert.Equal(t, "bedroom", cfg.Client.Name)
	assert.Equal(t, 400, cfg.Engine.StopTimeoutMs)
	assert.Equal(t, 1000, cfg.Playback.BufferMs)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestAddServerDefaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.AddServer(Server{Name: "first", Host: "a.local"})
	cfg.AddServer(Server{Name: "second", Host: "b.local", Port: 1708})

	assert.Equal(t, 1704, cfg.Servers[0].Port)
	assert.Equal(t, 1708, cfg.Servers[1].Port)
	assert.Equal(t, "first", cfg.PreferredServer)

	got := cfg.GetPreferredServer()
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Name)
}

func TestPreferredServerSelection(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Nil(t, cfg.GetPreferredServer())

	cfg.AddServer(Server{Name: "a", Host: "a.local"})
	cfg.AddServer(Server{Name: "b", Host: "b.local"})

	require.NoError(t, cfg.SetPreferredServer("b"))
	assert.Equal(t, "b", cfg.GetPreferredServer().Name)
	assert.Error(t, cfg.SetPreferredServer("missing"))
}

func TestRemoveServer(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.AddServer(Server{Name: "a", Host: "a.local"})
	cfg.AddServer(Server{Name: "b", Host: "b.local"})

	require.NoError(t, cfg.RemoveServer("a"))
	assert.Len(t, cfg.Servers, 1)
	// Removing the preferred server clears the preference
	assert.Empty(t, cfg.PreferredServer)

	assert.Error(t, cfg.RemoveServer("a"))
}
