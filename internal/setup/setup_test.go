package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBinary(t *testing.T, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp-server")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), mode))
	return path
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.MCPServers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestInstall_KeepsOtherServersAndKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Claude", "claude_desktop_config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	existing := `{"theme": "dark", "mcpServers": {"other": {"command": "/bin/other"}}}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o600))

	binary := fakeBinary(t, 0o755)
	entry, err := Install(Options{ConfigPath: path, BinaryPath: binary, DataDir: "/data/clinval", Transport: "stdio"})
	require.NoError(t, err)
	assert.Equal(t, binary, entry.Command)
	assert.Equal(t, map[string]string{DataDirEnv: "/data/clinval"}, entry.Env)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"dark"`, string(raw["theme"]))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.MCPServers, "other")
	assert.Contains(t, cfg.MCPServers, ServerName)
}

func TestInstall_HTTPTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	entry, err := Install(Options{ConfigPath: path, BinaryPath: fakeBinary(t, 0o755), Transport: "http"})
	require.NoError(t, err)
	assert.Equal(t, "http", entry.Env["CLINVAL_TRANSPORT"])
}

func TestGetStatus(t *testing.T) {
	t.Run("not registered", func(t *testing.T) {
		status, err := GetStatus(filepath.Join(t.TempDir(), "config.json"))
		require.NoError(t, err)
		assert.False(t, status.Registered)
		assert.Contains(t, status.Issues, "validator is not registered")
	})

	t.Run("registered", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		binary := fakeBinary(t, 0o755)
		_, err := Install(Options{ConfigPath: path, BinaryPath: binary, DataDir: "/data"})
		require.NoError(t, err)

		status, err := GetStatus(path)
		require.NoError(t, err)
		assert.True(t, status.Registered)
		assert.True(t, status.BinaryExists)
		assert.Equal(t, "/data", status.DataDir)
		assert.Empty(t, status.Issues)
	})

	t.Run("binary missing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		_, err := Install(Options{ConfigPath: path, BinaryPath: filepath.Join(t.TempDir(), "gone")})
		require.NoError(t, err)

		status, err := GetStatus(path)
		require.NoError(t, err)
		assert.False(t, status.BinaryExists)
		require.Len(t, status.Issues, 1)
		assert.Contains(t, status.Issues[0], "server binary not found")
	})

	t.Run("binary not executable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		_, err := Install(Options{ConfigPath: path, BinaryPath: fakeBinary(t, 0o644)})
		require.NoError(t, err)

		status, err := GetStatus(path)
		require.NoError(t, err)
		assert.True(t, status.BinaryExists)
		assert.Contains(t, status.Issues[0], "not executable")
	})
}

func TestUninstall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := Install(Options{ConfigPath: path, BinaryPath: fakeBinary(t, 0o755)})
	require.NoError(t, err)

	removed, err := Uninstall(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = Uninstall(path)
	require.NoError(t, err)
	assert.False(t, removed)
}
