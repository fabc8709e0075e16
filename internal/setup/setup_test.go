package setup

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfig_Missing(t *testing.T) {
	cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.MCPServers)
}

func TestLoadClientConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := LoadClientConfig(path)
	assert.Error(t, err)
}

func TestRegister_PreservesOtherEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	existing := `{"theme":"dark","mcpServers":{"other":{"command":"/bin/other"}}}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0600))

	dataDir := filepath.Join(dir, "data")
	got, err := Register(Options{
		ConfigPath: path,
		BinaryPath: "/usr/local/bin/mcp-server",
		DataDir:    dataDir,
		Env:        map[string]string{"OPENAI_API_KEY": "sk-test", "NCBI_API_KEY": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.DirExists(t, dataDir)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"dark"`, string(raw["theme"]))

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	require.Contains(t, cfg.MCPServers, "other")
	entry := cfg.MCPServers[ServerName]
	assert.Equal(t, "/usr/local/bin/mcp-server", entry.Command)
	assert.Equal(t, dataDir, entry.Env["SYMPTOM_DATA_DIR"])
	assert.Equal(t, "sk-test", entry.Env["OPENAI_API_KEY"])
	assert.NotContains(t, entry.Env, "NCBI_API_KEY")
}

func TestRegister_RequiresBinary(t *testing.T) {
	_, err := Register(Options{ConfigPath: filepath.Join(t.TempDir(), "c.json")})
	assert.ErrorContains(t, err, "binary")
}

func TestStatusAndUnregister(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	binary := filepath.Join(dir, "mcp-server")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))

	st, err := GetStatus(path)
	require.NoError(t, err)
	assert.False(t, st.Registered)

	_, err = Register(Options{ConfigPath: path, BinaryPath: binary, DataDir: filepath.Join(dir, "data")})
	require.NoError(t, err)

	st, err = GetStatus(path)
	require.NoError(t, err)
	assert.True(t, st.Registered)
	assert.True(t, st.BinaryPresent)
	assert.True(t, st.DataDirExists)
	assert.Equal(t, filepath.Join(dir, "data"), st.DataDir)

	removed, err := Unregister(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = Unregister(path)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCLI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	var out bytes.Buffer
	cli := NewCLI(&out)

	require.NoError(t, cli.Run(nil))
	assert.Contains(t, out.String(), "Usage:")

	out.Reset()
	require.NoError(t, cli.Run([]string{"install", "--binary", "/opt/mcp-server", "--data-dir", filepath.Join(dir, "data"), "--config", path}))
	assert.Contains(t, out.String(), "Registered symptom-assessment")

	out.Reset()
	require.NoError(t, cli.Run([]string{"status", "--config", path}))
	assert.Contains(t, out.String(), "Registered:  yes")
	assert.Contains(t, out.String(), "/opt/mcp-server (missing)")

	out.Reset()
	require.NoError(t, cli.Run([]string{"remove", "--config", path}))
	assert.Contains(t, out.String(), "Removed")

	assert.Error(t, cli.Run([]string{"explode"}))
	assert.Error(t, cli.Run([]string{"install", "--bogus"}))
}
