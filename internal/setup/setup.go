// Package setup registers the MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ServerName is the key under which the server is registered
const ServerName = "symptom-assessment"

// ClientConfig represents the desktop client configuration file structure.
// Unknown top-level keys are preserved on save.
type ClientConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	extra      map[string]json.RawMessage
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the server.
type Options struct {
	ConfigPath string // Client config file; empty selects the platform default
	BinaryPath string
	DataDir    string
	Env        map[string]string // Extra variables such as OPENAI_API_KEY
}

// Status represents the current registration status.
type Status struct {
	ConfigPath    string
	Registered    bool
	BinaryPath    string
	BinaryPresent bool
	DataDir       string
	DataDirExists bool
}

// DefaultClientConfigPath returns the desktop client's config file for this platform.
func DefaultClientConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// DefaultDataDir mirrors the lite configuration default.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".symptom-assessment")
}

// LoadClientConfig reads the config file. A missing file yields an empty config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{
		MCPServers: make(map[string]MCPServerConfig),
		extra:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]MCPServerConfig)
	}
	return cfg, nil
}

// SaveClientConfig writes the config file, creating its directory.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(cfg.extra)+1)
	for k, v := range cfg.extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the server entry and creates the data directory.
func Register(opts Options) (string, error) {
	path, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return "", err
	}
	if opts.BinaryPath == "" {
		return "", fmt.Errorf("server binary path is required")
	}
	if opts.DataDir == "" {
		opts.DataDir = DefaultDataDir()
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	env := map[string]string{"SYMPTOM_DATA_DIR": opts.DataDir}
	for k, v := range opts.Env {
		if v != "" {
			env[k] = v
		}
	}
	cfg.MCPServers[ServerName] = MCPServerConfig{Command: opts.BinaryPath, Env: env}

	if err := SaveClientConfig(path, cfg); err != nil {
		return "", err
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return path, nil
}

// Unregister removes the server entry. It reports whether an entry existed.
func Unregister(configPath string) (bool, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return false, err
	}
	cfg, err := LoadClientConfig(path)
	if err != nil {
		return false, err
	}
	if _, ok := cfg.MCPServers[ServerName]; !ok {
		return false, nil
	}
	delete(cfg.MCPServers, ServerName)
	return true, SaveClientConfig(path, cfg)
}

// GetStatus inspects the registration and the paths it points at.
func GetStatus(configPath string) (*Status, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadClientConfig(path)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: path, DataDir: DefaultDataDir()}
	if entry, ok := cfg.MCPServers[ServerName]; ok {
		status.Registered = true
		status.BinaryPath = entry.Command
		_, err := os.Stat(entry.Command)
		status.BinaryPresent = err == nil
		if dir := entry.Env["SYMPTOM_DATA_DIR"]; dir != "" {
			status.DataDir = dir
		}
	}
	if info, err := os.Stat(status.DataDir); err == nil && info.IsDir() {
		status.DataDirExists = true
	}
	return status, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return DefaultClientConfigPath()
}
