// Package setup registers the stand-alone MCP server with desktop MCP clients that read
// a claude_desktop_config.json style file.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerName is the key of the validator in the client's mcpServers map.
const ServerName = "clinical-fact-validator"

// DataDirEnv is the environment variable the MCP server reads its data directory from.
const DataDirEnv = "CLINVAL_DATA_DIR"

const binaryName = "mcp-server"

// ClientConfig is the client configuration file. Unknown top-level keys are kept.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
	extra      map[string]json.RawMessage
}

// ServerEntry launches one MCP server.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options controls Install.
type Options struct {
	ConfigPath string // default: DefaultConfigPath()
	BinaryPath string // default: searched on PATH and in common locations
	DataDir    string
	Transport  string // stdio unless set
}

// Status describes the current registration.
type Status struct {
	ConfigPath   string   `json:"config_path"`
	Registered   bool     `json:"registered"`
	BinaryPath   string   `json:"binary_path,omitempty"`
	BinaryExists bool     `json:"binary_exists"`
	DataDir      string   `json:"data_dir,omitempty"`
	Issues       []string `json:"issues,omitempty"`
}

// DefaultConfigPath returns the per-user client configuration path of this platform.
func DefaultConfigPath() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
	return filepath.Join(dir, "claude_desktop_config.json"), nil
}

// LoadConfig reads the client configuration. A missing file is an empty configuration.
func LoadConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{MCPServers: map[string]ServerEntry{}, extra: map[string]json.RawMessage{}}

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
		cfg.MCPServers = map[string]ServerEntry{}
	}
	return cfg, nil
}

// SaveConfig writes the client configuration, creating its directory.
func SaveConfig(path string, cfg *ClientConfig) error {
	out := make(map[string]any, len(cfg.extra)+1)
	for k, v := range cfg.extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Install adds or replaces the validator entry and returns the written entry.
func Install(opts Options) (*ServerEntry, error) {
	path, err := configPath(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	binary := opts.BinaryPath
	if binary == "" {
		if binary, err = FindBinary(); err != nil {
			return nil, err
		}
	}
	if abs, err := filepath.Abs(binary); err == nil {
		binary = abs
	}

	entry := ServerEntry{Command: binary, Env: map[string]string{}}
	if opts.DataDir != "" {
		entry.Env[DataDirEnv] = opts.DataDir
	}
	if opts.Transport != "" && opts.Transport != "stdio" {
		entry.Env["CLINVAL_TRANSPORT"] = opts.Transport
	}
	if len(entry.Env) == 0 {
		entry.Env = nil
	}

	cfg.MCPServers[ServerName] = entry
	if err := SaveConfig(path, cfg); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Uninstall removes the validator entry. It reports whether an entry was present.
func Uninstall(path string) (bool, error) {
	path, err := configPath(path)
	if err != nil {
		return false, err
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return false, err
	}
	if _, ok := cfg.MCPServers[ServerName]; !ok {
		return false, nil
	}
	delete(cfg.MCPServers, ServerName)
	return true, SaveConfig(path, cfg)
}

// GetStatus inspects the registration in the configuration at path.
func GetStatus(path string) (*Status, error) {
	path, err := configPath(path)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: path}
	entry, ok := cfg.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, "validator is not registered")
		return status, nil
	}

	status.Registered = true
	status.BinaryPath = entry.Command
	status.DataDir = entry.Env[DataDirEnv]

	info, err := os.Stat(entry.Command)
	switch {
	case err != nil:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
	case info.Mode()&0o111 == 0:
		status.BinaryExists = true
		status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
	default:
		status.BinaryExists = true
	}
	return status, nil
}

// FindBinary looks for the MCP server binary on PATH and in common build locations.
func FindBinary() (string, error) {
	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	for _, loc := range []string{
		"./" + binaryName,
		"./bin/" + binaryName,
		filepath.Join(home, "go", "bin", binaryName),
		filepath.Join(home, ".local", "bin", binaryName),
		"/usr/local/bin/" + binaryName,
	} {
		if _, err := os.Stat(loc); err == nil {
			return loc, nil
		}
	}
	return "", fmt.Errorf("binary %q not found on PATH or in common locations", binaryName)
}

func configPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return DefaultConfigPath()
}
