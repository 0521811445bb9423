package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ErrDuplicateConfigFiles is returned when both .json and .jsonc config files exist.
var ErrDuplicateConfigFiles = errors.New("duplicate config files")

// Config holds the application configuration: which directories each
// persistent storage root carries, and which ephemeral root they are
// prepared for.
type Config struct {
	// Root is the ephemeral root the directories are bound into.
	// Defaults to "/".
	Root string `json:"root,omitempty"`

	// Roots maps a persistent storage path to the entries it persists.
	Roots map[string]StorageRoot `json:"roots,omitempty"`

	// Resolved (not serialized)
	EffectiveCwd      string            `json:"-"`
	LoadedConfigFiles map[string]string `json:"-"`
}

// StorageRoot declares what one persistent storage path persists.
type StorageRoot struct {
	Directories []DirectoryEntry     `json:"directories,omitempty"`
	Files       []FileEntry          `json:"files,omitempty"`
	Users       map[string]UserEntry `json:"users,omitempty"`
}

// UserEntry declares per-user persisted entries, resolved against the
// user's home directory.
type UserEntry struct {
	Home        string           `json:"home"`
	Directories []DirectoryEntry `json:"directories,omitempty"`
	Files       []FileEntry      `json:"files,omitempty"`
}

// DirectoryEntry is one declared directory. In JSON it is either a plain
// path string or an object with optional attributes:
//
//	"/var/lib/iwd"
//	{ "directory": "/var/log", "user": "root", "group": "root", "mode": "0755" }
type DirectoryEntry struct {
	Directory string `json:"directory"`
	User      string `json:"user,omitempty"`
	Group     string `json:"group,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// UnmarshalJSON accepts both the string shorthand and the object form.
func (e *DirectoryEntry) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		*e = DirectoryEntry{Directory: path}

		return nil
	}

	type plain DirectoryEntry

	var full plain

	err := json.Unmarshal(data, &full)
	if err != nil {
		return fmt.Errorf("directory entry must be a path string or an object: %w", err)
	}

	*e = DirectoryEntry(full)

	return nil
}

// FileEntry is one declared file. Only its parent directory matters to
// this tool; file content persistence is handled elsewhere.
type FileEntry struct {
	File  string `json:"file"`
	User  string `json:"user,omitempty"`
	Group string `json:"group,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// UnmarshalJSON accepts both the string shorthand and the object form.
func (e *FileEntry) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		*e = FileEntry{File: path}

		return nil
	}

	type plain FileEntry

	var full plain

	err := json.Unmarshal(data, &full)
	if err != nil {
		return fmt.Errorf("file entry must be a path string or an object: %w", err)
	}

	*e = FileEntry(full)

	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Root: "/"}
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // --config flag value
	Env             map[string]string // Environment variables (for XDG_CONFIG_HOME)
}

// LoadConfig loads configuration with the following precedence (later overrides earlier):
//  1. Built-in defaults
//  2. Global config: $XDG_CONFIG_HOME/bindprep/config.json or config.jsonc
//     (defaults to ~/.config/bindprep/) - always loaded if exists
//  3. Project config OR --config path (not both):
//     - Without --config: .bindprep.json or .bindprep.jsonc in workDir
//     - With --config: uses that path instead of project config
//
// Both .json and .jsonc files support comments via tailscale/hujson.
// If both .json and .jsonc exist at the same location, it's an error.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	if !filepath.IsAbs(workDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}

		workDir = filepath.Join(cwd, workDir)
	}

	cfg := DefaultConfig()
	cfg.LoadedConfigFiles = map[string]string{}

	// Load global config (always loaded if exists)
	globalConfigBasePath, err := getUserConfigBasePath(input.Env)
	if err != nil {
		return Config{}, err
	}

	if globalConfigBasePath != "" {
		globalConfigPath, findErr := findConfigFile(globalConfigBasePath)
		if findErr == nil {
			globalCfg, loadErr := loadConfigFile(globalConfigPath)
			if loadErr != nil {
				return Config{}, loadErr
			}

			cfg = mergeConfigs(&cfg, &globalCfg)
			cfg.LoadedConfigFiles["global"] = globalConfigPath
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return Config{}, findErr
		}
	}

	// Load project config OR --config path (not both)
	if input.ConfigPath != "" {
		configPath := input.ConfigPath
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(workDir, configPath)
		}

		explicitCfg, err := loadConfigFile(configPath)
		if err != nil {
			return Config{}, err
		}

		cfg = mergeConfigs(&cfg, &explicitCfg)
		cfg.LoadedConfigFiles["explicit"] = configPath
	} else {
		projectConfigBasePath := filepath.Join(workDir, ".bindprep")

		projectConfigPath, findErr := findConfigFile(projectConfigBasePath)
		if findErr == nil {
			projectCfg, loadErr := loadConfigFile(projectConfigPath)
			if loadErr != nil {
				return Config{}, loadErr
			}

			cfg = mergeConfigs(&cfg, &projectCfg)
			cfg.LoadedConfigFiles["project"] = projectConfigPath
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return Config{}, findErr
		}
	}

	cfg.EffectiveCwd = workDir

	return cfg, nil
}

// findConfigFile checks for both .json and .jsonc extensions at basePath
// and returns an error if both exist.
func findConfigFile(basePath string) (string, error) {
	jsonPath := basePath + ".json"
	jsoncPath := basePath + ".jsonc"

	jsonExists, jsonErr := fileExists(jsonPath)
	jsoncExists, jsoncErr := fileExists(jsoncPath)

	if jsonErr != nil {
		return "", fmt.Errorf("checking %s: %w", jsonPath, jsonErr)
	}

	if jsoncErr != nil {
		return "", fmt.Errorf("checking %s: %w", jsoncPath, jsoncErr)
	}

	if jsonExists && jsoncExists {
		return "", fmt.Errorf("%w: both %s and %s exist; remove one", ErrDuplicateConfigFiles, jsonPath, jsoncPath)
	}

	if jsonExists {
		return jsonPath, nil
	}

	if jsoncExists {
		return jsoncPath, nil
	}

	return "", os.ErrNotExist
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("checking file %s: %w", path, err)
	}

	if info.IsDir() {
		return false, nil
	}

	return true, nil
}

// loadConfigFile loads and parses a JSON/JSONC config file.
func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	// Standardize JSONC to JSON (handles comments in both .json and .jsonc)
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// mergeConfigs merges override into base, with override taking precedence.
// Storage roots merge per path; entry lists within a root are replaced
// wholesale, not appended, so a project config fully owns the roots it
// mentions.
func mergeConfigs(base, override *Config) Config {
	result := *base

	if override.Root != "" {
		result.Root = override.Root
	}

	if len(override.Roots) > 0 {
		if result.Roots == nil {
			result.Roots = make(map[string]StorageRoot, len(override.Roots))
		}

		for path, root := range override.Roots {
			result.Roots[path] = root
		}
	}

	return result
}

// getUserConfigBasePath returns the user config base path (without extension).
// Uses env map for XDG_CONFIG_HOME instead of os.Getenv().
func getUserConfigBasePath(env map[string]string) (string, error) {
	if xdg, ok := env["XDG_CONFIG_HOME"]; ok && xdg != "" {
		return filepath.Join(xdg, "bindprep", "config"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, ".config", "bindprep", "config"), nil
}
