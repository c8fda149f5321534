// Package config reads and writes the project config (.workmesh.toml)
// and the global config ($WORKMESH_HOME/config.toml). Project values
// override global values, which override built-in defaults.
package config

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"workmesh/internal/paths"
	"workmesh/internal/wmerr"
)

// Config mirrors the TOML config keys. Pointer fields distinguish
// "unset" from an explicit false.
type Config struct {
	RootDir            string            `toml:"root_dir,omitempty"`
	DoNotMigrate       *bool             `toml:"do_not_migrate,omitempty"`
	WorktreesDefault   *bool             `toml:"worktrees_default,omitempty"`
	AutoSessionDefault *bool             `toml:"auto_session_default,omitempty"`
	Initiatives        []string          `toml:"initiatives,omitempty"`
	BranchInitiatives  map[string]string `toml:"branch_initiatives,omitempty"`
}

// Load reads the project config. A missing file yields a zero Config
// and no error; a malformed file is a ConfigError.
func Load(repoRoot string) (*Config, error) {
	return loadPath(paths.ConfigPath(repoRoot))
}

// LoadGlobal reads the global config under home.
func LoadGlobal(home string) (*Config, error) {
	return loadPath(filepath.Join(home, "config.toml"))
}

func loadPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, wmerr.IO(err, "reading %s", path)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, wmerr.Wrap(wmerr.ConfigError, err, "parsing %s", path).WithPath(path, 0)
	}
	return &cfg, nil
}

// Write persists the project config to .workmesh.toml.
func Write(repoRoot string, cfg *Config) error {
	path := filepath.Join(repoRoot, ".workmesh.toml")
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return wmerr.Wrap(wmerr.ConfigError, err, "serializing config")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return wmerr.IO(err, "writing %s", path)
	}
	return nil
}

// IsEmpty reports whether the config carries no meaningful values, so
// callers can delete the file instead of writing an empty one.
func (c *Config) IsEmpty() bool {
	return c.RootDir == "" &&
		c.DoNotMigrate == nil &&
		c.WorktreesDefault == nil &&
		c.AutoSessionDefault == nil &&
		len(c.Initiatives) == 0 &&
		len(c.BranchInitiatives) == 0
}

// ResolveWorktreesDefault returns the effective worktrees default and
// its source ("project", "global", or "default").
func ResolveWorktreesDefault(repoRoot, home string) (bool, string) {
	if cfg, err := Load(repoRoot); err == nil && cfg.WorktreesDefault != nil {
		return *cfg.WorktreesDefault, "project"
	}
	if cfg, err := LoadGlobal(home); err == nil && cfg.WorktreesDefault != nil {
		return *cfg.WorktreesDefault, "global"
	}
	return true, "default"
}

// ResolveAutoSession resolves the auto-session setting from the
// environment (WORKMESH_AUTO_SESSION), project config, then global
// config. When none decides, the default is on outside CI.
func ResolveAutoSession(repoRoot, home string) bool {
	switch os.Getenv("WORKMESH_AUTO_SESSION") {
	case "1":
		return true
	case "0":
		return false
	}
	if cfg, err := Load(repoRoot); err == nil && cfg.AutoSessionDefault != nil {
		return *cfg.AutoSessionDefault
	}
	if cfg, err := LoadGlobal(home); err == nil && cfg.AutoSessionDefault != nil {
		return *cfg.AutoSessionDefault
	}
	return os.Getenv("CI") == ""
}

// UpdateDoNotMigrate sets or clears do_not_migrate. Clearing the flag
// deletes the config file when nothing else remains in it.
func UpdateDoNotMigrate(repoRoot string, value bool) error {
	cfg, err := Load(repoRoot)
	if err != nil {
		return err
	}
	if !value {
		cfg.DoNotMigrate = nil
		if cfg.IsEmpty() {
			path := filepath.Join(repoRoot, ".workmesh.toml")
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return wmerr.IO(err, "removing %s", path)
			}
			return nil
		}
		v := false
		cfg.DoNotMigrate = &v
		return Write(repoRoot, cfg)
	}
	v := true
	cfg.DoNotMigrate = &v
	return Write(repoRoot, cfg)
}
