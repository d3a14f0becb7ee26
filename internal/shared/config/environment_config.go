// Package config loads and validates the host's environment config
// file: the worktrees directory and the list of checked-out repository
// directories the host serves as environments.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvironmentConfig is the parsed, in-memory shape of the host's
// environments.yaml: where isolated task worktrees live, and which
// repository directories are available as environments.
type EnvironmentConfig struct {
	WorktreesDirectory string
	Environments       []Environment
}

// Environment is one configured repository, named by its own directory
// path (the reference implementation uses the directory itself as the
// environment name; there is no separate alias field).
type Environment struct {
	Name      string
	Directory string
}

// environmentConfigFile is the on-disk YAML shape. A strict yaml.Decoder
// decode (KnownFields(true)) rejects any field not listed here.
type environmentConfigFile struct {
	WorktreesDirectory string   `yaml:"worktrees_directory"`
	Environments       []string `yaml:"environments"`
}

// Load reads and strictly parses path, rejecting unknown top-level
// fields per spec.md §6.
func Load(path string) (*EnvironmentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return FromYAML(data)
}

// FromYAML parses config YAML content directly, used by Load and by
// tests that don't want to touch the filesystem.
func FromYAML(data []byte) (*EnvironmentConfig, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var file environmentConfigFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse environment config: %w", err)
	}

	cfg := &EnvironmentConfig{WorktreesDirectory: file.WorktreesDirectory}
	for _, dir := range file.Environments {
		cfg.Environments = append(cfg.Environments, Environment{Name: dir, Directory: dir})
	}
	return cfg, nil
}

// Save writes cfg back to path as YAML, in the same shape Load reads.
func (c *EnvironmentConfig) Save(path string) error {
	file := environmentConfigFile{WorktreesDirectory: c.WorktreesDirectory}
	for _, env := range c.Environments {
		file.Environments = append(file.Environments, env.Directory)
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal environment config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Find returns the environment named name, if configured.
func (c *EnvironmentConfig) Find(name string) (Environment, bool) {
	for _, env := range c.Environments {
		if env.Name == name {
			return env, true
		}
	}
	return Environment{}, false
}

// ValidateWorktreesDirectory confirms the configured worktrees
// directory exists and is a directory, per the host's startup sequence.
func (c *EnvironmentConfig) ValidateWorktreesDirectory() error {
	info, err := os.Stat(c.WorktreesDirectory)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("worktrees directory does not exist or is not a directory: %s", c.WorktreesDirectory)
	}
	return nil
}

// StateDir is the per-environment durable-state directory:
// <worktrees_directory>/.slopcoord/<sanitized-env-name>/.
func (c *EnvironmentConfig) StateDir(envName string) string {
	return filepath.Join(c.WorktreesDirectory, stateSubdir, sanitizeDirName(envName))
}

const stateSubdir = ".slopcoord"

func sanitizeDirName(name string) string {
	var out []byte
	for i := 0; i < len(name); i++ {
		ch := name[i]
		lower := ch
		if lower >= 'A' && lower <= 'Z' {
			lower += 'a' - 'A'
		}
		switch {
		case (lower >= 'a' && lower <= 'z') || (lower >= '0' && lower <= '9') || lower == '-' || lower == '_':
			out = append(out, lower)
		default:
			out = append(out, '-')
		}
	}
	compact := compactDashes(string(out))
	if compact == "" {
		return "env"
	}
	return compact
}

func compactDashes(s string) string {
	var b []byte
	lastDash := false
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			if lastDash {
				continue
			}
			lastDash = true
		} else {
			lastDash = false
		}
		b = append(b, s[i])
	}
	trimmed := string(b)
	for len(trimmed) > 0 && trimmed[0] == '-' {
		trimmed = trimmed[1:]
	}
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == '-' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed
}
