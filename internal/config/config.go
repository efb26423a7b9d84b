// Package config handles runtime configuration and the .weave directory
// structure. Every project that uses Weave gets a .weave/ folder created in
// its root, holding the graph store, document content, engine state, and
// logs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WeaveDir is the name of the directory created in each project.
const WeaveDir = ".weave"

const defaultProjectConfigYAML = `# weave project configuration
version: 1

# Decision bridge: lets an external reasoning process submit observations and
# plan decisions over HTTP. Disable if the TUI is the only operator.
bridge:
  enabled: true
  host: 127.0.0.1
  port: 8877

# Relationship alias table resolved by the fuzzy matcher before the registry
# is consulted. Values must be one of the five canonical forward labels.
relations:
  aliases: relations.yaml
`

// BridgeConfig captures decision bridge preferences.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// RelationsConfig points at the alias table used by the nearest-match
// resolver.
type RelationsConfig struct {
	Aliases string `yaml:"aliases,omitempty"`
}

// ProjectConfig models .weave/config.yaml.
type ProjectConfig struct {
	Version   int             `yaml:"version"`
	Bridge    BridgeConfig    `yaml:"bridge,omitempty"`
	Relations RelationsConfig `yaml:"relations,omitempty"`
}

// Config holds the runtime configuration for Weave.
type Config struct {
	// ProjectDir is the directory where the user ran `weave` from.
	ProjectDir string

	// WeaveProjectDir is ProjectDir/.weave.
	WeaveProjectDir string

	Project ProjectConfig
}

// InitWeaveDir creates the .weave directory structure in the given project
// directory. Called on startup before anything else touches disk.
//
// Structure created:
// .weave/
// ├── content/  <- One markdown file per document body
// ├── graph/    <- One YAML file per document (revisions + edges)
// ├── engine/   <- Workflow session state snapshots
// └── logs/     <- Runtime log and the session logbook
func InitWeaveDir(projectDir string) error {
	weaveDir := filepath.Join(projectDir, WeaveDir)
	dirs := []string{
		filepath.Join(weaveDir, "content"),
		filepath.Join(weaveDir, "graph"),
		filepath.Join(weaveDir, "engine"),
		filepath.Join(weaveDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(weaveDir, "config.yaml"))
}

// NewConfig creates a Config populated with project settings.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:      projectDir,
		WeaveProjectDir: filepath.Join(projectDir, WeaveDir),
		Project:         defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ContentDir returns the directory holding document bodies.
func (c *Config) ContentDir() string {
	return filepath.Join(c.WeaveProjectDir, "content")
}

// GraphDir returns the directory holding per-document graph files.
func (c *Config) GraphDir() string {
	return filepath.Join(c.WeaveProjectDir, "graph")
}

// EngineDir returns the directory holding session state.
func (c *Config) EngineDir() string {
	return filepath.Join(c.WeaveProjectDir, "engine")
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.WeaveProjectDir, "logs")
}

// StatePath returns the on-disk location of the session state snapshot.
func (c *Config) StatePath() string {
	return filepath.Join(c.EngineDir(), "state.json")
}

// LogbookPath returns the session logbook file.
func (c *Config) LogbookPath() string {
	return filepath.Join(c.LogsDir(), "logbook.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.WeaveProjectDir, "config.yaml")
}

// RelationAliasPath resolves the alias table location. Relative paths are
// rooted at the .weave directory.
func (c *Config) RelationAliasPath() string {
	path := strings.TrimSpace(c.Project.Relations.Aliases)
	if path == "" {
		path = "relations.yaml"
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.WeaveProjectDir, path)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:   1,
		Relations: RelationsConfig{Aliases: "relations.yaml"},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Relations.Aliases) == "" {
		pc.Relations.Aliases = "relations.yaml"
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Bridge.Port < 0 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port %d out of range", pc.Bridge.Port)
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
