package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gileck/templatesync/internal/utils"
)

const (
	// DefaultConfigName is the ownership config file, relative to the project root.
	DefaultConfigName = ".templatesync.yaml"

	// DefaultManifestFile is merged field-by-field instead of copied whole.
	DefaultManifestFile = "package.json"
)

// Config declares which paths the template owns, which are never synced, and
// which project paths are permanently allowed to diverge.
type Config struct {
	// TemplatePaths are glob patterns (exact paths, * and **) the template owns.
	TemplatePaths []string `yaml:"templatePaths"`

	// TemplateIgnoredFiles are glob patterns excluded from sync entirely.
	TemplateIgnoredFiles []string `yaml:"templateIgnoredFiles,omitempty"`

	// ProjectOverrides are exact paths (no globs) allowed to diverge permanently.
	ProjectOverrides []string `yaml:"projectOverrides,omitempty"`

	// ManifestFiles are merged field-by-field. Defaults to package.json.
	ManifestFiles []string `yaml:"manifestFiles,omitempty"`

	// Path the config was loaded from. Not serialized.
	Path string `yaml:"-"`
}

// Load reads and validates an ownership config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Path = path
	if len(cfg.ManifestFiles) == 0 {
		cfg.ManifestFiles = []string{DefaultManifestFile}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config back to its path atomically.
func (c *Config) Save() error {
	if c.Path == "" {
		return fmt.Errorf("config has no path")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := utils.WriteFileAtomic(c.Path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", c.Path, err)
	}
	return nil
}

// Validate checks structural constraints. Override entries must be exact
// relative paths, never globs.
func (c *Config) Validate() error {
	for _, p := range c.ProjectOverrides {
		if strings.ContainsAny(p, "*?[") {
			return fmt.Errorf("projectOverrides entry %q must be an exact path, not a glob", p)
		}
		if strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
			return fmt.Errorf("projectOverrides entry %q must be a relative path inside the project", p)
		}
	}
	for _, p := range c.TemplatePaths {
		if strings.HasPrefix(p, "/") {
			return fmt.Errorf("templatePaths entry %q must be relative", p)
		}
	}
	return nil
}

// IsOverride reports whether path is declared as a project override.
// Override matching is exact, never glob-based.
func (c *Config) IsOverride(path string) bool {
	return slices.Contains(c.ProjectOverrides, path)
}

// AddOverride records path as a project override. Returns true if it was added.
func (c *Config) AddOverride(path string) bool {
	if c.IsOverride(path) {
		return false
	}
	c.ProjectOverrides = append(c.ProjectOverrides, path)
	slices.Sort(c.ProjectOverrides)
	return true
}

// RemoveOverride clears the override flag for path. Returns true if it was present.
func (c *Config) RemoveOverride(path string) bool {
	i := slices.Index(c.ProjectOverrides, path)
	if i < 0 {
		return false
	}
	c.ProjectOverrides = slices.Delete(c.ProjectOverrides, i, i+1)
	return true
}

// IsManifest reports whether path is one of the designated manifest files.
func (c *Config) IsManifest(path string) bool {
	return slices.Contains(c.ManifestFiles, path)
}
