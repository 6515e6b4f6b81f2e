package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/QTest-hq/queryscope/internal/analyzer"
)

// ProjectConfigFile is the config file name looked up in a project root
const ProjectConfigFile = ".queryscope.yaml"

// DefaultControllerPath is the Laravel controller directory
const DefaultControllerPath = "app/Http/Controllers"

// ProjectConfig represents a .queryscope.yaml file in a repository
type ProjectConfig struct {
	Version string `yaml:"version"`

	// File patterns, relative to the project root
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	// Controller scoping
	Controllers ControllersConfig `yaml:"controllers"`

	// Additions to the built-in query heuristics
	Heuristics HeuristicsConfig `yaml:"heuristics,omitempty"`

	// Lowest finding severity that fails a CI run; empty never fails
	FailOn string `yaml:"fail_on,omitempty"`
}

// ControllersConfig restricts analysis to controller files
type ControllersConfig struct {
	// Only analyze files under Path
	Only bool `yaml:"only"`

	// Path fragment that marks a controller file
	Path string `yaml:"path,omitempty"`
}

// HeuristicsConfig lists names added to the default heuristic sets
type HeuristicsConfig struct {
	TerminalMethods  []string `yaml:"terminal_methods,omitempty"`
	StaticQueries    []string `yaml:"static_queries,omitempty"`
	Facades          []string `yaml:"facades,omitempty"`
	EagerLoadMethods []string `yaml:"eager_load_methods,omitempty"`
	ScalarColumns    []string `yaml:"scalar_columns,omitempty"`
}

// DefaultProjectConfig returns sensible defaults
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Version: "1.0",
		Include: []string{"**/*.php"},
		Exclude: []string{
			"vendor/**",
			"node_modules/**",
			"storage/**",
			"bootstrap/cache/**",
			"tests/**",
		},
		Controllers: ControllersConfig{
			Only: true,
			Path: DefaultControllerPath,
		},
	}
}

// LoadProjectConfig loads a .queryscope.yaml (or .yml) from the given
// directory, falling back to defaults when neither exists
func LoadProjectConfig(repoPath string) (*ProjectConfig, error) {
	for _, name := range []string{ProjectConfigFile, ".queryscope.yml"} {
		configPath := filepath.Join(repoPath, name)
		if _, err := os.Stat(configPath); err == nil {
			return LoadProjectConfigFile(configPath)
		}
	}
	return DefaultProjectConfig(), nil
}

// LoadProjectConfigFile loads an explicit config file
func LoadProjectConfigFile(configPath string) (*ProjectConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	cfg := DefaultProjectConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveProjectConfig saves the config to .queryscope.yaml
func SaveProjectConfig(repoPath string, cfg *ProjectConfig) error {
	configPath := filepath.Join(repoPath, ProjectConfigFile)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// Validate checks values that cannot be caught by the YAML decoder
func (c *ProjectConfig) Validate() error {
	if c.FailOn != "" {
		if _, err := analyzer.ParseSeverity(c.FailOn); err != nil {
			return fmt.Errorf("fail_on: %w", err)
		}
	}
	return nil
}

// Merge applies overrides from another config (e.g., CLI flags)
func (c *ProjectConfig) Merge(other *ProjectConfig) {
	if other == nil {
		return
	}

	if len(other.Include) > 0 {
		c.Include = other.Include
	}

	if len(other.Exclude) > 0 {
		c.Exclude = other.Exclude
	}

	if other.Controllers.Path != "" {
		c.Controllers.Path = other.Controllers.Path
	}

	if other.FailOn != "" {
		c.FailOn = other.FailOn
	}

	h := &c.Heuristics
	h.TerminalMethods = append(h.TerminalMethods, other.Heuristics.TerminalMethods...)
	h.StaticQueries = append(h.StaticQueries, other.Heuristics.StaticQueries...)
	h.Facades = append(h.Facades, other.Heuristics.Facades...)
	h.EagerLoadMethods = append(h.EagerLoadMethods, other.Heuristics.EagerLoadMethods...)
	h.ScalarColumns = append(h.ScalarColumns, other.Heuristics.ScalarColumns...)
}

// BuildHeuristics extends the default heuristics with the project additions
func (c *ProjectConfig) BuildHeuristics() *analyzer.Heuristics {
	return analyzer.DefaultHeuristics().Extend(analyzer.Additions{
		TerminalMethods:  c.Heuristics.TerminalMethods,
		StaticQueries:    c.Heuristics.StaticQueries,
		Facades:          c.Heuristics.Facades,
		EagerLoadMethods: c.Heuristics.EagerLoadMethods,
		ScalarColumns:    c.Heuristics.ScalarColumns,
	})
}
