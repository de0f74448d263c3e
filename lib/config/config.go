// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "COMPILECRAC_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Facility names accepted by checkpoint.facility.
const (
	FacilityImage = "image"
	FacilityNone  = "none"
)

// Config is the compilecrac configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment" json:"environment"`

	// Tool configures the external tool invoked once per group.
	Tool ToolConfig `yaml:"tool" json:"tool"`

	// Checkpoint configures the checkpoint/restore facility.
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Results configures the JSONL results log.
	Results ResultsConfig `yaml:"results" json:"results"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty" json:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty" json:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Tool       *ToolOverrides    `yaml:"tool,omitempty" json:"tool,omitempty"`
	Checkpoint *CheckpointConfig `yaml:"checkpoint,omitempty" json:"checkpoint,omitempty"`
	Results    *ResultsConfig    `yaml:"results,omitempty" json:"results,omitempty"`
}

// ToolConfig configures the external tool.
type ToolConfig struct {
	// Path is the tool binary, resolved through PATH when it has no
	// slash.
	// Default: javac
	Path string `yaml:"path" json:"path"`

	// Suffix is appended to every token of a group.
	// Default: .java
	Suffix string `yaml:"suffix" json:"suffix"`

	// Separator splits the token stream into groups.
	// Default: --
	Separator string `yaml:"separator" json:"separator"`

	// Timeout bounds a single invocation, as a Go duration. Empty
	// means no limit.
	Timeout string `yaml:"timeout" json:"timeout"`

	// GracePeriod is how long a timed-out tool has between SIGTERM and
	// SIGKILL.
	// Default: 5s
	GracePeriod string `yaml:"grace_period" json:"grace_period"`

	// Env holds extra KEY=VALUE entries added to the tool environment.
	Env []string `yaml:"env" json:"env"`

	// Echo prints "<tool> <args...>" to stdout before each invocation.
	// Default: true (false in production)
	Echo bool `yaml:"echo" json:"echo"`
}

// ToolOverrides is ToolConfig with an optional Echo, so an override
// section can leave it untouched.
type ToolOverrides struct {
	Path        string   `yaml:"path" json:"path"`
	Suffix      string   `yaml:"suffix" json:"suffix"`
	Separator   string   `yaml:"separator" json:"separator"`
	Timeout     string   `yaml:"timeout" json:"timeout"`
	GracePeriod string   `yaml:"grace_period" json:"grace_period"`
	Env         []string `yaml:"env" json:"env"`
	Echo        *bool    `yaml:"echo" json:"echo"`
}

// CheckpointConfig configures the checkpoint/restore facility.
type CheckpointConfig struct {
	// Facility is "image" (write an image and halt) or "none" (every
	// checkpoint request fails as unsupported).
	// Default: image
	Facility string `yaml:"facility" json:"facility"`

	// ImageDir holds the checkpoint image and its lock file.
	// Default: ${HOME}/.cache/compilecrac/image
	ImageDir string `yaml:"image_dir" json:"image_dir"`

	// Compression is "none", "lz4", or "zstd".
	// Default: zstd
	Compression string `yaml:"compression" json:"compression"`

	// Recipients are age public keys. When set, images are sealed and
	// restore needs IdentityFile.
	Recipients []string `yaml:"recipients" json:"recipients"`

	// IdentityFile is an age identity file used to open sealed images.
	IdentityFile string `yaml:"identity_file" json:"identity_file"`
}

// ResultsConfig configures the results log.
type ResultsConfig struct {
	// Path is the JSONL results file. Empty disables the log.
	Path string `yaml:"path" json:"path"`
}

// Default returns the default configuration. It is the base that the
// config file, when present, is loaded over.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Tool: ToolConfig{
			Path:        "javac",
			Suffix:      ".java",
			Separator:   "--",
			GracePeriod: "5s",
			Echo:        true,
		},
		Checkpoint: CheckpointConfig{
			Facility:    FacilityImage,
			ImageDir:    filepath.Join(homeDir, ".cache", "compilecrac", "image"),
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the COMPILECRAC_CONFIG environment
// variable. It fails when the variable is not set; callers that can
// run without a file check the variable first.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges a single file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			echo := false
			overrides = &ConfigOverrides{
				Tool: &ToolOverrides{Echo: &echo},
			}
		}
	}

	if overrides == nil {
		return
	}

	if tool := overrides.Tool; tool != nil {
		if tool.Path != "" {
			c.Tool.Path = tool.Path
		}
		if tool.Suffix != "" {
			c.Tool.Suffix = tool.Suffix
		}
		if tool.Separator != "" {
			c.Tool.Separator = tool.Separator
		}
		if tool.Timeout != "" {
			c.Tool.Timeout = tool.Timeout
		}
		if tool.GracePeriod != "" {
			c.Tool.GracePeriod = tool.GracePeriod
		}
		if tool.Env != nil {
			c.Tool.Env = tool.Env
		}
		if tool.Echo != nil {
			c.Tool.Echo = *tool.Echo
		}
	}

	if checkpoint := overrides.Checkpoint; checkpoint != nil {
		if checkpoint.Facility != "" {
			c.Checkpoint.Facility = checkpoint.Facility
		}
		if checkpoint.ImageDir != "" {
			c.Checkpoint.ImageDir = checkpoint.ImageDir
		}
		if checkpoint.Compression != "" {
			c.Checkpoint.Compression = checkpoint.Compression
		}
		if checkpoint.Recipients != nil {
			c.Checkpoint.Recipients = checkpoint.Recipients
		}
		if checkpoint.IdentityFile != "" {
			c.Checkpoint.IdentityFile = checkpoint.IdentityFile
		}
	}

	if overrides.Results != nil && overrides.Results.Path != "" {
		c.Results.Path = overrides.Results.Path
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Tool.Path = expandVars(c.Tool.Path, vars)
	c.Checkpoint.ImageDir = expandVars(c.Checkpoint.ImageDir, vars)
	c.Checkpoint.IdentityFile = expandVars(c.Checkpoint.IdentityFile, vars)
	c.Results.Path = expandVars(c.Results.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided
// vars take precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// TimeoutDuration parses Timeout. Empty means zero (no limit).
func (t ToolConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("tool.timeout", t.Timeout)
}

// GracePeriodDuration parses GracePeriod. Empty means zero.
func (t ToolConfig) GracePeriodDuration() (time.Duration, error) {
	return parseDuration("tool.grace_period", t.GracePeriod)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, value)
	}
	return duration, nil
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Tool.Path == "" {
		errs = append(errs, errors.New("tool.path is required"))
	}
	if c.Tool.Separator == "" {
		errs = append(errs, errors.New("tool.separator is required"))
	}
	if _, err := c.Tool.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Tool.GracePeriodDuration(); err != nil {
		errs = append(errs, err)
	}
	for _, entry := range c.Tool.Env {
		if !strings.Contains(entry, "=") {
			errs = append(errs, fmt.Errorf("tool.env entry %q is not KEY=VALUE", entry))
		}
	}

	facilities := []string{FacilityImage, FacilityNone}
	if !slices.Contains(facilities, c.Checkpoint.Facility) {
		errs = append(errs, fmt.Errorf("checkpoint.facility must be one of: %v", facilities))
	}
	if c.Checkpoint.Facility == FacilityImage && c.Checkpoint.ImageDir == "" {
		errs = append(errs, errors.New("checkpoint.image_dir is required for the image facility"))
	}
	compressions := []string{"none", "lz4", "zstd"}
	if c.Checkpoint.Compression != "" && !slices.Contains(compressions, c.Checkpoint.Compression) {
		errs = append(errs, fmt.Errorf("checkpoint.compression must be one of: %v", compressions))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the image directory and the results log's
// parent directory if they don't exist.
func (c *Config) EnsurePaths() error {
	var paths []string
	if c.Checkpoint.Facility == FacilityImage {
		paths = append(paths, c.Checkpoint.ImageDir)
	}
	if c.Results.Path != "" {
		paths = append(paths, filepath.Dir(c.Results.Path))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
