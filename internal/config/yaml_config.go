package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"wikimod/internal/models"
)

// YAMLConfig represents the structure of the config.yaml file.
// Site structure that's easier to manage in YAML than env vars.
type YAMLConfig struct {
	Namespaces []NamespaceConfig `yaml:"namespaces"`
	Moderation ModerationConfig  `yaml:"moderation"`
}

// NamespaceConfig defines an extra namespace or aliases for a built-in one.
type NamespaceConfig struct {
	ID      int      `yaml:"id"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"` // e.g. "Image" for File
}

// ModerationConfig overrides moderation settings from the environment.
type ModerationConfig struct {
	TimeToOverrideRejection string `yaml:"time_to_override_rejection,omitempty"` // Go duration, e.g. "336h"
}

// LoadYAMLConfig loads the YAML configuration file.
// Path is determined by CONFIG_FILE env var, defaulting to "config.yaml".
// Returns nil without error if the config file doesn't exist.
func LoadYAMLConfig() (*YAMLConfig, error) {
	path := getEnv("CONFIG_FILE", "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file is optional
			return nil, nil
		}
		return nil, err
	}

	return ParseYAMLConfig(data)
}

// ParseYAMLConfig decodes and validates YAML configuration.
func ParseYAMLConfig(data []byte) (*YAMLConfig, error) {
	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for _, ns := range cfg.Namespaces {
		if ns.Name == "" {
			return nil, fmt.Errorf("namespace %d has no name", ns.ID)
		}
	}
	if cfg.Moderation.TimeToOverrideRejection != "" {
		if _, err := time.ParseDuration(cfg.Moderation.TimeToOverrideRejection); err != nil {
			return nil, fmt.Errorf("invalid time_to_override_rejection: %w", err)
		}
	}

	return &cfg, nil
}

// NamespaceNames returns the built-in namespaces merged with configured ones,
// keyed by name (including aliases).
func (c *YAMLConfig) NamespaceNames() map[string]int {
	names := make(map[string]int, len(models.DefaultNamespaces))
	for id, name := range models.DefaultNamespaces {
		if name != "" {
			names[name] = id
		}
	}
	if c == nil {
		return names
	}
	for _, ns := range c.Namespaces {
		names[ns.Name] = ns.ID
		for _, alias := range ns.Aliases {
			names[alias] = ns.ID
		}
	}
	return names
}

// Apply copies YAML overrides onto the environment configuration.
func (c *YAMLConfig) Apply(cfg *Config) {
	if c == nil {
		return
	}
	if d, err := time.ParseDuration(c.Moderation.TimeToOverrideRejection); err == nil {
		cfg.ReapprovalWindow = d
	}
}
