// Package config provides the .clawguard.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file name in the workspace root.
const FileName = ".clawguard.yaml"

// Config represents the clawguard configuration.
type Config struct {
	SkillsDir   string          `yaml:"skills_dir"`
	SkillMarker string          `yaml:"skill_marker"`
	SelfSkills  []string        `yaml:"self_skills"`
	Exclude     []string        `yaml:"exclude,omitempty"`
	Protect     ProtectConfig   `yaml:"protect"`
	Forensics   ForensicsConfig `yaml:"forensics"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// ProtectConfig configures the protect sweep.
type ProtectConfig struct {
	RejectUnsigned bool `yaml:"reject_unsigned"`
}

// ForensicsConfig configures anomaly thresholds.
type ForensicsConfig struct {
	GapSeconds    int `yaml:"gap_seconds"`
	BulkThreshold int `yaml:"bulk_threshold"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		SkillsDir:   "skills",
		SkillMarker: "SKILL.md",
		SelfSkills: []string{
			"clawguard",
			"openclaw-ledger",
			"openclaw-ledger-pro",
			"openclaw-signet",
			"openclaw-signet-pro",
		},
		Forensics: ForensicsConfig{
			GapSeconds:    3600,
			BulkThreshold: 20,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Path returns the config file location for a workspace root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load loads configuration from .clawguard.yaml.
// Returns default config if file doesn't exist.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(root))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to .clawguard.yaml.
func Save(root string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(Path(root), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects values that would break path resolution or thresholds.
func (c *Config) Validate() error {
	if c.SkillsDir == "" || filepath.IsAbs(c.SkillsDir) || strings.HasPrefix(filepath.Clean(c.SkillsDir), "..") {
		return fmt.Errorf("invalid skills_dir %q: must be a relative path inside the workspace", c.SkillsDir)
	}
	if c.SkillMarker == "" || strings.ContainsAny(c.SkillMarker, `/\`) {
		return fmt.Errorf("invalid skill_marker %q: must be a plain file name", c.SkillMarker)
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	if c.Forensics.GapSeconds <= 0 {
		return fmt.Errorf("forensics.gap_seconds must be positive, got %d", c.Forensics.GapSeconds)
	}
	if c.Forensics.BulkThreshold <= 0 {
		return fmt.Errorf("forensics.bulk_threshold must be positive, got %d", c.Forensics.BulkThreshold)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q (want text or json)", c.Logging.Format)
	}
	return nil
}

// Keys lists the settable keys in display order.
func Keys() []string {
	return []string{
		"skills_dir",
		"skill_marker",
		"self_skills",
		"exclude",
		"protect.reject_unsigned",
		"forensics.gap_seconds",
		"forensics.bulk_threshold",
		"logging.level",
		"logging.format",
	}
}

// Get returns a configuration value rendered as a string.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "skills_dir":
		return c.SkillsDir, nil
	case "skill_marker":
		return c.SkillMarker, nil
	case "self_skills":
		return strings.Join(c.SelfSkills, ","), nil
	case "exclude":
		return strings.Join(c.Exclude, ","), nil
	case "protect.reject_unsigned":
		return strconv.FormatBool(c.Protect.RejectUnsigned), nil
	case "forensics.gap_seconds":
		return strconv.Itoa(c.Forensics.GapSeconds), nil
	case "forensics.bulk_threshold":
		return strconv.Itoa(c.Forensics.BulkThreshold), nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	}
	return "", fmt.Errorf("unknown config key: %s", key)
}

// Set parses value and assigns it to key. List keys take comma-separated values.
func (c *Config) Set(key, value string) error {
	switch key {
	case "skills_dir":
		c.SkillsDir = value
	case "skill_marker":
		c.SkillMarker = value
	case "self_skills":
		c.SelfSkills = splitList(value)
	case "exclude":
		c.Exclude = splitList(value)
	case "protect.reject_unsigned":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q for %s", value, key)
		}
		c.Protect.RejectUnsigned = b
	case "forensics.gap_seconds", "forensics.bulk_threshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer %q for %s", value, key)
		}
		if key == "forensics.gap_seconds" {
			c.Forensics.GapSeconds = n
		} else {
			c.Forensics.BulkThreshold = n
		}
	case "logging.level":
		c.Logging.Level = value
	case "logging.format":
		c.Logging.Format = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return c.Validate()
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
