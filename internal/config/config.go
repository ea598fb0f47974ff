package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for a deltactl run.
type Config struct {
	DSN       string
	Engine    string // "postgres" or "delta"
	LogFormat string // "text" or "json"
	Debug     bool

	// merge / plan
	Environment  string
	Dataset      string
	ViewName     string
	KeyColumns   []string
	PreviewLimit int

	// check
	Relation    string
	Files       []string
	KeepStaging bool

	Environments map[string]Environment `yaml:"environments"`
	Rules        Rules                  `yaml:"rules"`
}

// Environment maps a destination environment to its storage and catalog names.
type Environment struct {
	Database string `yaml:"database"`
	Path     string `yaml:"path"`
}

// Rules are the optional quality-check parameters, loaded from YAML.
// Each populated field triggers the corresponding check.
type Rules struct {
	KeyColumns       []string         `yaml:"key_columns"`
	OrderBy          []string         `yaml:"order_by"`
	CriticalColumns  []string         `yaml:"critical_columns"`
	ColumnRanges     map[string]Range `yaml:"column_ranges"`
	Reference        Reference        `yaml:"reference"`
	ConsistencyPairs []Pair           `yaml:"consistency_pairs"`
	ExcludeColumns   []string         `yaml:"exclude_columns"`
}

// Range bounds a numeric column, inclusive on both ends.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Reference names the relation and join column for referential integrity.
type Reference struct {
	Relation   string `yaml:"relation"`
	JoinColumn string `yaml:"join_column"`
}

// Pair names two columns whose values must satisfy first <= second.
type Pair struct {
	First  string `yaml:"first"`
	Second string `yaml:"second"`
}

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	Environments map[string]Environment `yaml:"environments"`
	Rules        Rules                  `yaml:"rules"`
}

// LoadFromFile reads a YAML config file and merges its values into Config.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	c.Environments = yc.Environments
	c.Rules = yc.Rules
	return c.validateRules()
}

// validateRules rejects rule combinations that can never run.
func (c *Config) validateRules() error {
	for col, r := range c.Rules.ColumnRanges {
		if r.Min > r.Max {
			return fmt.Errorf("column_ranges.%s: min %v exceeds max %v", col, r.Min, r.Max)
		}
	}
	if (c.Rules.Reference.Relation == "") != (c.Rules.Reference.JoinColumn == "") {
		return fmt.Errorf("reference requires both relation and join_column")
	}
	for i, p := range c.Rules.ConsistencyPairs {
		if p.First == "" || p.Second == "" {
			return fmt.Errorf("consistency_pairs[%d]: both first and second are required", i)
		}
	}
	return nil
}

// ValidateEngine checks the engine name and DSN presence.
func (c *Config) ValidateEngine() error {
	if c.Engine != "postgres" && c.Engine != "delta" {
		return fmt.Errorf("unknown engine %q (want postgres or delta)", c.Engine)
	}
	if c.DSN == "" {
		return fmt.Errorf("--dsn or DELTACTL_DSN is required")
	}
	return nil
}

// ValidateMerge checks the fields the merge and plan commands need.
func (c *Config) ValidateMerge() error {
	if c.Environment == "" {
		return fmt.Errorf("--env is required")
	}
	if c.Dataset == "" {
		return fmt.Errorf("--dataset is required")
	}
	if c.ViewName == "" {
		return fmt.Errorf("--view is required")
	}
	if len(c.KeyColumns) == 0 {
		return fmt.Errorf("--keys is required")
	}
	if _, ok := c.Environments[c.Environment]; !ok {
		return fmt.Errorf("environment %q not present in config file", c.Environment)
	}
	return nil
}

// ValidateCheck checks the fields the check command needs.
func (c *Config) ValidateCheck() error {
	if c.Relation == "" && len(c.Files) == 0 {
		return fmt.Errorf("--relation or at least one --file is required")
	}
	if c.Relation != "" && len(c.Files) > 0 {
		return fmt.Errorf("--relation and --file are mutually exclusive")
	}
	for _, f := range c.Files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("file not accessible: %w", err)
		}
	}
	if len(c.KeyColumns) == 0 && len(c.Rules.KeyColumns) == 0 {
		return fmt.Errorf("key columns are required (--keys or rules key_columns)")
	}
	return nil
}

// EffectiveKeyColumns prefers the --keys flag over the rules file.
func (c *Config) EffectiveKeyColumns() []string {
	if len(c.KeyColumns) > 0 {
		return c.KeyColumns
	}
	return c.Rules.KeyColumns
}
