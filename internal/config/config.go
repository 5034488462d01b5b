package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/dshills/QuantaFTL/internal/log"
	"github.com/dshills/QuantaFTL/internal/nand"
)

// Free-block policy names.
const (
	PolicyFirstPage = "first-page"
	PolicyAllPages  = "all-pages"
)

// Config represents the complete simulator configuration.
type Config struct {
	// Device geometry
	Geometry GeometryConfig `json:"geometry" yaml:"geometry"`

	// Wear-leveling configuration
	WearLeveling WearLevelingConfig `json:"wear_leveling" yaml:"wear_leveling"`

	// Allocator configuration
	Allocator AllocatorConfig `json:"allocator" yaml:"allocator"`

	// Logging configuration
	Log log.Config `json:"log" yaml:"log"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// GeometryConfig describes the simulated NAND layout.
type GeometryConfig struct {
	Blocks        int `json:"blocks" yaml:"blocks"`
	PagesPerBlock int `json:"pages_per_block" yaml:"pages_per_block"`
	LogicalPages  int `json:"logical_pages" yaml:"logical_pages"`
}

// WearLevelingConfig represents wear-leveling configuration.
type WearLevelingConfig struct {
	Threshold int    `json:"threshold" yaml:"threshold"` // max-min wear gap that triggers a pass
	MaxWear   int    `json:"max_wear" yaml:"max_wear"`   // nominal endurance, reporting only
	Schedule  string `json:"schedule" yaml:"schedule"`   // cron spec, empty disables scheduled passes
}

// AllocatorConfig represents allocator configuration.
type AllocatorConfig struct {
	FreePolicy   string `json:"free_policy" yaml:"free_policy"`
	AllocRetries int    `json:"alloc_retries" yaml:"alloc_retries"`
	ReverseIndex bool   `json:"reverse_index" yaml:"reverse_index"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Listen  string `json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with the reference device geometry.
func DefaultConfig() *Config {
	return &Config{
		Geometry: GeometryConfig{
			Blocks:        8192,
			PagesPerBlock: 128,
			LogicalPages:  10000,
		},
		WearLeveling: WearLevelingConfig{
			Threshold: 100,
			MaxWear:   1000,
			Schedule:  "",
		},
		Allocator: AllocatorConfig{
			FreePolicy:   PolicyFirstPage,
			AllocRetries: 1,
			ReverseIndex: false,
		},
		Log: log.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9108",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file. The format is
// picked by extension; anything other than .yaml/.yml is parsed as JSON.
// The result is not validated, so callers can merge overrides first and then
// call Validate.
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return cfg, nil
}

// LoadFromFlags merges command-line flags into the configuration.
// Zero values leave the current setting untouched.
func (c *Config) LoadFromFlags(blocks, pages, logical, threshold int, logLevel string) {
	if blocks > 0 {
		c.Geometry.Blocks = blocks
	}
	if pages > 0 {
		c.Geometry.PagesPerBlock = pages
	}
	if logical > 0 {
		c.Geometry.LogicalPages = logical
	}
	if threshold > 0 {
		c.WearLeveling.Threshold = threshold
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("invalid geometry: %w", err)
	}

	if err := c.validateWearLeveling(); err != nil {
		return fmt.Errorf("invalid wear leveling configuration: %w", err)
	}

	switch c.Allocator.FreePolicy {
	case PolicyFirstPage, PolicyAllPages:
	default:
		return fmt.Errorf("invalid free policy: %q", c.Allocator.FreePolicy)
	}
	if c.Allocator.AllocRetries < 0 {
		return fmt.Errorf("alloc retries cannot be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}

	return nil
}

// Validate checks the geometry on its own; the FTL constructor uses it.
func (g GeometryConfig) Validate() error {
	if g.Blocks < 1 {
		return fmt.Errorf("blocks must be at least 1, got %d", g.Blocks)
	}
	if g.PagesPerBlock < 1 {
		return fmt.Errorf("pages per block must be at least 1, got %d", g.PagesPerBlock)
	}
	if g.LogicalPages < 1 {
		return fmt.Errorf("logical pages must be at least 1, got %d", g.LogicalPages)
	}
	if int64(g.PagesPerBlock) > 1<<31 {
		return fmt.Errorf("pages per block cannot exceed %d, got %d", 1<<31, g.PagesPerBlock)
	}
	if limit := nand.MaxBlocks(g.PagesPerBlock); g.Blocks > limit {
		return fmt.Errorf("blocks cannot exceed %d with %d pages per block, got %d",
			limit, g.PagesPerBlock, g.Blocks)
	}
	return nil
}

func (c *Config) validateWearLeveling() error {
	if c.WearLeveling.Threshold < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", c.WearLeveling.Threshold)
	}
	if c.WearLeveling.MaxWear < 0 {
		return fmt.Errorf("max wear cannot be negative")
	}
	if c.WearLeveling.Schedule != "" {
		if _, err := cron.ParseStandard(c.WearLeveling.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.WearLeveling.Schedule, err)
		}
	}
	return nil
}

// PhysicalPages returns the total number of physical pages.
func (g GeometryConfig) PhysicalPages() int {
	return g.Blocks * g.PagesPerBlock
}
