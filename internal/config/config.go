package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/docsync/internal/digest"
	"github.com/schaermu/docsync/internal/templates"
)

const (
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
	defaultLockTimeout = 5 * time.Second
)

// Config represents the complete docsync configuration
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Sync     SyncConfig     `yaml:"sync"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	// HashAlgorithm applies to manifests created by init or adoption.
	HashAlgorithm string `yaml:"hash_algorithm" validate:"oneof=sha256 blake3"`
	// Journal enables the run journal; nil means enabled.
	Journal     *bool         `yaml:"journal"`
	LockTimeout time.Duration `yaml:"lock_timeout" validate:"gte=0"`
}

// DefaultsConfig supplies template arguments for init and the fallbacks
// used when adoption cannot infer a value.
type DefaultsConfig struct {
	ProjectName string `yaml:"project_name" validate:"omitempty,max=120"`
	Theme       string `yaml:"theme"`
	DefaultPage string `yaml:"default_page" validate:"omitempty,max=64"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultPath returns $XDG_CONFIG_HOME/docsync/config.yaml (or the platform
// equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "docsync", "config.yaml")
}

// Load reads and parses the configuration file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case path == "", errors.Is(err, fs.ErrNotExist):
		// no config file, defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Log.Level = os.ExpandEnv(c.Log.Level)
	c.Log.Format = os.ExpandEnv(c.Log.Format)
	c.Sync.HashAlgorithm = os.ExpandEnv(c.Sync.HashAlgorithm)
	c.Defaults.ProjectName = os.ExpandEnv(c.Defaults.ProjectName)
	c.Defaults.Theme = os.ExpandEnv(c.Defaults.Theme)
	c.Defaults.DefaultPage = os.ExpandEnv(c.Defaults.DefaultPage)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	if c.Sync.HashAlgorithm == "" {
		c.Sync.HashAlgorithm = string(digest.Default)
	}
	if c.Sync.LockTimeout == 0 {
		c.Sync.LockTimeout = defaultLockTimeout
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: invalid value %q (%s)", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return err
	}

	// Template defaults are only checked when set; empty fields fall back
	// to the built-in values.
	if c.Defaults.Theme != "" {
		if _, ok := templates.ThemeByName(c.Defaults.Theme); !ok {
			return fmt.Errorf("defaults.theme: unknown theme %q", c.Defaults.Theme)
		}
	}
	if err := c.TemplateDefaults().Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	return nil
}

// TemplateDefaults returns the configured defaults merged over the built-in
// template arguments.
func (c *Config) TemplateDefaults() templates.Args {
	return templates.Args{
		ProjectName:   c.Defaults.ProjectName,
		ThemeName:     c.Defaults.Theme,
		DefaultPageID: c.Defaults.DefaultPage,
	}.WithDefaults()
}

// HashAlgorithm returns the parsed digest algorithm.
func (c *Config) HashAlgorithm() digest.Algorithm {
	alg, err := digest.Parse(c.Sync.HashAlgorithm)
	if err != nil {
		return digest.Default
	}
	return alg
}

// JournalEnabled reports whether runs are recorded in the journal.
func (c *Config) JournalEnabled() bool {
	return c.Sync.Journal == nil || *c.Sync.Journal
}
