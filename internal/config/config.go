// Package config manages lifeboat configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lcrostarosa/lifeboat/internal/component"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

// EnvPrefix is the prefix of every environment variable lifeboat reads.
const EnvPrefix = "LIFEBOAT"

// DefaultFileName is looked up in the project root when no --config is given.
const DefaultFileName = "lifeboat.yaml"

// Emergency archive selection policies
const (
	SelectPriority = "priority" // first class with any archive: daily, weekly, snapshot
	SelectNewest   = "newest"   // newest archive across those classes
)

// Endpoint is a named external service probed for reachability.
type Endpoint struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required"`
	URL  string `mapstructure:"url" yaml:"url" validate:"required,url"`
}

// RetentionConfig holds retention windows in days. Zero means unbounded.
type RetentionConfig struct {
	Daily       int `mapstructure:"daily" yaml:"daily" validate:"gte=0"`
	Weekly      int `mapstructure:"weekly" yaml:"weekly" validate:"gte=0"`
	Snapshot    int `mapstructure:"snapshot" yaml:"snapshot" validate:"gte=0"`
	Manual      int `mapstructure:"manual" yaml:"manual" validate:"gte=0"`
	KeepMinimum int `mapstructure:"keep_minimum" yaml:"keep_minimum" validate:"gte=0"`
}

// EncryptionConfig controls archive sealing. Key is never serialized.
type EncryptionConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Key     string `mapstructure:"key" yaml:"-" json:"-"`
}

// ProbeConfig lists the external endpoints checked by assessment and system_state capture.
type ProbeConfig struct {
	Endpoints []Endpoint    `mapstructure:"endpoints" yaml:"endpoints" validate:"dive"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	// SlowAfter marks a reachable endpoint as degraded. Zero disables it.
	SlowAfter time.Duration `mapstructure:"slow_after" yaml:"slow_after" validate:"gte=0"`
}

// CheckConfig lists what assessment and post-recovery validation look for.
// Paths are relative to the project root.
type CheckConfig struct {
	CriticalScripts  []string `mapstructure:"critical_scripts" yaml:"critical_scripts"`
	RequiredEnv      []string `mapstructure:"required_env" yaml:"required_env"`
	RequiredFiles    []string `mapstructure:"required_files" yaml:"required_files"`
	RecommendedFiles []string `mapstructure:"recommended_files" yaml:"recommended_files"`
	RequiredDirs     []string `mapstructure:"required_dirs" yaml:"required_dirs"`

	DiskWarnPercent     float64 `mapstructure:"disk_warn_percent" yaml:"disk_warn_percent" validate:"gt=0,lte=100"`
	DiskCriticalPercent float64 `mapstructure:"disk_critical_percent" yaml:"disk_critical_percent" validate:"gtefield=DiskWarnPercent,lte=100"`
	MemWarnPercent      float64 `mapstructure:"mem_warn_percent" yaml:"mem_warn_percent" validate:"gt=0,lte=100"`
	MemCriticalPercent  float64 `mapstructure:"mem_critical_percent" yaml:"mem_critical_percent" validate:"gtefield=MemWarnPercent,lte=100"`

	// DependencyValidator is an optional external script run after recovery.
	DependencyValidator string `mapstructure:"dependency_validator" yaml:"dependency_validator"`
}

// Config represents the lifeboat configuration
type Config struct {
	ProjectRoot string `mapstructure:"project_root" yaml:"project_root" validate:"required"`
	BackupRoot  string `mapstructure:"backup_root" yaml:"backup_root" validate:"required"`
	LogDir      string `mapstructure:"log_dir" yaml:"log_dir" validate:"required"`

	Retention  RetentionConfig  `mapstructure:"retention" yaml:"retention"`
	Encryption EncryptionConfig `mapstructure:"encryption" yaml:"encryption"`
	Probes     ProbeConfig      `mapstructure:"probes" yaml:"probes"`
	Checks     CheckConfig      `mapstructure:"checks" yaml:"checks"`

	// Components overrides the source globs of backup components by name.
	Components map[string][]string `mapstructure:"components" yaml:"components,omitempty"`

	LockTimeout        time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout" validate:"gte=0"`
	EmergencySelection string        `mapstructure:"emergency_selection" yaml:"emergency_selection" validate:"oneof=priority newest"`

	// Paths (not serialized)
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// File is an explicit config file; empty looks for lifeboat.yaml in the project root.
	File string
	// ProjectRoot overrides the project root; empty uses LIFEBOAT_PROJECT_ROOT or the working directory.
	ProjectRoot string
	// Flags are bound to their matching keys when present ("dir", "encrypt").
	Flags *pflag.FlagSet
}

// DefaultBackupRoot returns the default archive directory
func DefaultBackupRoot() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lifeboat", "backups")
}

// Default returns the built-in configuration for a project root.
func Default(projectRoot string) *Config {
	return &Config{
		ProjectRoot: projectRoot,
		BackupRoot:  DefaultBackupRoot(),
		LogDir:      filepath.Join(projectRoot, "logs"),
		Retention: RetentionConfig{
			Daily:       7,
			Weekly:      28,
			Snapshot:    2,
			Manual:      0,
			KeepMinimum: 1,
		},
		Probes: ProbeConfig{
			Endpoints: []Endpoint{
				{Name: "github", URL: "https://api.github.com"},
				{Name: "linear", URL: "https://api.linear.app"},
			},
			Timeout:   10 * time.Second,
			SlowAfter: 2 * time.Second,
		},
		Checks: CheckConfig{
			CriticalScripts: []string{
				"scripts/linear-sync.sh",
				"scripts/run-checks.sh",
				"scripts/install-aliases.sh",
			},
			RequiredEnv:         []string{"LINEAR_API_KEY", "GITHUB_TOKEN"},
			RequiredFiles:       []string{".env", "package.json"},
			RecommendedFiles:    []string{".eslintrc.json", "jest.config.js", ".prettierrc"},
			RequiredDirs:        []string{"scripts", "docs", ".github"},
			DiskWarnPercent:     80,
			DiskCriticalPercent: 90,
			MemWarnPercent:      80,
			MemCriticalPercent:  90,
			DependencyValidator: "scripts/validate-dependencies.sh",
		},
		LockTimeout:        30 * time.Second,
		EmergencySelection: SelectPriority,
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// LIFEBOAT_* environment variables and bound flags, in increasing precedence.
func Load(opts LoadOptions) (*Config, error) {
	root, err := resolveProjectRoot(opts.ProjectRoot)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	envKeys := map[string]string{
		"project_root":       "LIFEBOAT_PROJECT_ROOT",
		"backup_root":        "LIFEBOAT_BACKUP_ROOT",
		"log_dir":            "LIFEBOAT_LOG_DIR",
		"encryption.enabled": "LIFEBOAT_ENCRYPT",
		"encryption.key":     "LIFEBOAT_ENCRYPTION_KEY",
		"lock_timeout":       "LIFEBOAT_LOCK_TIMEOUT",
	}
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if opts.Flags != nil {
		flagKeys := map[string]string{
			"dir":     "backup_root",
			"encrypt": "encryption.enabled",
		}
		for flag, key := range flagKeys {
			if f := opts.Flags.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}
	}

	file := opts.File
	if file == "" {
		candidate := filepath.Join(root, DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			file = candidate
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	// Lists given in the file or environment replace the defaults instead
	// of being written over them element by element.
	cfg := Default(root)
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ConfigFile = file

	// An explicit project_root in the file or environment moves the defaults with it.
	if cfg.ProjectRoot != root {
		if !filepath.IsAbs(cfg.ProjectRoot) {
			cfg.ProjectRoot = filepath.Join(root, cfg.ProjectRoot)
		}
		if !v.IsSet("log_dir") {
			cfg.LogDir = filepath.Join(cfg.ProjectRoot, "logs")
		}
	}
	cfg.BackupRoot = absUnder(cfg.ProjectRoot, cfg.BackupRoot)
	cfg.LogDir = absUnder(cfg.ProjectRoot, cfg.LogDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidConfig, err)
	}
	for name := range c.Components {
		if !component.Known(name) {
			return fmt.Errorf("%w: unknown component %q in components (want one of %s)",
				apperrors.ErrInvalidConfig, name, strings.Join(component.Names(), ", "))
		}
	}
	return nil
}

// Days returns the retention window in days for a backup class name.
// Unknown classes are never pruned.
func (r RetentionConfig) Days(class string) int {
	switch class {
	case "daily":
		return r.Daily
	case "weekly":
		return r.Weekly
	case "snapshot":
		return r.Snapshot
	case "manual":
		return r.Manual
	}
	return 0
}

// HasEncryptionKey returns true if a passphrase is available.
func (c *Config) HasEncryptionKey() bool {
	return c.Encryption.Key != ""
}

// ProjectPath resolves a slash-separated project-relative path. Absolute
// paths are returned as they are.
func (c *Config) ProjectPath(rel string) string {
	return absUnder(c.ProjectRoot, filepath.FromSlash(rel))
}

func resolveProjectRoot(explicit string) (string, error) {
	root := explicit
	if root == "" {
		root = os.Getenv(EnvPrefix + "_PROJECT_ROOT")
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	return abs, nil
}

func absUnder(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(base, p)
}
