// Package config holds the agent configuration and its validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/openmined/mirrorbox/internal/idcache"
	"github.com/openmined/mirrorbox/internal/logging"
	"github.com/openmined/mirrorbox/internal/remote/gdrive"
	"github.com/openmined/mirrorbox/internal/remote/objstore"
	"github.com/openmined/mirrorbox/internal/utils"
	"github.com/openmined/mirrorbox/internal/watch"
	"gopkg.in/yaml.v3"
)

const (
	ProviderLocalDrive = "localdrive"
	ProviderGDrive     = "gdrive"
	ProviderS3         = "s3"
	ProviderMinio      = "minio"
)

var Providers = []string{ProviderLocalDrive, ProviderGDrive, ProviderS3, ProviderMinio}

var (
	home, _           = os.UserHomeDir()
	DefaultStateDir   = filepath.Join(home, ".mirrorbox")
	DefaultConfigPath = filepath.Join(DefaultStateDir, "config.yaml")
	DefaultLabel      = "Mirror"
)

var ErrInvalidConfig = errors.New("invalid config")

type CacheConfig struct {
	Size int           `mapstructure:"size" yaml:"size"`
	TTL  time.Duration `mapstructure:"ttl" yaml:"-"`
}

func (c CacheConfig) MarshalYAML() (any, error) {
	type plain CacheConfig
	return struct {
		plain `yaml:",inline"`
		TTL   string `yaml:"ttl"`
	}{plain(c), c.TTL.String()}, nil
}

type LocalDriveConfig struct {
	// Dir holds the drive index and blobs; defaults to <state_dir>/drive
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

type Config struct {
	SyncRoot    string `mapstructure:"sync_root" yaml:"sync_root"`
	RemoteLabel string `mapstructure:"remote_label" yaml:"remote_label"`
	// RemoteParent is the provider id of an existing folder holding the label folder
	RemoteParent string `mapstructure:"remote_parent" yaml:"remote_parent,omitempty"`

	Provider   string           `mapstructure:"provider" yaml:"provider"`
	LocalDrive LocalDriveConfig `mapstructure:"localdrive" yaml:"localdrive"`
	GDrive     gdrive.Config    `mapstructure:"gdrive" yaml:"gdrive"`
	S3         objstore.Config  `mapstructure:"s3" yaml:"s3"`
	Minio      objstore.Config  `mapstructure:"minio" yaml:"minio"`

	Cache       CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Filters     []string      `mapstructure:"filters" yaml:"filters"`
	Ignore      []string      `mapstructure:"ignore" yaml:"ignore"`
	Workers     int           `mapstructure:"workers" yaml:"workers"`
	Debounce    time.Duration `mapstructure:"debounce" yaml:"-"`
	EagerDirs   bool          `mapstructure:"eager_dirs" yaml:"eager_dirs"`
	InitialScan bool          `mapstructure:"initial_scan" yaml:"initial_scan"`

	StateDir    string `mapstructure:"state_dir" yaml:"state_dir"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file,omitempty"`

	Path string `mapstructure:"-" yaml:"-"`
}

// Default returns a config with every optional key set
func Default() *Config {
	return &Config{
		RemoteLabel: DefaultLabel,
		Provider:    ProviderLocalDrive,
		Cache: CacheConfig{
			Size: idcache.DefaultSize,
			TTL:  idcache.DefaultTTL,
		},
		Workers:  1,
		Debounce: watch.DefaultDebounce,
		StateDir: DefaultStateDir,
		LogLevel: "info",
	}
}

func (c Config) MarshalYAML() (any, error) {
	type plain Config
	return struct {
		plain    `yaml:",inline"`
		Debounce string `yaml:"debounce"`
	}{plain(c), c.Debounce.String()}, nil
}

// Validate normalizes paths and fills defaults for derived values
func (c *Config) Validate() error {
	var err error

	if c.SyncRoot, err = utils.ResolvePath(c.SyncRoot); err != nil {
		return fmt.Errorf("%w: sync_root: %w", ErrInvalidConfig, err)
	}
	if info, err := os.Stat(c.SyncRoot); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: sync_root %q is not a directory", ErrInvalidConfig, c.SyncRoot)
	}

	c.RemoteLabel = strings.TrimSpace(c.RemoteLabel)
	if c.RemoteLabel == "" || c.RemoteLabel == "." || c.RemoteLabel == ".." || strings.ContainsAny(c.RemoteLabel, `/\`) {
		return fmt.Errorf("%w: remote_label %q must be a single folder name", ErrInvalidConfig, c.RemoteLabel)
	}

	if !slices.Contains(Providers, c.Provider) {
		return fmt.Errorf("%w: provider %q, expected one of %s", ErrInvalidConfig, c.Provider, strings.Join(Providers, ", "))
	}

	if c.Cache.Size <= 0 {
		return fmt.Errorf("%w: cache.size must be positive", ErrInvalidConfig)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: cache.ttl must be positive", ErrInvalidConfig)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("%w: debounce must be positive", ErrInvalidConfig)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
	}

	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.StateDir, err = utils.ResolvePath(c.StateDir); err != nil {
		return fmt.Errorf("%w: state_dir: %w", ErrInvalidConfig, err)
	}
	if utils.IsWithin(c.SyncRoot, c.StateDir) {
		return fmt.Errorf("%w: state_dir must not be inside sync_root", ErrInvalidConfig)
	}

	if c.Provider == ProviderLocalDrive {
		if c.LocalDrive.Dir == "" {
			c.LocalDrive.Dir = filepath.Join(c.StateDir, "drive")
		}
		if c.LocalDrive.Dir, err = utils.ResolvePath(c.LocalDrive.Dir); err != nil {
			return fmt.Errorf("%w: localdrive.dir: %w", ErrInvalidConfig, err)
		}
		if utils.IsWithin(c.SyncRoot, c.LocalDrive.Dir) {
			return fmt.Errorf("%w: localdrive.dir must not be inside sync_root", ErrInvalidConfig)
		}
	}

	if c.LogFile != "" {
		if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
			return fmt.Errorf("%w: log_file: %w", ErrInvalidConfig, err)
		}
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("%w: config path: %w", ErrInvalidConfig, err)
		}
	}

	return nil
}

// Save writes the config as yaml
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
