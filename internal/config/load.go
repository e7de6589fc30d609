package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "MIRRORBOX"

// NewViper returns a viper instance carrying every key with its default, so
// that each one can also be set from the environment, e.g.
// MIRRORBOX_CACHE_TTL=1h or MIRRORBOX_GDRIVE_TOKEN=...
func NewViper() *viper.Viper {
	v := viper.New()
	def := Default()

	v.SetDefault("sync_root", "")
	v.SetDefault("remote_label", def.RemoteLabel)
	v.SetDefault("remote_parent", "")
	v.SetDefault("provider", def.Provider)
	v.SetDefault("localdrive.dir", "")
	v.SetDefault("gdrive.base_url", "")
	v.SetDefault("gdrive.token", "")
	v.SetDefault("gdrive.timeout", 0)
	for _, section := range []string{ProviderS3, ProviderMinio} {
		for _, key := range []string{"bucket", "region", "endpoint", "access_key", "secret_key", "prefix"} {
			v.SetDefault(section+"."+key, "")
		}
		v.SetDefault(section+".use_ssl", section == ProviderMinio)
	}
	v.SetDefault("cache.size", def.Cache.Size)
	v.SetDefault("cache.ttl", def.Cache.TTL)
	v.SetDefault("filters", []string{})
	v.SetDefault("ignore", []string{})
	v.SetDefault("workers", def.Workers)
	v.SetDefault("debounce", def.Debounce)
	v.SetDefault("eager_dirs", false)
	v.SetDefault("initial_scan", false)
	v.SetDefault("state_dir", def.StateDir)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// ReadFile points v at path. A missing file is not an error unless required.
func ReadFile(v *viper.Viper, path string, required bool) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !required && (errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound)) {
			return nil
		}
		return fmt.Errorf("config read %q: %w", path, err)
	}
	return nil
}

// Load decodes v into a validated Config
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is Load for a single config file plus the environment
func LoadFile(path string) (*Config, error) {
	v := NewViper()
	if err := ReadFile(v, path, true); err != nil {
		return nil, err
	}
	return Load(v)
}
