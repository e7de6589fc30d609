package main

import (
	"github.com/openmined/mirrorbox/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flag name -> config key
var flagKeys = map[string]string{
	"root":          "sync_root",
	"label":         "remote_label",
	"provider":      "provider",
	"remote-parent": "remote_parent",
	"workers":       "workers",
	"filter":        "filters",
	"initial-scan":  "initial_scan",
	"eager-dirs":    "eager_dirs",
	"state-dir":     "state_dir",
	"metrics-addr":  "metrics_addr",
	"log-level":     "log_level",
	"log-file":      "log_file",
}

// newViper reads the config file named by --config (optional unless the flag
// was set) and layers the flags the user set on top of it.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := config.NewViper()

	path := config.DefaultConfigPath
	required := false
	if f := cmd.Flags().Lookup("config"); f != nil {
		path = f.Value.String()
		required = f.Changed
	}
	if err := config.ReadFile(v, path, required); err != nil {
		return nil, err
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return nil, bindErr
	}

	return v, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}
	return config.Load(v)
}
