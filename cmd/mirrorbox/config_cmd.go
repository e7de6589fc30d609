package main

import (
	"fmt"
	"os"

	"github.com/openmined/mirrorbox/internal/config"
	"github.com/openmined/mirrorbox/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConfigCmd())
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the mirrorbox config file",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var provider string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			path, err := utils.ResolvePath(path)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config %q already exists, use --force to overwrite", path)
			}

			cfg := config.Default()
			cfg.SyncRoot, _ = cmd.Flags().GetString("root")
			if label, _ := cmd.Flags().GetString("label"); label != "" {
				cfg.RemoteLabel = label
			}
			cfg.Provider = provider

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, green.Render("mirrorbox config written"))
			printField(out, "Config", path)
			printField(out, "Root", cfg.SyncRoot)
			printField(out, "Label", cfg.RemoteLabel)
			printField(out, "Provider", cfg.Provider)
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&provider, "provider", "p", config.ProviderLocalDrive, "remote provider")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")

	return cmd
}
