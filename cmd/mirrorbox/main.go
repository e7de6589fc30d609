package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/mirrorbox/internal/agent"
	"github.com/openmined/mirrorbox/internal/config"
	"github.com/openmined/mirrorbox/internal/logging"
	"github.com/openmined/mirrorbox/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "mirrorbox",
	Short:   "Mirror a local directory onto remote storage",
	Version: version.Get().String(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		closer, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return err
		}
		defer closer.Close()

		// all good now, show header
		cmd.SilenceUsage = true
		showHeader(cmd.OutOrStdout())

		a, err := agent.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return a.Start(cmd.Context())
	},
}

func init() {
	addGlobalFlags(rootCmd)
	addRunFlags(rootCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("provider", "p", "", "remote provider: localdrive, gdrive, s3, minio")
	cmd.Flags().StringP("remote-parent", "P", "", "provider id of the folder holding the label folder")
	cmd.Flags().IntP("workers", "w", 0, "paths handled in parallel")
	cmd.Flags().StringSliceP("filter", "f", nil, "filename rule, regex or glob:<pattern> (repeatable)")
	cmd.Flags().Bool("initial-scan", false, "mirror existing files at start")
	cmd.Flags().Bool("eager-dirs", false, "create remote folders as soon as local ones appear")
	cmd.Flags().String("state-dir", "", "agent state directory")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")
	cmd.Flags().String("log-file", "", "also log to this file, rotated")
}

// addGlobalFlags defines the flags every subcommand may read
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "mirrorbox config file")
	cmd.PersistentFlags().StringP("root", "r", "", "local directory to mirror")
	cmd.PersistentFlags().StringP("label", "l", "", "remote folder name standing for the root")
}

func main() {
	// replaced by the configured logger once the config is loaded
	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:   slog.LevelInfo,
		NoColor: !isatty.IsTerminal(os.Stdout.Fd()),
	})))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", red.Render("ERROR"), err)
		os.Exit(1)
	}
}
