package main

import (
	"fmt"

	"github.com/openmined/mirrorbox/internal/config"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newIDCmd())
	rootCmd.AddCommand(newDecodeCmd())
}

func newIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id <path>",
		Short: "Show the remote path and unique id of a local path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapper, err := mapperFromFlags(cmd)
			if err != nil {
				return err
			}

			local, err := utils.ResolvePath(args[0])
			if err != nil {
				return err
			}

			remotePath, err := mapper.RemotePath(local)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printField(out, "Local", local)
			printField(out, "Remote", remotePath.String())
			printField(out, "Unique ID", string(pathid.Encode(remotePath)))
			if parent, err := mapper.ParentRemotePath(local); err == nil {
				printField(out, "Parent", parent.String())
			}
			return nil
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <unique-id>",
		Short: "Show the remote path a unique id stands for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remotePath, err := pathid.Decode(pathid.UniqueID(args[0]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), remotePath.String())
			return err
		},
	}
}

// mapperFromFlags needs only the root and label, so unlike loadConfig it
// does not validate the rest of the config.
func mapperFromFlags(cmd *cobra.Command) (*pathid.Mapper, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}

	root, err := utils.ResolvePath(v.GetString("sync_root"))
	if err != nil {
		return nil, fmt.Errorf("%w: sync_root: %w", config.ErrInvalidConfig, err)
	}
	return pathid.NewMapper(root, v.GetString("remote_label"))
}
