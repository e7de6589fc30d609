package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

// newTestRoot mirrors rootCmd's global flags around the given subcommands
func newTestRoot(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{Use: "mirrorbox", SilenceUsage: true, SilenceErrors: true}
	addGlobalFlags(root)
	root.AddCommand(cmds...)
	return root
}

func execute(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}
