package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overridden at link time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sestream",
	// version needs no configuration
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sestream version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
