package cmd

import (
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,

		// no config or metrics for version
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },

		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("gasreplay v%s\n", Version)
			cmd.Printf("Build Time: %s\n", BuildTime)
			cmd.Printf("Git Commit: %s\n", GitCommit)
		},
	}
}
