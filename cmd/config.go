package cmd

import (
	"github.com/spf13/cobra"

	"github.com/luxfi/gasreplay/configs"
)

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default gasreplay.yaml",
		Long:  "Prints an annotated configuration file holding every default. Save it as gasreplay.yaml and edit it to change the replay.",
		Args:  cobra.NoArgs,

		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },

		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(configs.DefaultConfig)
			return err
		},
	}
}
