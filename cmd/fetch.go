package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/gasreplay/pkg/application"
	"github.com/luxfi/gasreplay/pkg/core"
)

// NewFetchCmd creates the fetch command
func NewFetchCmd(app *application.GasReplay) *cobra.Command {
	var cfg core.ScanConfig

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Dump a transaction with all receipt outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}

			raw, err := app.RemoteClient().TxRaw(cmd.Context(), cfg.TxHash, cfg.SenderID)
			if err != nil {
				// a failed lookup is reported, not fatal
				fmt.Fprintln(app.Out, "Error fetching transaction:", err)
				return nil
			}

			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				return fmt.Errorf("failed to format transaction: %w", err)
			}
			fmt.Fprintln(app.Out, "Transaction:", out.String())
			return nil
		},
	}

	txFlags(cmd, &cfg)
	return cmd
}
