package cmd

import (
	"github.com/spf13/cobra"

	"github.com/luxfi/gasreplay/pkg/application"
	"github.com/luxfi/gasreplay/pkg/core"
	"github.com/luxfi/gasreplay/pkg/scanner"
)

// txFlags registers the transaction selection flags shared by scan and fetch
func txFlags(cmd *cobra.Command, cfg *core.ScanConfig) {
	cmd.Flags().StringVar(&cfg.TxHash, "hash", core.DefaultTxHash, "transaction hash")
	cmd.Flags().StringVar(&cfg.SenderID, "sender", core.DefaultSenderID, "transaction sender account")
}

// NewScanCmd creates the scan command
func NewScanCmd(app *application.GasReplay) *cobra.Command {
	var cfg core.ScanConfig

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find receipts that ran out of prepaid gas",
		Long:  "Fetches a transaction with all receipt outcomes from the archival RPC and prints every receipt that failed with \"" + scanner.GasExhaustedMessage + "\"",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}

			matches, err := scanner.New(app, app.RemoteClient()).Scan(cmd.Context(), cfg.TxHash, cfg.SenderID)
			if err != nil {
				return err
			}
			return scanner.Print(app.Out, matches)
		},
	}

	txFlags(cmd, &cfg)
	return cmd
}
