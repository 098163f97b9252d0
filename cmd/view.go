package cmd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/gasreplay/pkg/application"
)

// NewViewCmd creates the view command
func NewViewCmd(app *application.GasReplay) *cobra.Command {
	var argsBase64 string

	cmd := &cobra.Command{
		Use:   "view <account> <method> [json-args]",
		Short: "Call a contract view method at final finality",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var callArgs []byte
			switch {
			case argsBase64 != "" && len(args) == 3:
				return fmt.Errorf("pass either json-args or --args-base64, not both")
			case argsBase64 != "":
				decoded, err := base64.StdEncoding.DecodeString(argsBase64)
				if err != nil {
					return fmt.Errorf("invalid --args-base64: %w", err)
				}
				callArgs = decoded
			case len(args) == 3:
				if !json.Valid([]byte(args[2])) {
					return fmt.Errorf("json-args is not valid JSON: %s", args[2])
				}
				callArgs = []byte(args[2])
			}

			res, err := app.RemoteClient().CallFunction(cmd.Context(), args[0], args[1], callArgs)
			if err != nil {
				return err
			}
			for _, line := range res.Logs {
				app.Log.Info("Contract log", "line", line)
			}

			var out bytes.Buffer
			if err := json.Indent(&out, res.Result, "", "  "); err != nil {
				// not JSON, print as returned
				fmt.Fprintln(app.Out, string(res.Result))
				return nil
			}
			fmt.Fprintln(app.Out, out.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&argsBase64, "args-base64", "", "base64 encoded call arguments")
	return cmd
}
