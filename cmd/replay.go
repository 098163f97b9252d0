package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/gasreplay/pkg/application"
	"github.com/luxfi/gasreplay/pkg/core"
	"github.com/luxfi/gasreplay/pkg/replay"
	"github.com/luxfi/gasreplay/pkg/sandbox"
)

// NewReplayCmd creates the replay command
func NewReplayCmd(app *application.GasReplay) *cobra.Command {
	var (
		sbOpts   sandbox.Options
		dao      string
		token    string
		userName string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the DAO transfer vote on a local sandbox",
		Long: `Starts near-sandbox, imports the DAO and token contract code from mainnet, rebuilds
the token state, initializes the DAO with its live policy (plus a local proposer),
and votes a transfer proposal through to inspect the executing receipts.

Settings are read from the "replay" section of the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadReplayConfig(app)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dao") {
				cfg.DAOContract = dao
			}
			if cmd.Flags().Changed("token") {
				cfg.TokenContract = token
			}
			if cmd.Flags().Changed("user") {
				cfg.UserName = userName
			}
			cfg.Normalize()

			remote := app.RemoteClient()
			sbOpts.Remote = remote
			replayer, err := replay.New(app, cfg, remote, replay.SandboxLauncher(app, sbOpts))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(app.Out, "🔄 Governance replay")
			fmt.Fprintln(app.Out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			report, err := replayer.Run(ctx)
			printSteps(app, report)
			if err != nil {
				return err
			}

			if len(report.Matches) > 0 {
				fmt.Fprintf(app.Out, "⚠️  Reproduced prepaid gas exhaustion in %d receipt(s)\n", len(report.Matches))
			} else {
				fmt.Fprintln(app.Out, "✅ Replay complete, no receipt ran out of prepaid gas")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sbOpts.Binary, "sandbox-bin", "", "near-sandbox binary (default $"+sandbox.BinaryEnv+" or near-sandbox on PATH)")
	cmd.Flags().StringVar(&sbOpts.HomeDir, "sandbox-home", "", "sandbox home directory, kept after the run (default: temporary)")
	cmd.Flags().DurationVar(&sbOpts.StartTimeout, "start-timeout", time.Minute, "how long to wait for the sandbox RPC")
	cmd.Flags().StringVar(&dao, "dao", "", "DAO contract to import")
	cmd.Flags().StringVar(&token, "token", "", "token contract to import")
	cmd.Flags().StringVar(&userName, "user", "", "name of the created proposer account")

	return cmd
}

// loadReplayConfig decodes the replay section over the defaults. Keys the file omits
// keep their default; keys it sets win, zero values included.
func loadReplayConfig(app *application.GasReplay) (core.ReplayConfig, error) {
	cfg := core.DefaultReplayConfig()
	// a listed approvers key replaces the defaults instead of merging into them
	cfg.Approvers = nil
	if err := app.Config.UnmarshalKey("replay", &cfg); err != nil {
		return cfg, core.ErrInvalidConfigf("invalid replay config: %v", err)
	}
	return cfg, nil
}

func printSteps(app *application.GasReplay, report *replay.Report) {
	if report == nil || len(report.Steps) == 0 {
		return
	}
	fmt.Fprintln(app.Out, "\n📊 Steps:")
	for _, s := range report.Steps {
		mark := "✓"
		switch {
		case s.Err != nil && s.BestEffort:
			mark = "⚠️"
		case s.Err != nil:
			mark = "❌"
		}
		fmt.Fprintf(app.Out, "  %s %-26s %s\n", mark, s.Name, s.Duration.Round(time.Millisecond))
	}
}
