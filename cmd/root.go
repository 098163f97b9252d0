package cmd

import (
	"errors"
	"fmt"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luxfi/gasreplay/configs"
	"github.com/luxfi/gasreplay/pkg/application"
)

var (
	// Version information (set by ldflags)
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// RPCURLEnv overrides the archival RPC endpoint
const RPCURLEnv = "NEAR_CLI_MAINNET_RPC_SERVER_URL"

type rootOptions struct {
	configFile  string
	rpcURL      string
	network     string
	metricsFile string
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(application.New())
}

func newRootCmd(app *application.GasReplay) *cobra.Command {
	var opts rootOptions
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:          "gasreplay",
		Short:        "Investigate prepaid gas exhaustion in NEAR transactions",
		Long:         `Scans a transaction's receipts for prepaid gas exhaustion and replays the DAO governance flow that produced it on a local near-sandbox.`,
		Version:      fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(v, opts.configFile); err != nil {
				return err
			}
			return app.Setup(log.NewLogger("gasreplay"), v, cmd.OutOrStdout())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.WriteMetrics(opts.metricsFile)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is ./gasreplay.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.rpcURL, "rpc", "", "archival RPC endpoint (env "+RPCURLEnv+", default is the network's archival endpoint)")
	rootCmd.PersistentFlags().StringVar(&opts.network, "network", configs.DefaultNetwork, "NEAR network (mainnet, testnet)")
	rootCmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "write RPC metrics in Prometheus text format to this file")
	_ = v.BindPFlag("rpc", rootCmd.PersistentFlags().Lookup("rpc"))
	_ = v.BindPFlag("network", rootCmd.PersistentFlags().Lookup("network"))

	rootCmd.AddCommand(NewScanCmd(app))
	rootCmd.AddCommand(NewFetchCmd(app))
	rootCmd.AddCommand(NewViewCmd(app))
	rootCmd.AddCommand(NewReplayCmd(app))
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func initConfig(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("gasreplay")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GASREPLAY")
	v.AutomaticEnv()
	if err := v.BindEnv("rpc", "GASREPLAY_RPC", RPCURLEnv); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
