package application

import (
	"io"
	"os"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/luxfi/gasreplay/configs"
	"github.com/luxfi/gasreplay/pkg/rpc"
)

// GasReplay is the main application context that holds all dependencies
type GasReplay struct {
	Log    log.Logger
	Config *viper.Viper
	Out    io.Writer

	Network *configs.NetworkConfig

	Registry   *prometheus.Registry
	RPCMetrics *rpc.Metrics
}

// New creates a new GasReplay application instance
func New() *GasReplay {
	return &GasReplay{Out: os.Stdout}
}

// Setup initializes the application with dependencies
func (g *GasReplay) Setup(logger log.Logger, config *viper.Viper, out io.Writer) error {
	g.Log = logger
	g.Config = config
	if out != nil {
		g.Out = out
	}

	network, err := configs.GetNetwork(config.GetString("network"))
	if err != nil {
		return err
	}
	g.Network = network

	g.Registry = prometheus.NewRegistry()
	metrics, err := rpc.NewMetrics("gasreplay", g.Registry)
	if err != nil {
		return err
	}
	g.RPCMetrics = metrics
	return nil
}

// RPCURL returns the remote archival endpoint: the configured rpc, else the network's
// archival endpoint.
func (g *GasReplay) RPCURL() string {
	if g.Config != nil {
		if url := g.Config.GetString("rpc"); url != "" {
			return url
		}
	}
	if g.Network != nil {
		return g.Network.ArchivalRPC
	}
	return configs.Networks[configs.DefaultNetwork].ArchivalRPC
}

// Client returns an instrumented RPC client labelled name
func (g *GasReplay) Client(name, url string) *rpc.Client {
	return rpc.New(url, rpc.WithMetrics(g.RPCMetrics, name))
}

// RemoteClient returns the client for the archival endpoint
func (g *GasReplay) RemoteClient() *rpc.Client {
	return g.Client("remote", g.RPCURL())
}

// WriteMetrics dumps the registry in text format to path. An empty path is a no-op.
func (g *GasReplay) WriteMetrics(path string) error {
	if path == "" || g.Registry == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, g.Registry)
}
