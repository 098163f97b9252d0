package configs

import (
	_ "embed"
	"fmt"
	"sort"
)

// DefaultConfig is an annotated gasreplay.yaml holding every default of the replay.
//
//go:embed gasreplay.yaml
var DefaultConfig []byte

// NetworkConfig represents a NEAR network's public endpoints
type NetworkConfig struct {
	Name        string `json:"name"`
	ChainID     string `json:"chainId"`
	RPC         string `json:"rpc"`
	ArchivalRPC string `json:"archivalRpc"`
}

// DefaultNetwork is used when no network is configured
const DefaultNetwork = "mainnet"

// Networks maps network names to their endpoints
var Networks = map[string]*NetworkConfig{
	"mainnet": {
		Name:        "NEAR Mainnet",
		ChainID:     "mainnet",
		RPC:         "https://rpc.mainnet.fastnear.com",
		ArchivalRPC: "https://archival-rpc.mainnet.fastnear.com",
	},
	"testnet": {
		Name:        "NEAR Testnet",
		ChainID:     "testnet",
		RPC:         "https://rpc.testnet.fastnear.com",
		ArchivalRPC: "https://archival-rpc.testnet.fastnear.com",
	},
}

// GetNetwork returns the configuration of a named network
func GetNetwork(name string) (*NetworkConfig, error) {
	if name == "" {
		name = DefaultNetwork
	}
	if config, exists := Networks[name]; exists {
		return config, nil
	}
	names := make([]string, 0, len(Networks))
	for n := range Networks {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown network %q (known: %v)", name, names)
}
