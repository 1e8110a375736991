// Package config holds the per-network MagicBlock configuration.
// Configs are immutable values: switching networks produces a new Config,
// never a mutation of an existing one.
package config

import "fmt"

// Network selects the target cluster.
type Network string

const (
	Devnet  Network = "devnet"
	Mainnet Network = "mainnet"
)

// Well-known program and validator addresses.
const (
	// DelegationProgramID is the MagicBlock delegation program.
	DelegationProgramID = "DELeGGvXpWV2fqJUhqcF5ZSYMS4JTLjteaAMARRSaeSh"

	// AccessControlProgramID gates read visibility of TEE-delegated accounts.
	AccessControlProgramID = "ACLseoPoyC3cBqoUtkbjZ4aDrkurZW86v19pXz2XQnp1"

	// TEEValidator is the known TEE validator identity for Private ER.
	TEEValidator = "FnE6VJT5QNZdedZPnCoLsARgBwoE6DeJNjBs2H1gySXA"

	// SystemProgramID is the Solana system program.
	SystemProgramID = "11111111111111111111111111111111"
)

// Config is the immutable per-network configuration consumed by the router,
// delegation manager and transaction builder.
type Config struct {
	Network             Network
	BaseRPCURL          string
	RouterRPCURL        string
	WSURL               string
	ProgramID           string
	DelegationProgramID string
	VrfProgramID        string // empty when the network has no VRF program
	APIKey              string // base-layer RPC provider key, sent as a header
}

var networkDefaults = map[Network]Config{
	Devnet: {
		Network:             Devnet,
		BaseRPCURL:          "https://api.devnet.solana.com",
		RouterRPCURL:        "https://devnet-router.magicblock.app",
		WSURL:               "wss://api.devnet.solana.com",
		ProgramID:           "7fJQ6X1tBwkMV5shfYd6XyVHG3mD56diLPojybmvjee1",
		DelegationProgramID: DelegationProgramID,
		VrfProgramID:        "7VbcizwUZ2M3EZqsrTfZHh6d13eJUz15E7LSDTfhxTxu",
	},
	Mainnet: {
		Network:             Mainnet,
		BaseRPCURL:          "https://api.mainnet-beta.solana.com",
		RouterRPCURL:        "https://router.magicblock.app",
		WSURL:               "wss://api.mainnet-beta.solana.com",
		ProgramID:           "4VvzXfvSEkYtuBtLvqZDTgu9Gkfoxk6tnqTEoqyEazs2",
		DelegationProgramID: DelegationProgramID,
	},
}

// ForNetwork returns the default configuration for a network.
func ForNetwork(n Network) (Config, error) {
	cfg, ok := networkDefaults[n]
	if !ok {
		return Config{}, fmt.Errorf("unknown network %q", n)
	}
	return cfg, nil
}

// WithNetwork returns a fresh config for the given network, carrying over
// the API key. The receiver is left untouched.
func (c Config) WithNetwork(n Network) (Config, error) {
	next, err := ForNetwork(n)
	if err != nil {
		return Config{}, err
	}
	next.APIKey = c.APIKey
	return next, nil
}

// WithAPIKey returns a copy of the config with the API key set.
func (c Config) WithAPIKey(key string) Config {
	c.APIKey = key
	return c
}

// VrfProgramOrDefault returns the VRF program id, falling back to the main
// program id when the network has no dedicated VRF program.
func (c Config) VrfProgramOrDefault() string {
	if c.VrfProgramID != "" {
		return c.VrfProgramID
	}
	return c.ProgramID
}
