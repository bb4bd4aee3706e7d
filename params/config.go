package params

import (
	"errors"
)

// DefaultChainID is used when storage holds no persisted chain id.
const DefaultChainID uint64 = 1

// Config holds construction options for a provider instance.
// It is passed by value at construction and never mutated afterwards;
// runtime chain/RPC changes go through the session, not the config.
type Config struct {
	// AppName is a human readable dapp name forwarded to the relay
	// so the wallet side can render an origin label.
	AppName string

	// AppLogoURL is an optional dapp icon forwarded to the relay.
	AppLogoURL string

	// JSONRPCURL is the default RPC endpoint used until a persisted
	// or approved chain overrides it.
	JSONRPCURL string

	// ChainID is the default chain id used until storage or a chain
	// switch overrides it. Zero means DefaultChainID.
	ChainID uint64
}

var ErrMissingJSONRPCURL = errors.New("config: JSONRPCURL is required")

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if c.JSONRPCURL == "" {
		return ErrMissingJSONRPCURL
	}
	return nil
}

// ActiveChainID returns the configured chain id or the default.
func (c *Config) ActiveChainID() uint64 {
	if c.ChainID == 0 {
		return DefaultChainID
	}
	return c.ChainID
}
