/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration of reqflow components from YAML/JSON files, readers
// and environment variables. Every configurable component implements the Config interface.
package config

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// PrefixedDataProvider returns a data provider scoped to the key prefix of cfg (if it has one).
func PrefixedDataProvider(dp DataProvider, cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}
