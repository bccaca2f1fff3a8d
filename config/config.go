/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config provides a thin configuration layer on top of viper:
// a DataProvider abstraction for reading typed values from files, readers
// and environment variables, and a Loader that initializes configuration
// objects with defaults before setting them.
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
