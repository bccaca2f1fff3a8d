/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"fmt"
	"time"

	"github.com/acronis/go-svckit/config"
)

const cfgDefaultKeyPrefix = "service"

const (
	cfgKeyStartRetryInterval  = "startRetryInterval"
	cfgKeyRunInterval         = "runInterval"
	cfgKeyIdleGrace           = "idleGrace"
	cfgKeyStopRetryInterval   = "stopRetryInterval"
	cfgKeyRestartDelay        = "restartDelay"
	cfgKeyStoppedPollInterval = "stoppedPollInterval"
	cfgKeyReadyPollInterval   = "readyPollInterval"
	cfgKeyStreamBufferSize    = "streamBufferSize"
)

// Config represents a set of configuration parameters for the supervisor's
// scheduling delays and the manager's event streaming.
// Configuration can be loaded in different formats (YAML, JSON) using
// config.Loader, viper, or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	StartRetryInterval  config.TimeDuration `mapstructure:"startRetryInterval" yaml:"startRetryInterval" json:"startRetryInterval"`
	RunInterval         config.TimeDuration `mapstructure:"runInterval" yaml:"runInterval" json:"runInterval"`
	IdleGrace           config.TimeDuration `mapstructure:"idleGrace" yaml:"idleGrace" json:"idleGrace"`
	StopRetryInterval   config.TimeDuration `mapstructure:"stopRetryInterval" yaml:"stopRetryInterval" json:"stopRetryInterval"`
	RestartDelay        config.TimeDuration `mapstructure:"restartDelay" yaml:"restartDelay" json:"restartDelay"`
	StoppedPollInterval config.TimeDuration `mapstructure:"stoppedPollInterval" yaml:"stoppedPollInterval" json:"stoppedPollInterval"`
	ReadyPollInterval   config.TimeDuration `mapstructure:"readyPollInterval" yaml:"readyPollInterval" json:"readyPollInterval"`
	StreamBufferSize    int                 `mapstructure:"streamBufferSize" yaml:"streamBufferSize" json:"streamBufferSize"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing
// configuration parameters. This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix:           opts.keyPrefix,
		StartRetryInterval:  config.TimeDuration(DefaultStartRetryInterval),
		RunInterval:         config.TimeDuration(DefaultRunInterval),
		IdleGrace:           config.TimeDuration(DefaultIdleGrace),
		StopRetryInterval:   config.TimeDuration(DefaultStopRetryInterval),
		RestartDelay:        config.TimeDuration(DefaultRestartDelay),
		StoppedPollInterval: config.TimeDuration(DefaultStoppedPollInterval),
		ReadyPollInterval:   config.TimeDuration(DefaultReadyPollInterval),
		StreamBufferSize:    DefaultStreamBufferSize,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters
// should be presented. Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyStartRetryInterval, DefaultStartRetryInterval.String())
	dp.SetDefault(cfgKeyRunInterval, DefaultRunInterval.String())
	dp.SetDefault(cfgKeyIdleGrace, DefaultIdleGrace.String())
	dp.SetDefault(cfgKeyStopRetryInterval, DefaultStopRetryInterval.String())
	dp.SetDefault(cfgKeyRestartDelay, DefaultRestartDelay.String())
	dp.SetDefault(cfgKeyStoppedPollInterval, DefaultStoppedPollInterval.String())
	dp.SetDefault(cfgKeyReadyPollInterval, DefaultReadyPollInterval.String())
	dp.SetDefault(cfgKeyStreamBufferSize, DefaultStreamBufferSize)
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	durations := []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyStartRetryInterval, &c.StartRetryInterval},
		{cfgKeyRunInterval, &c.RunInterval},
		{cfgKeyIdleGrace, &c.IdleGrace},
		{cfgKeyStopRetryInterval, &c.StopRetryInterval},
		{cfgKeyRestartDelay, &c.RestartDelay},
		{cfgKeyStoppedPollInterval, &c.StoppedPollInterval},
		{cfgKeyReadyPollInterval, &c.ReadyPollInterval},
	}
	for _, d := range durations {
		v, err := dp.GetDuration(d.key)
		if err != nil {
			return err
		}
		if v <= 0 {
			return dp.WrapKeyErr(d.key, fmt.Errorf("must be positive, got %s", v))
		}
		*d.dst = config.TimeDuration(v)
	}

	streamBufferSize, err := dp.GetInt(cfgKeyStreamBufferSize)
	if err != nil {
		return err
	}
	if streamBufferSize < 1 {
		return dp.WrapKeyErr(cfgKeyStreamBufferSize, fmt.Errorf("must be >= 1, got %d", streamBufferSize))
	}
	c.StreamBufferSize = streamBufferSize

	return nil
}

// Timings converts the configured delays into a Timings value usable in Opts.
func (c *Config) Timings() Timings {
	return Timings{
		StartRetryInterval:  time.Duration(c.StartRetryInterval),
		RunInterval:         time.Duration(c.RunInterval),
		IdleGrace:           time.Duration(c.IdleGrace),
		StopRetryInterval:   time.Duration(c.StopRetryInterval),
		RestartDelay:        time.Duration(c.RestartDelay),
		StoppedPollInterval: time.Duration(c.StoppedPollInterval),
		ReadyPollInterval:   time.Duration(c.ReadyPollInterval),
	}
}
