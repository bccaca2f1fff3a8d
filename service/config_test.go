/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-svckit/config"
)

func TestConfig(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewReader(nil), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, NewDefaultConfig(), cfg)
		require.Equal(t, DefaultTimings(), cfg.Timings())
	})

	t.Run("read values", func(t *testing.T) {
		cfgData := `
service:
  startRetryInterval: 2s
  runInterval: 50ms
  idleGrace: 10s
  stopRetryInterval: 3s
  restartDelay: 1500ms
  stoppedPollInterval: 30s
  readyPollInterval: 200ms
  streamBufferSize: 128
`
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewReader([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)

		require.Equal(t, Timings{
			StartRetryInterval:  2 * time.Second,
			RunInterval:         50 * time.Millisecond,
			IdleGrace:           10 * time.Second,
			StopRetryInterval:   3 * time.Second,
			RestartDelay:        1500 * time.Millisecond,
			StoppedPollInterval: 30 * time.Second,
			ReadyPollInterval:   200 * time.Millisecond,
		}, cfg.Timings())
		require.Equal(t, 128, cfg.StreamBufferSize)
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfgData := `
supervisor:
  idleGrace: 42s
`
		cfg := NewConfig(WithKeyPrefix("supervisor"))
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewReader([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, 42*time.Second, time.Duration(cfg.IdleGrace))
	})

	t.Run("non-positive durations are rejected", func(t *testing.T) {
		cfgData := `
service:
  runInterval: -100ms
`
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewReader([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "service.runInterval")
		require.Contains(t, err.Error(), "must be positive")
	})

	t.Run("zero stream buffer size is rejected", func(t *testing.T) {
		cfgData := `
service:
  streamBufferSize: 0
`
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewReader([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "service.streamBufferSize")
	})
}
