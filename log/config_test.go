/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-svckit/config"
)

func loadConfigFromYAML(t *testing.T, yamlData string, cfg *Config) error {
	t.Helper()
	return config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewReader([]byte(yamlData)), config.DataTypeYAML, cfg)
}

func TestConfig(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		cfg := NewConfig()
		require.NoError(t, loadConfigFromYAML(t, "", cfg))
		require.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("read values", func(t *testing.T) {
		cfgData := `
log:
  level: warn
  format: text
  output: file
  nocolor: true
  addCaller: true
  file:
    path: /var/log/svc.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 5
      maxAgeDays: 7
      localTimeInNames: true
`
		cfg := NewConfig()
		require.NoError(t, loadConfigFromYAML(t, cfgData, cfg))
		require.Equal(t, LevelWarn, cfg.Level)
		require.Equal(t, FormatText, cfg.Format)
		require.Equal(t, OutputFile, cfg.Output)
		require.True(t, cfg.NoColor)
		require.True(t, cfg.AddCaller)
		require.Equal(t, "/var/log/svc.log", cfg.File.Path)
		require.True(t, cfg.File.Rotation.Compress)
		require.Equal(t, config.BytesCount(100*1024*1024), cfg.File.Rotation.MaxSize)
		require.Equal(t, 5, cfg.File.Rotation.MaxBackups)
		require.Equal(t, 7, cfg.File.Rotation.MaxAgeDays)
		require.True(t, cfg.File.Rotation.LocalTimeInNames)
	})

	t.Run("unknown level is rejected", func(t *testing.T) {
		cfg := NewConfig()
		err := loadConfigFromYAML(t, "log:\n  level: loud\n", cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "log.level")
	})

	t.Run("file output requires a path", func(t *testing.T) {
		cfg := NewConfig()
		err := loadConfigFromYAML(t, "log:\n  output: file\n", cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "log.file.path")
	})

	t.Run("too small rotation size is rejected", func(t *testing.T) {
		cfgData := `
log:
  file:
    rotation:
      maxSize: 100K
`
		cfg := NewConfig()
		err := loadConfigFromYAML(t, cfgData, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "log.file.rotation.maxSize")
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfg := NewConfig(WithKeyPrefix("logger"))
		require.NoError(t, loadConfigFromYAML(t, "logger:\n  level: debug\n", cfg))
		require.Equal(t, LevelDebug, cfg.Level)
	})
}
