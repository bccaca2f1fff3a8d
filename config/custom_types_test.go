/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestByteSizeUnmarshal(t *testing.T) {
	type holder struct {
		Size ByteSize `json:"size" yaml:"size"`
	}

	t.Run("yaml", func(t *testing.T) {
		tests := []struct {
			data string
			want ByteSize
		}{
			{"size: 1024", 1024},
			{"size: 1K", 1024},
			{"size: 100M", 100 * 1024 * 1024},
			{"size: 2Gi", 2 * 1024 * 1024 * 1024},
		}
		for _, tt := range tests {
			var h holder
			require.NoError(t, yaml.Unmarshal([]byte(tt.data), &h), tt.data)
			require.Equal(t, tt.want, h.Size, tt.data)
		}

		var h holder
		require.Error(t, yaml.Unmarshal([]byte("size: nonsense"), &h))
	})

	t.Run("json", func(t *testing.T) {
		var h holder
		require.NoError(t, json.Unmarshal([]byte(`{"size": "10M"}`), &h))
		require.Equal(t, ByteSize(10*1024*1024), h.Size)

		require.NoError(t, json.Unmarshal([]byte(`{"size": 512}`), &h))
		require.Equal(t, ByteSize(512), h.Size)

		require.Error(t, json.Unmarshal([]byte(`{"size": "-1"}`), &h))
	})

	t.Run("marshal round-trip", func(t *testing.T) {
		h := holder{Size: 1024 * 1024}
		data, err := yaml.Marshal(h)
		require.NoError(t, err)
		var got holder
		require.NoError(t, yaml.Unmarshal(data, &got))
		require.Equal(t, h, got)
	})
}

func TestTimeDurationUnmarshal(t *testing.T) {
	type holder struct {
		Timeout TimeDuration `json:"timeout" yaml:"timeout"`
	}

	t.Run("yaml", func(t *testing.T) {
		var h holder
		require.NoError(t, yaml.Unmarshal([]byte("timeout: 1h30m"), &h))
		require.Equal(t, 90*time.Minute, time.Duration(h.Timeout))

		require.NoError(t, yaml.Unmarshal([]byte("timeout: 1000000000"), &h))
		require.Equal(t, time.Second, time.Duration(h.Timeout))

		require.Error(t, yaml.Unmarshal([]byte("timeout: soon"), &h))
		require.Error(t, yaml.Unmarshal([]byte("timeout: -5"), &h))
	})

	t.Run("json", func(t *testing.T) {
		var h holder
		require.NoError(t, json.Unmarshal([]byte(`{"timeout": "250ms"}`), &h))
		require.Equal(t, 250*time.Millisecond, time.Duration(h.Timeout))
	})

	t.Run("string representation", func(t *testing.T) {
		require.Equal(t, "1m30s", TimeDuration(90*time.Second).String())
	})
}
