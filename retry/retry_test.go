/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestDoWithRetry(t *testing.T) {
	t.Run("succeeds after transient errors", func(t *testing.T) {
		attempts := 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 10), nil, nil,
			func(ctx context.Context) error {
				attempts++
				if attempts < 3 {
					return errors.New("transient")
				}
				return nil
			})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("permanent error stops retrying", func(t *testing.T) {
		permErr := errors.New("permanent")
		attempts := 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 10),
			func(err error) bool { return !errors.Is(err, permErr) }, nil,
			func(ctx context.Context) error {
				attempts++
				return permErr
			})
		require.ErrorIs(t, err, permErr)
		require.Equal(t, 1, attempts)
	})

	t.Run("attempt limit is respected", func(t *testing.T) {
		attempts := 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 2), nil, nil,
			func(ctx context.Context) error {
				attempts++
				return errors.New("transient")
			})
		require.Error(t, err)
		require.Equal(t, 3, attempts) // initial attempt plus two retries
	})
}

func TestConstantBackoffPolicy(t *testing.T) {
	b := NewConstantBackoffPolicy(time.Second, 0).NewBackOff()
	for i := 0; i < 5; i++ {
		require.Equal(t, time.Second, b.NextBackOff())
	}
}

func TestExponentialBackoffPolicy(t *testing.T) {
	b := NewExponentialBackoffPolicy(100*time.Millisecond, 3).NewBackOff()
	var last time.Duration
	for i := 0; i < 3; i++ {
		d := b.NextBackOff()
		require.NotEqual(t, backoff.Stop, d)
		require.GreaterOrEqual(t, d, last/2) // jittered, but growing on average
		last = d
	}
	require.Equal(t, backoff.Stop, b.NextBackOff())
}
