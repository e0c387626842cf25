package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rterrors "github.com/c360/runtimekit/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := fmt.Errorf("still down")
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDoStopsOnInvalid(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return rterrors.WrapInvalid(
			fmt.Errorf("%w: bad document", rterrors.ErrConfigParse),
			"KVSource", "Load", "decode value")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "invalid errors must not be retried")
}

func TestDoHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, Multiplier: 2}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		return fmt.Errorf("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
