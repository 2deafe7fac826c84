package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastCfg(attempts int) config.Retry {
	return config.Retry{
		Attempts:        attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestExponential_SucceedsAfterFailures(t *testing.T) {
	var calls int
	err := NewExponential(fastCfg(5)).Attempt(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExponential_GivesUpAfterAttempts(t *testing.T) {
	var calls int
	err := NewExponential(fastCfg(4)).Attempt(context.Background(), func() error {
		calls++
		return errFlaky
	})
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, errFlaky)
}

func TestExponential_PermanentStopsImmediately(t *testing.T) {
	var calls int
	err := NewExponential(fastCfg(10)).Attempt(context.Background(), func() error {
		calls++
		return Permanent(errFlaky)
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errFlaky)
	assert.NotErrorIs(t, err, ErrAttemptsExhausted)
}

func TestExponential_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := NewExponential(fastCfg(10)).Attempt(ctx, func() error {
		calls++
		return errFlaky
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 1)
}

func TestExponential_ZeroAttemptsMeansOne(t *testing.T) {
	p := NewExponential(config.Retry{})
	assert.Equal(t, 1, p.Attempts())

	var calls int
	_ = p.Attempt(context.Background(), func() error {
		calls++
		return errFlaky
	})
	assert.Equal(t, 1, calls)
}

func TestNoRetry(t *testing.T) {
	var calls int
	err := NoRetry{}.Attempt(context.Background(), func() error {
		calls++
		return Permanent(errFlaky)
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errFlaky)
	assert.False(t, IsPermanent(err))

	assert.NoError(t, NoRetry{}.Attempt(context.Background(), func() error { return nil }))
	assert.Nil(t, Permanent(nil))
}
