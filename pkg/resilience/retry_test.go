package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fast = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "load", fast, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Retry(context.Background(), "load", fast, func() error {
		calls++
		return transient
	})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	bad := errors.New("bad input")
	calls := 0
	err := Retry(context.Background(), "fit", fast, func() error {
		calls++
		return Permanent(bad)
	})
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
	assert.Nil(t, Permanent(nil))
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "load", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeDelayCapped(t *testing.T) {
	cfg := withDefaults(RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second})
	assert.LessOrEqual(t, computeDelay(10, cfg), 3*time.Second)
	assert.Greater(t, computeDelay(1, cfg), time.Duration(0))
}
