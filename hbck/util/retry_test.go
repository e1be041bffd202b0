package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func init() {
	RetryInitialInterval = time.Millisecond
	RetryMaxInterval = 2 * time.Millisecond
}

func TestRetryBoundedAttempts(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), "always fails", 3, func() error {
		calls++
		return errors.New("io failure")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), "flaky", 5, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	notFound := errors.New("not found")
	attempts, err := Retry(context.Background(), "permanent", 5, func() error {
		return Permanent(notFound)
	})
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, notFound)
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	attempts, err := Retry(context.Background(), "once", 0, func() error {
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}
