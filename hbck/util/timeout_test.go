package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCallWithTimeout(t *testing.T) {
	value, err := CallWithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 7, value)

	_, err = CallWithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, errors.New("fast")
	})
	assert.EqualError(t, err, "fast")

	release := make(chan struct{})
	defer close(release)
	_, err = CallWithTimeout(context.Background(), 10*time.Millisecond, func(context.Context) (string, error) {
		<-release
		return "late", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := make(chan struct{}, 1)
	_, err = CallWithTimeout(ctx, 0, func(context.Context) (bool, error) {
		called <- struct{}{}
		return true, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, called)
}

func TestCallWithTimeoutCancelsTheCall(t *testing.T) {
	stopped := make(chan error, 1)
	_, err := CallWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		stopped <- ctx.Err()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("the call never saw its deadline")
	}
}
