package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
)

var (
	RetryInitialInterval = 200 * time.Millisecond
	RetryMaxInterval     = 5 * time.Second
)

// Retry runs job until it succeeds, returns an error wrapped by Permanent,
// the context is done, or maxAttempts calls have been made.
func Retry(ctx context.Context, name string, maxAttempts int, job func() error) (attempts int, err error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = RetryInitialInterval
	exponentialBackoff.MaxInterval = RetryMaxInterval
	exponentialBackoff.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exponentialBackoff, uint64(maxAttempts-1)), ctx)

	err = backoff.RetryNotify(func() error {
		attempts++
		return job()
	}, policy, func(err error, wait time.Duration) {
		glog.V(0).Infof("retry %s in %v: %v", name, wait, err)
	})
	if err == nil && attempts > 1 {
		glog.V(0).Infof("retry %s successfully", name)
	}
	return attempts, err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
