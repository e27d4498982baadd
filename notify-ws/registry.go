package notifyws

import (
	"context"
	"errors"
	"time"

	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
	"github.com/sethvargo/go-retry"
)

const defaultRegistryTimeout = 2 * time.Second

func registryTimeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultRegistryTimeout
}

// registryAttempt runs one registry call under its own deadline, marking the
// error retryable when the registry was unavailable or the attempt ran out of
// time while the caller still had some.
func registryAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(attemptCtx)
	if err == nil {
		return nil
	}
	if connectiondao.IsRetryable(err) || timedOut(ctx, attemptCtx) {
		return retry.RetryableError(err)
	}
	return err
}

// timedOut reports whether attempt hit its own deadline rather than parent
// being done.
func timedOut(parent, attempt context.Context) bool {
	return errors.Is(attempt.Err(), context.DeadlineExceeded) && parent.Err() == nil
}
