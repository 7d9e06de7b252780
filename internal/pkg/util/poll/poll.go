// Package poll provides the single bounded wait used by every vehicle
// operation that waits for observed state to catch up with a request.
package poll

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrTimeout is returned when the condition did not hold before the timeout.
var ErrTimeout = errors.New("timed out waiting for the condition")

// ConditionFunc reports whether the awaited state has been reached. A non-nil
// error aborts the wait.
type ConditionFunc func(ctx context.Context) (done bool, err error)

// Until evaluates cond immediately and then every interval until it returns
// true, returns an error, timeout elapses or ctx ends. timeout <= 0 waits
// until ctx ends. A timeout yields ErrTimeout; a cancelled ctx yields ctx.Err().
func Until(ctx context.Context, interval, timeout time.Duration, cond ConditionFunc) error {
	var err error
	if timeout > 0 {
		err = wait.PollUntilContextTimeout(ctx, interval, timeout, true, wait.ConditionWithContextFunc(cond))
	} else {
		err = wait.PollUntilContextCancel(ctx, interval, true, wait.ConditionWithContextFunc(cond))
	}

	if err == nil || !wait.Interrupted(err) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrTimeout
}
