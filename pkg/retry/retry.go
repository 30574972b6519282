// Package retry runs calls to external services with a per-attempt timeout
// and bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy 描述外部调用的超时与重试策略
type Policy struct {
	Timeout         time.Duration // 单次调用超时
	MaxRetries      int           // 首次调用之外的最大重试次数
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy 默认策略：20 秒超时，最多重试 2 次
func DefaultPolicy() Policy {
	return Policy{
		Timeout:         20 * time.Second,
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     4 * time.Second,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the retries are
// exhausted or ctx is done. Each attempt gets its own timeout derived from ctx.
// notify, when non-nil, is called before every retry.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify func(attempt int, err error, wait time.Duration)) error {
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy().Timeout
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	expo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		expo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		expo.MaxInterval = p.MaxInterval
	}
	expo.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(expo, uint64(p.MaxRetries))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()

		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		// 调用方取消时不再重试
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}
	}

	err := backoff.RetryNotify(operation, b, onRetry)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
