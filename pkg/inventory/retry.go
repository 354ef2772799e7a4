package inventory

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls how transient store failures are retried
// 一時的なストア障害の再試行ポリシー
type RetryPolicy struct {
	MaxRetries int           `yaml:"max_retries"` // 再試行回数
	BaseDelay  time.Duration `yaml:"base_delay"`  // 初回待機時間
	Multiplier int           `yaml:"multiplier"`  // 待機時間の倍率
}

// DefaultRetryPolicy waits 50ms, 200ms and 800ms between attempts
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 50 * time.Millisecond, Multiplier: 4}
}

// Delay returns the wait before retry n (0-based)
// n回目（0始まり）の再試行前の待機時間を返す
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		d *= time.Duration(p.Multiplier)
	}
	return d
}

// errOperationDeadline is the cancel cause of contexts created by withOperationDeadline
var errOperationDeadline = errors.New("操作期限を超過しました")

// withOperationDeadline bounds one engine operation, retries included
// 再試行を含む1操作の期限を設定
func withOperationDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(ctx, d, errOperationDeadline)
}

// run calls fn until it succeeds, fails permanently or the retry budget is spent.
// When the operation's own deadline cuts a retry short, the last transient
// error is returned instead of ErrCancelled.
func (p RetryPolicy) run(ctx context.Context, operation string, logger *zap.Logger, metrics *Metrics, fn func() error) error {
	var transient error
	for attempt := 0; ; attempt++ {
		err := asCancelled(operation, fn())
		if transient != nil && errors.Is(err, ErrCancelled) && deadlineExpired(ctx) {
			return transient
		}
		if err == nil || !IsRetryable(err) || attempt >= p.MaxRetries {
			return err
		}
		transient = err

		delay := p.Delay(attempt)
		logger.Warn("一時的なストアエラーのため再試行します",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		metrics.observeRetry(operation, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			if deadlineExpired(ctx) {
				return transient
			}
			return NewCancelledError(operation, ctx.Err())
		case <-timer.C:
		}
	}
}

// deadlineExpired reports whether ctx ended on the operation deadline while the caller's context is still live
func deadlineExpired(ctx context.Context) bool {
	return ctx.Err() != nil && errors.Is(context.Cause(ctx), errOperationDeadline)
}
