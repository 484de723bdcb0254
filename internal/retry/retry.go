// Package retry 外部工具启动的有限次重试
package retry

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// Strategy 退避策略
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"       // 固定间隔
	StrategyLinear      Strategy = "linear"      // initial * attempt
	StrategyExponential Strategy = "exponential" // initial * 2^(attempt-1)
)

// Config 重试配置
type Config struct {
	MaxAttempts     int            `mapstructure:"max_attempts"`
	InitialInterval time.Duration  `mapstructure:"initial_interval"`
	MaxInterval     time.Duration  `mapstructure:"max_interval"`
	Strategy        Strategy       `mapstructure:"strategy"`
	Logger          *logrus.Logger `mapstructure:"-"`
}

// DefaultConfig frida 启动失败通常是设备端 frida-server 尚未就绪，短间隔重试几次即可
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Strategy:        StrategyExponential,
		Logger:          logrus.StandardLogger(),
	}
}

// RetryableError 可以声明自身是否可重试的错误
type RetryableError interface {
	error
	IsRetryable() bool
}

type retryableError struct {
	error
	retryable bool
}

func (e *retryableError) IsRetryable() bool { return e.retryable }
func (e *retryableError) Unwrap() error     { return e.error }

// NewRetryableError 标记为可重试
func NewRetryableError(err error) error {
	return &retryableError{error: err, retryable: true}
}

// NewNonRetryableError 标记为不可重试
func NewNonRetryableError(err error) error {
	return &retryableError{error: err, retryable: false}
}

// IsRetryable 判断错误是否值得重试
// 上下文取消、超时以及找不到可执行文件都不重试，其余默认重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryableErr RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.IsRetryable()
	}

	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, exec.ErrNotFound):
		return false
	default:
		return true
	}
}

// Func 可重试的操作
type Func func(ctx context.Context) error

// Do 执行 fn，失败时按策略等待后重试，直到成功、不可重试或次数用尽
func Do(ctx context.Context, config *Config, fn Func) error {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry canceled: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempt", attempt).Info("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     maxAttempts,
			"error":   err.Error(),
		}).Warn("Operation failed")

		if !IsRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if attempt >= maxAttempts {
			break
		}

		wait := nextInterval(config.Strategy, config.InitialInterval, config.MaxInterval, attempt)
		logger.WithFields(logrus.Fields{
			"next_attempt": attempt + 1,
			"wait":         wait,
		}).Debug("Waiting before retry")

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled during wait: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("max attempts (%d) reached: %w", maxAttempts, lastErr)
}

// nextInterval 第 attempt 次失败后的等待时间，不超过 max（max <= 0 表示不限制）
func nextInterval(strategy Strategy, initial, max time.Duration, attempt int) time.Duration {
	var next time.Duration
	switch strategy {
	case StrategyLinear:
		next = initial * time.Duration(attempt)
	case StrategyExponential:
		next = initial * time.Duration(1<<(attempt-1))
	default:
		next = initial
	}
	if max > 0 && next > max {
		next = max
	}
	return next
}

// DoWithResult Do 的带返回值版本
func DoWithResult[T any](ctx context.Context, config *Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, config, func(ctx context.Context) error {
		res, err := fn(ctx)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
