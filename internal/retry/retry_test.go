package retry

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func quietConfig(attempts int, interval time.Duration) *Config {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return &Config{
		MaxAttempts:     attempts,
		InitialInterval: interval,
		MaxInterval:     time.Second,
		Strategy:        StrategyFixed,
		Logger:          logger,
	}
}

// TestDo_Success 第一次就成功
func TestDo_Success(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(3, time.Millisecond), func(ctx context.Context) error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

// TestDo_SuccessAfterRetries 重试后成功
func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(5, time.Millisecond), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("Failed to spawn: unable to connect to remote frida-server")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

// TestDo_MaxAttemptsReached 次数用尽
func TestDo_MaxAttemptsReached(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(3, time.Millisecond), func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "max attempts")
	assert.Contains(t, err.Error(), "persistent error")
}

// TestDo_NonRetryableError 不可重试错误立即返回
func TestDo_NonRetryableError(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(5, time.Millisecond), func(ctx context.Context) error {
		attempts++
		return NewNonRetryableError(errors.New("fatal error"))
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "non-retryable")
}

// TestDo_MissingBinary 找不到 frida 可执行文件时不重试
func TestDo_MissingBinary(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(5, time.Millisecond), func(ctx context.Context) error {
		attempts++
		return &exec.Error{Name: "frida", Err: exec.ErrNotFound}
	})

	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Equal(t, 1, attempts)
}

// TestDo_ContextCanceled 等待期间取消
func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, quietConfig(10, 200*time.Millisecond), func(ctx context.Context) error {
		attempts++
		return errors.New("slow start")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
	assert.Less(t, attempts, 10)
}

func TestDo_AlreadyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false

	err := Do(ctx, quietConfig(3, time.Millisecond), func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDo_NilConfigAndZeroAttempts(t *testing.T) {
	attempts := 0
	cfg := quietConfig(0, time.Millisecond)

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("once")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)

	assert.NoError(t, Do(context.Background(), nil, func(ctx context.Context) error { return nil }))
}

// TestNextInterval 各策略的间隔计算与上限
func TestNextInterval(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 350 * time.Millisecond

	tests := []struct {
		strategy Strategy
		want     []time.Duration
	}{
		{StrategyFixed, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}},
		{StrategyLinear, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}},
		{StrategyExponential, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, max}},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			for i, want := range tt.want {
				assert.Equal(t, want, nextInterval(tt.strategy, initial, max, i+1))
			}
		})
	}

	assert.Equal(t, 800*time.Millisecond, nextInterval(StrategyExponential, initial, 0, 4))
}

func TestDoWithResult(t *testing.T) {
	attempts := 0

	result, err := DoWithResult(context.Background(), quietConfig(3, time.Millisecond), func(ctx context.Context) ([]string, error) {
		attempts++
		if attempts < 2 {
			return []string{"partial"}, errors.New("temporary error")
		}
		return []string{"Lcom/a/B;"}, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"Lcom/a/B;"}, result)

	result, err = DoWithResult(context.Background(), quietConfig(2, time.Millisecond), func(ctx context.Context) ([]string, error) {
		return []string{"partial"}, errors.New("persistent error")
	})
	assert.Error(t, err)
	assert.Nil(t, result)
}

// TestIsRetryable 默认重试行为
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("run: %w", context.DeadlineExceeded), false},
		{"binary not found", &exec.Error{Name: "frida", Err: exec.ErrNotFound}, false},
		{"generic error", errors.New("some error"), true},
		{"marked retryable", NewRetryableError(context.Canceled), true},
		{"marked non-retryable", NewNonRetryableError(errors.New("fatal")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, StrategyExponential, cfg.Strategy)
	assert.NotNil(t, cfg.Logger)
}
