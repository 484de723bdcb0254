package frida

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/apk-analysis/frida-enum/internal/catalog"
	"github.com/apk-analysis/frida-enum/internal/retry"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAgentIncomplete agent 输出在 done 消息之前结束
	ErrAgentIncomplete = errors.New("agent exited before completion")

	errHandleDisposed = errors.New("class handle already disposed")
)

// Runtime 通过注入 agent 访问目标进程的 Java 运行时，实现 catalog.Runtime
type Runtime struct {
	client *Client
	retry  *retry.Config
	logger *logrus.Logger
}

var _ catalog.Runtime = (*Runtime)(nil)

// NewRuntime 创建运行时，retryCfg 为 nil 时使用默认重试配置
func NewRuntime(client *Client, retryCfg *retry.Config, logger *logrus.Logger) *Runtime {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
		retryCfg.Logger = logger
	}
	return &Runtime{
		client: client,
		retry:  retryCfg,
		logger: logger,
	}
}

// LoadedClasses 枚举已加载类
// Java.enumerateLoadedClassesSync 返回点分类名，这里转回描述符交给 catalog 解析
func (r *Runtime) LoadedClasses(ctx context.Context) ([]string, error) {
	msgs, err := r.eval(ctx, agentClasses, agentData{})
	if err != nil {
		return nil, err
	}

	classes := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Type == MessageClass {
			classes = append(classes, toDescriptor(m.Name))
		}
	}
	return classes, nil
}

// Use 解析类并立即取回其声明的方法，句柄只在本地记录释放状态
// agent 内部在 finally 中调用 $dispose
func (r *Runtime) Use(ctx context.Context, name catalog.ClassName) (catalog.ClassHandle, error) {
	msgs, err := r.eval(ctx, agentMethods, agentData{Class: name.String()})
	if err != nil {
		return nil, err
	}

	h := &classHandle{name: name}
	for _, m := range msgs {
		if m.Type == MessageMethod {
			h.methods = append(h.methods, methodString(m.Value))
		}
	}
	return h, nil
}

// eval 注入一次性 agent，收集到 done 为止的全部消息
func (r *Runtime) eval(ctx context.Context, name string, data agentData) ([]Message, error) {
	sess := newSession()
	data.Marker = sess.Marker
	script, err := render(name, data)
	if err != nil {
		return nil, err
	}

	logger := r.logger.WithFields(logrus.Fields{
		"session": sess.ID,
		"agent":   name,
	})

	return retry.DoWithResult(ctx, r.retry, func(ctx context.Context) ([]Message, error) {
		var out bytes.Buffer
		if err := r.client.Run(ctx, sess.ID, script, &out, false); err != nil {
			return nil, err
		}

		msgs, err := collect(&out, sess.Marker)
		if err != nil {
			return nil, err
		}
		if err := agentError(msgs); err != nil {
			logger.WithError(err).Debug("Agent reported error")
			return nil, retry.NewNonRetryableError(err)
		}
		logger.WithField("messages", len(msgs)).Debug("Agent completed")
		return msgs, nil
	})
}

// collect 读取全部消息，必须以 done 结束
func collect(r io.Reader, marker string) ([]Message, error) {
	reader := NewMessageReader(r, marker)
	var msgs []Message
	for {
		msg, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil, ErrAgentIncomplete
		}
		if err != nil {
			return nil, fmt.Errorf("decode agent message at line %d: %w", reader.LineNumber(), err)
		}
		if msg.Type == MessageDone {
			return msgs, nil
		}
		msgs = append(msgs, *msg)
	}
}

// agentError 把 agent 报告的异常转成错误，类不存在时包装 catalog.ErrClassNotFound
func agentError(msgs []Message) error {
	for _, m := range msgs {
		if m.Type != MessageError {
			continue
		}
		if strings.Contains(m.Message, "ClassNotFoundException") {
			return fmt.Errorf("%w: %s", catalog.ErrClassNotFound, m.Message)
		}
		return fmt.Errorf("agent: %s", m.Message)
	}
	return nil
}

// toDescriptor 点分类名转描述符，数组类名本身已是描述符形式
func toDescriptor(name string) string {
	if strings.HasPrefix(name, "[") {
		return strings.ReplaceAll(name, ".", "/")
	}
	return "L" + strings.ReplaceAll(name, ".", "/") + ";"
}

// methodString java.lang.reflect.Method.toString() 的结果
type methodString string

func (m methodString) String() string { return string(m) }

type classHandle struct {
	name     catalog.ClassName
	methods  []catalog.MethodDescriptor
	disposed atomic.Bool
}

func (h *classHandle) DeclaredMethods(ctx context.Context) ([]catalog.MethodDescriptor, error) {
	if h.disposed.Load() {
		return nil, fmt.Errorf("%s: %w", h.name, errHandleDisposed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]catalog.MethodDescriptor, len(h.methods))
	copy(out, h.methods)
	return out, nil
}

func (h *classHandle) Dispose() error {
	if !h.disposed.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", h.name, errHandleDisposed)
	}
	return nil
}
